package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdamBeresnev/rack-ladder/internal/config"
	"github.com/AdamBeresnev/rack-ladder/internal/db"
	"github.com/AdamBeresnev/rack-ladder/internal/metrics"
	"github.com/AdamBeresnev/rack-ladder/internal/rating"
	"github.com/AdamBeresnev/rack-ladder/internal/reward"
	"github.com/AdamBeresnev/rack-ladder/internal/service"
	"github.com/AdamBeresnev/rack-ladder/internal/store"
	"github.com/AdamBeresnev/rack-ladder/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

type application struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	players    *service.PlayerService
	challenges *service.ChallengeService
	brackets   *service.BracketService
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Engine.LogLevel)); err != nil {
		log.Fatal("Invalid log level:", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	tp, err := telemetry.NewTracerProvider(context.Background(), cfg.Tracing, os.Stdout)
	if err != nil {
		log.Fatal("Failed to set up tracing:", err)
	}
	otel.SetTracerProvider(tp)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	kTable, err := rating.NewKTable(cfg.Rating.KFactors)
	if err != nil {
		log.Fatal("Invalid K-factor table:", err)
	}
	ranks, err := rating.NewClassifier(cfg.Rating.RankTiers)
	if err != nil {
		log.Fatal("Invalid rank tiers:", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var ledger reward.Ledger
	if cfg.Rewards.LedgerURL != "" {
		ledger = reward.NewHTTPLedger(cfg.Rewards.LedgerURL, cfg.Rewards.Token, cfg.Rewards.Timeout)
	} else {
		logger.Warn("No reward ledger configured, credits are kept in memory")
		ledger = reward.NewMemoryLedger()
	}

	stores := store.New(database)

	brackets := service.NewBracketService(stores, service.BracketOptions{
		Type:       cfg.Bracket.Type,
		Seeding:    cfg.Bracket.Seeding,
		RaceTo:     cfg.Bracket.RaceTo,
		MaxRetries: cfg.Engine.MaxRetries,

		TracerProvider: tp,
	}, logger, m)

	rewardSync := service.NewRewardSync(stores, brackets, ledger, service.RewardSyncOptions{
		Interval:  cfg.Rewards.Interval,
		Timeout:   cfg.Rewards.Timeout,
		BatchSize: cfg.Rewards.BatchSize,
		Policy:    cfg.Rewards.Policy,
	}, logger, m)

	app := &application{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		players:  service.NewPlayerService(stores, ranks, cfg.Rating.InitialRating, logger),
		brackets: brackets,
		challenges: service.NewChallengeService(stores, rating.NewEngine(kTable), ranks, brackets, service.ChallengeOptions{
			TTL:         cfg.Challenge.TTL,
			MaxRetries:  cfg.Engine.MaxRetries,
			OnCompleted: rewardSync.Trigger,

			TracerProvider: tp,
		}, logger, m),
	}

	if err := rewardSync.Start(); err != nil {
		log.Fatal("Failed to start reward sync:", err)
	}

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: otelhttp.NewHandler(app.routes(), "rack-ladder", otelhttp.WithTracerProvider(tp)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server starting", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", slog.Any("error", err))
	}
	if err := rewardSync.Stop(); err != nil {
		logger.Error("Reward sync shutdown failed", slog.Any("error", err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown failed", slog.Any("error", err))
	}
}
