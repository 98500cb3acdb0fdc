package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/bracket"
	"github.com/AdamBeresnev/rack-ladder/internal/rating"
	"github.com/AdamBeresnev/rack-ladder/internal/reward"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Rating    RatingConfig    `yaml:"rating"`
	Bracket   BracketConfig   `yaml:"bracket"`
	Rewards   RewardsConfig   `yaml:"rewards"`
	Engine    EngineConfig    `yaml:"engine"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// Requests per second allowed per client IP on mutating routes; 0 disables the limit.
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ChallengeConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type RatingConfig struct {
	InitialRating int            `yaml:"initial_rating"`
	KFactors      []rating.KBand `yaml:"k_factors"`
	RankTiers     []rating.Tier  `yaml:"rank_tiers"`
}

// BracketConfig holds the defaults for tournaments that don't pick their own.
type BracketConfig struct {
	Type    bracket.TournamentType `yaml:"type"`
	Seeding bracket.Seeding        `yaml:"seeding"`
	RaceTo  int                    `yaml:"race_to"`
}

type RewardsConfig struct {
	// Empty keeps credits in memory
	LedgerURL string        `yaml:"ledger_url"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`

	reward.Policy `yaml:",inline"`
}

type EngineConfig struct {
	// Attempts after the first when a write loses an optimistic lock race
	MaxRetries int    `yaml:"max_retries"`
	LogLevel   string `yaml:"log_level"`
}

// TracingConfig selects where spans go. Exporter is one of none, stdout or
// otlp; otlp sends to Endpoint over gRPC.
type TracingConfig struct {
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	ServiceName string  `yaml:"service_name"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			RateLimit:       10,
			RateBurst:       20,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "rack_ladder.db",
		},
		Challenge: ChallengeConfig{
			TTL: 48 * time.Hour,
		},
		Rating: RatingConfig{
			InitialRating: 1500,
			KFactors: []rating.KBand{
				{MinStake: 0, K: 32},
				{MinStake: 50, K: 40},
				{MinStake: 200, K: 48},
			},
			RankTiers: []rating.Tier{
				{Name: "Bronze", MinRating: 0},
				{Name: "Silver", MinRating: 1200},
				{Name: "Gold", MinRating: 1400},
				{Name: "Platinum", MinRating: 1600},
				{Name: "Diamond", MinRating: 1800},
				{Name: "Master", MinRating: 2000},
				{Name: "Grandmaster", MinRating: 2200},
			},
		},
		Bracket: BracketConfig{
			Type:    bracket.DoubleElimination,
			Seeding: bracket.SeedingCompact,
			RaceTo:  5,
		},
		Rewards: RewardsConfig{
			Timeout:   5 * time.Second,
			Interval:  time.Minute,
			BatchSize: 100,
			Policy: reward.Policy{
				WinnerShare:    1,
				PlacementBonus: map[int]int64{1: 100, 2: 50, 3: 25},
			},
		},
		Engine: EngineConfig{
			MaxRetries: 3,
			LogLevel:   "info",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			Endpoint:    "localhost:4317",
			SampleRatio: 1,
			ServiceName: "rack-ladder",
		},
	}
}

// LoadConfig reads filename over the defaults, then applies environment
// overrides. A missing file leaves the defaults in place.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CHALLENGE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CHALLENGE_TTL value: %w", err)
		}
		cfg.Challenge.TTL = d
	}
	if v := os.Getenv("REWARD_LEDGER_URL"); v != "" {
		cfg.Rewards.LedgerURL = v
	}
	if v := os.Getenv("REWARD_LEDGER_TOKEN"); v != "" {
		cfg.Rewards.Token = v
	}
	if v := os.Getenv("REWARD_SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REWARD_SYNC_INTERVAL value: %w", err)
		}
		cfg.Rewards.Interval = d
	}
	if v := os.Getenv("ENGINE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_MAX_RETRIES value: %w", err)
		}
		cfg.Engine.MaxRetries = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Engine.LogLevel = v
	}
	if v := os.Getenv("TRACING_EXPORTER"); v != "" {
		cfg.Tracing.Exporter = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Challenge.TTL <= 0 {
		return fmt.Errorf("challenge.ttl must be positive")
	}
	if c.Rating.InitialRating < 0 {
		return fmt.Errorf("rating.initial_rating must not be negative")
	}
	if _, err := rating.NewKTable(c.Rating.KFactors); err != nil {
		return fmt.Errorf("rating.k_factors: %w", err)
	}
	if _, err := rating.NewClassifier(c.Rating.RankTiers); err != nil {
		return fmt.Errorf("rating.rank_tiers: %w", err)
	}
	switch c.Bracket.Type {
	case bracket.SingleElimination, bracket.DoubleElimination:
	default:
		return fmt.Errorf("bracket.type must be single or double, got %q", c.Bracket.Type)
	}
	switch c.Bracket.Seeding {
	case bracket.SeedingCompact, bracket.SeedingPadded:
	default:
		return fmt.Errorf("bracket.seeding must be compact or padded, got %q", c.Bracket.Seeding)
	}
	if c.Bracket.RaceTo < 1 {
		return fmt.Errorf("bracket.race_to must be at least 1")
	}
	if c.Rewards.Timeout <= 0 || c.Rewards.Interval <= 0 {
		return fmt.Errorf("rewards.timeout and rewards.interval must be positive")
	}
	if c.Rewards.BatchSize < 1 {
		return fmt.Errorf("rewards.batch_size must be at least 1")
	}
	if err := c.Rewards.Policy.Validate(); err != nil {
		return fmt.Errorf("rewards: %w", err)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}
	switch c.Tracing.Exporter {
	case "none", "stdout":
	case "otlp":
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("tracing.exporter must be none, stdout or otlp, got %q", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	return nil
}
