package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/challenge"
	"github.com/AdamBeresnev/rack-ladder/internal/config"
	"github.com/AdamBeresnev/rack-ladder/internal/db/dbtest"
	"github.com/AdamBeresnev/rack-ladder/internal/metrics"
	"github.com/AdamBeresnev/rack-ladder/internal/player"
	"github.com/AdamBeresnev/rack-ladder/internal/rating"
	"github.com/AdamBeresnev/rack-ladder/internal/reward"
	"github.com/AdamBeresnev/rack-ladder/internal/store"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	cfg        *config.Config
	stores     *store.Stores
	clock      *testClock
	logger     *slog.Logger
	metrics    *metrics.Metrics
	players    *PlayerService
	brackets   *BracketService
	challenges *ChallengeService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	kTable, err := rating.NewKTable(cfg.Rating.KFactors)
	require.NoError(t, err)
	ranks, err := rating.NewClassifier(cfg.Rating.RankTiers)
	require.NoError(t, err)

	env := &testEnv{
		cfg:     cfg,
		stores:  store.New(dbtest.New(t)),
		clock:   &testClock{now: time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: metrics.New(prometheus.NewRegistry()),
	}

	env.players = NewPlayerService(env.stores, ranks, cfg.Rating.InitialRating, env.logger)
	env.brackets = NewBracketService(env.stores, BracketOptions{
		Type:       cfg.Bracket.Type,
		Seeding:    cfg.Bracket.Seeding,
		RaceTo:     3,
		MaxRetries: cfg.Engine.MaxRetries,
		Now:        env.clock.Now,
	}, env.logger, env.metrics)
	env.challenges = NewChallengeService(env.stores, rating.NewEngine(kTable), ranks, env.brackets, ChallengeOptions{
		TTL:        cfg.Challenge.TTL,
		MaxRetries: cfg.Engine.MaxRetries,
		Now:        env.clock.Now,
	}, env.logger, env.metrics)

	return env
}

func (env *testEnv) newRewardSync(ledger reward.Ledger) *RewardSync {
	return NewRewardSync(env.stores, env.brackets, ledger, RewardSyncOptions{
		Interval:  time.Hour,
		Timeout:   time.Second,
		BatchSize: 50,
		Policy:    env.cfg.Rewards.Policy,
	}, env.logger, env.metrics)
}

func (env *testEnv) registerPlayer(t *testing.T) *player.Player {
	t.Helper()

	p, err := env.players.Register(context.Background(), gofakeit.Username()+"-"+uuid.NewString()[:8])
	require.NoError(t, err)
	return p
}

// playRace accepts c and reports racks in order until it is decided.
func (env *testEnv) playRace(t *testing.T, c *challenge.Challenge, winners []uuid.UUID) *challenge.Challenge {
	t.Helper()
	ctx := context.Background()

	if c.Status == challenge.StatusPending {
		var err error
		c, err = env.challenges.Accept(ctx, c.ID, c.OpponentID, c.Version)
		require.NoError(t, err)
	}

	score := challenge.Score{Challenger: c.ChallengerScore, Opponent: c.OpponentScore}
	for _, w := range winners {
		if w == c.ChallengerID {
			score.Challenger++
		} else {
			score.Opponent++
		}
		var err error
		c, err = env.challenges.ReportRack(ctx, RackReport{
			ChallengeID:     c.ID,
			PlayerID:        w,
			RackNumber:      len(c.Racks) + 1,
			WinnerID:        w,
			ChallengerTotal: score.Challenger,
			OpponentTotal:   score.Opponent,
		})
		require.NoError(t, err)
	}
	return c
}

// completeRace plays the race and has both players confirm it.
func (env *testEnv) completeRace(t *testing.T, c *challenge.Challenge, winners []uuid.UUID) *challenge.Challenge {
	t.Helper()
	ctx := context.Background()

	c = env.playRace(t, c, winners)
	_, err := env.challenges.ConfirmResult(ctx, c.ID, c.ChallengerID, 0)
	require.NoError(t, err)
	c, err = env.challenges.ConfirmResult(ctx, c.ID, c.OpponentID, 0)
	require.NoError(t, err)
	require.Equal(t, challenge.StatusCompleted, c.Status)
	return c
}

func repeat(id uuid.UUID, n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = id
	}
	return out
}
