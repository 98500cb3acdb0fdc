package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/bracket"
	"github.com/AdamBeresnev/rack-ladder/internal/metrics"
	"github.com/AdamBeresnev/rack-ladder/internal/reward"
	"github.com/AdamBeresnev/rack-ladder/internal/store"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type RewardSyncOptions struct {
	Interval time.Duration
	// Upper bound for a single ledger call
	Timeout   time.Duration
	BatchSize int
	Policy    reward.Policy
}

// RewardSync pushes payouts for finished challenges and bracket matches to
// the reward ledger. Anything the ledger did not acknowledge stays unsynced
// and is picked up by the next pass.
type RewardSync struct {
	stores   *store.Stores
	brackets *BracketService
	ledger   reward.Ledger
	opts     RewardSyncOptions
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	scheduler gocron.Scheduler
	job       gocron.Job
}

func NewRewardSync(stores *store.Stores, brackets *BracketService, ledger reward.Ledger, opts RewardSyncOptions, logger *slog.Logger, m *metrics.Metrics) *RewardSync {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &RewardSync{
		stores:   stores,
		brackets: brackets,
		ledger:   ledger,
		opts:     opts,
		logger:   logger,
		metrics:  m,
	}
}

// Start schedules SyncAll every Interval. Passes never overlap; a pass due
// while another runs is pushed to the next slot.
func (r *RewardSync) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler != nil {
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	job, err := sched.NewJob(
		gocron.DurationJob(r.opts.Interval),
		gocron.NewTask(func() {
			if err := r.SyncAll(context.Background()); err != nil {
				r.logger.Error("Reward sync pass failed", slog.Any("error", err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("reward-sync"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("failed to schedule reward sync: %w", err)
	}

	sched.Start()
	r.scheduler = sched
	r.job = job
	r.logger.Info("Reward sync started", slog.Duration("interval", r.opts.Interval))
	return nil
}

func (r *RewardSync) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler == nil {
		return nil
	}
	err := r.scheduler.Shutdown()
	r.scheduler, r.job = nil, nil
	return err
}

// Trigger asks for a pass now instead of waiting for the next tick. It does
// nothing when the scheduler is not running.
func (r *RewardSync) Trigger() {
	r.mu.Lock()
	job := r.job
	r.mu.Unlock()

	if job == nil {
		return
	}
	if err := job.RunNow(); err != nil {
		r.logger.Warn("Failed to trigger reward sync", slog.Any("error", err))
	}
}

// SyncAll runs one reconciliation pass. Individual credit failures are
// logged and left for the next pass; only local read failures are returned.
func (r *RewardSync) SyncAll(ctx context.Context) error {
	defer r.metrics.RewardSyncRun()

	var errs []error
	if err := r.redriveBrackets(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.syncChallenges(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.syncMatches(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Completed bracket challenges whose advance failed after commit.
func (r *RewardSync) redriveBrackets(ctx context.Context) error {
	pending, err := r.stores.Challenges.ListUnadvanced(ctx, r.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list unadvanced challenges: %w", err)
	}

	for i := range pending {
		c := &pending[i]
		if err := r.brackets.AdvanceFromChallenge(ctx, c); err != nil {
			r.logger.ErrorContext(ctx, "Failed to re-drive bracket advance",
				slog.String("challenge_id", c.ID.String()),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func (r *RewardSync) syncChallenges(ctx context.Context) error {
	unsynced, err := r.stores.Challenges.ListUnsynced(ctx, r.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list unsynced challenges: %w", err)
	}

	for _, c := range unsynced {
		if c.WinnerID == nil {
			continue
		}
		credits := r.opts.Policy.ChallengePayout(c.ID, *c.WinnerID, c.LoserID(), c.Stake)
		r.settle(ctx, c.ID, credits, func(tx *sqlx.Tx) (bool, error) {
			return r.stores.Challenges.MarkSyncedTx(ctx, tx, c.ID)
		})
	}
	return nil
}

func (r *RewardSync) syncMatches(ctx context.Context) error {
	unsynced, err := r.stores.Tournaments.ListUnsyncedMatches(ctx, r.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list unsynced matches: %w", err)
	}

	brackets := make(map[uuid.UUID]*bracket.Bracket)
	for _, m := range unsynced {
		br, ok := brackets[m.TournamentID]
		if !ok {
			br, err = r.loadBracket(ctx, m.TournamentID)
			if err != nil {
				r.logger.ErrorContext(ctx, "Failed to load bracket for reward sync",
					slog.String("tournament_id", m.TournamentID.String()),
					slog.Any("error", err),
				)
				continue
			}
			brackets[m.TournamentID] = br
		}

		credits := r.opts.Policy.PlacementPayout(m.ID, br.Placements(m.ID))
		r.settle(ctx, m.ID, credits, func(tx *sqlx.Tx) (bool, error) {
			return r.stores.Tournaments.MarkMatchSyncedTx(ctx, tx, m.ID)
		})
	}
	return nil
}

func (r *RewardSync) loadBracket(ctx context.Context, tournamentID uuid.UUID) (*bracket.Bracket, error) {
	t, err := r.stores.Tournaments.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	matches, err := r.stores.Tournaments.GetMatches(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return bracket.NewBracket(t, matches), nil
}

// settle sends every credit for one item, then marks the item synced and
// books the points in one transaction. Points are only booked by the call
// that flips the flag, so a crash between the ledger call and the commit is
// safe to replay against the idempotent ledger.
func (r *RewardSync) settle(ctx context.Context, id uuid.UUID, credits []reward.Credit, mark func(tx *sqlx.Tx) (bool, error)) {
	for _, credit := range credits {
		ack, err := r.credit(ctx, credit)
		if err != nil {
			r.metrics.RewardCredit("failed")
			r.logger.WarnContext(ctx, "Reward credit failed, will retry",
				slog.String("match_id", credit.MatchID.String()),
				slog.String("player_id", credit.PlayerID.String()),
				slog.Int64("amount", credit.Amount),
				slog.Any("error", err),
			)
			return
		}
		if ack.Duplicate {
			r.metrics.RewardCredit("duplicate")
		} else {
			r.metrics.RewardCredit("credited")
		}
	}

	err := store.RunInTx(ctx, r.stores.DB, func(tx *sqlx.Tx) error {
		flipped, err := mark(tx)
		if err != nil || !flipped {
			return err
		}
		for _, credit := range credits {
			if err := r.stores.Players.AddPointsTx(ctx, tx, credit.PlayerID, credit.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark rewards synced",
			slog.String("id", id.String()),
			slog.Any("error", err),
		)
		return
	}

	if len(credits) > 0 {
		r.logger.InfoContext(ctx, "Rewards synced", slog.String("id", id.String()), slog.Int("credits", len(credits)))
	}
}

func (r *RewardSync) credit(ctx context.Context, c reward.Credit) (reward.Ack, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	ack, err := r.ledger.Credit(ctx, c.MatchID, c.PlayerID, c.Amount)
	if err != nil && !errors.Is(err, reward.ErrRewardSyncFailed) {
		err = fmt.Errorf("%w: %v", reward.ErrRewardSyncFailed, err)
	}
	return ack, err
}
