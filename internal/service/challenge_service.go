package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/bracket"
	"github.com/AdamBeresnev/rack-ladder/internal/challenge"
	"github.com/AdamBeresnev/rack-ladder/internal/metrics"
	"github.com/AdamBeresnev/rack-ladder/internal/player"
	"github.com/AdamBeresnev/rack-ladder/internal/rating"
	"github.com/AdamBeresnev/rack-ladder/internal/store"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ChallengeOptions struct {
	TTL        time.Duration
	MaxRetries int
	Now        func() time.Time
	// Nil uses the global provider
	TracerProvider trace.TracerProvider
	// Called after a challenge completes, typically to wake the reward sync
	OnCompleted func()
}

type ChallengeService struct {
	stores   *store.Stores
	ratings  *rating.Engine
	ranks    *rating.Classifier
	brackets *BracketService
	opts     ChallengeOptions
	logger   *slog.Logger
	metrics  *metrics.Metrics
	retry    retrier
	tracer   trace.Tracer
}

func NewChallengeService(
	stores *store.Stores,
	ratings *rating.Engine,
	ranks *rating.Classifier,
	brackets *BracketService,
	opts ChallengeOptions,
	logger *slog.Logger,
	m *metrics.Metrics,
) *ChallengeService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ChallengeService{
		stores:   stores,
		ratings:  ratings,
		ranks:    ranks,
		brackets: brackets,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		retry:    newRetrier(opts.MaxRetries, m),
		tracer:   newTracer(opts.TracerProvider),
	}
}

func (s *ChallengeService) now() time.Time {
	return s.opts.Now().UTC()
}

type CreateChallengeInput struct {
	ChallengerID       uuid.UUID
	OpponentID         uuid.UUID
	Stake              int64
	RaceTo             int
	ChallengerHandicap int
	OpponentHandicap   int
	// Set when the challenge decides a bracket match. The match then fixes
	// the stake and the race length.
	BracketMatchID *uuid.UUID
}

// Create issues a pending challenge. Linking it to a bracket match happens in
// the same transaction, so a match never ends up with two live challenges.
func (s *ChallengeService) Create(ctx context.Context, in CreateChallengeInput) (*challenge.Challenge, error) {
	ctx, span := s.tracer.Start(ctx, "ChallengeService.Create")
	defer span.End()

	raceTo := in.RaceTo
	if in.BracketMatchID != nil && raceTo == 0 {
		// Replaced by the tournament's race length once the match is loaded
		raceTo = 1
	}

	now := s.now()
	c, err := challenge.New(challenge.Params{
		ChallengerID:       in.ChallengerID,
		OpponentID:         in.OpponentID,
		Stake:              in.Stake,
		RaceTo:             raceTo,
		ChallengerHandicap: in.ChallengerHandicap,
		OpponentHandicap:   in.OpponentHandicap,
		BracketMatchID:     in.BracketMatchID,
	}, now, s.opts.TTL)
	if err != nil {
		return nil, spanError(span, err)
	}

	err = s.retry.do(ctx, "create_challenge", func() error {
		return store.RunInTx(ctx, s.stores.DB, func(tx *sqlx.Tx) error {
			for _, id := range []uuid.UUID{c.ChallengerID, c.OpponentID} {
				if _, err := s.stores.Players.GetPlayerTx(ctx, tx, id); err != nil {
					return fmt.Errorf("player %s: %w", id, err)
				}
			}

			if c.BracketMatchID != nil {
				m, t, err := s.brackets.linkTx(ctx, tx, *c.BracketMatchID, c.ID, c.ChallengerID, c.OpponentID)
				if err != nil {
					return err
				}
				c.Stake = m.Stake
				c.RaceTo = t.RaceTo
				if c.Target(c.ChallengerID) < 1 || c.Target(c.OpponentID) < 1 {
					return fmt.Errorf("%w: handicap leaves a side with no racks to win", challenge.ErrInvalidChallenge)
				}
			}

			err := s.stores.Challenges.CreateChallengeTx(ctx, tx, c)
			if errors.Is(err, store.ErrDuplicate) && c.BracketMatchID != nil {
				return fmt.Errorf("%w: %v", bracket.ErrAlreadyLinked, err)
			}
			return err
		})
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	span.SetAttributes(attribute.String("challenge.id", c.ID.String()))
	s.metrics.Transition(string(c.Status))
	s.logger.InfoContext(ctx, "Challenge created",
		slog.String("challenge_id", c.ID.String()),
		slog.String("challenger_id", c.ChallengerID.String()),
		slog.String("opponent_id", c.OpponentID.String()),
		slog.Int64("stake", c.Stake),
		slog.Int("race_to", c.RaceTo),
	)
	return c, nil
}

// Accept moves a pending challenge to accepted. Only the challenged player may
// accept.
func (s *ChallengeService) Accept(ctx context.Context, id, playerID uuid.UUID, expectedVersion int64) (*challenge.Challenge, error) {
	return s.transition(ctx, "accept", id, expectedVersion, func(tx *sqlx.Tx, c *challenge.Challenge, now time.Time) (bool, error) {
		return true, c.Accept(playerID, now)
	})
}

func (s *ChallengeService) Decline(ctx context.Context, id, playerID uuid.UUID, expectedVersion int64) (*challenge.Challenge, error) {
	return s.transition(ctx, "decline", id, expectedVersion, func(tx *sqlx.Tx, c *challenge.Challenge, now time.Time) (bool, error) {
		if err := c.Decline(playerID, now); err != nil {
			return false, err
		}
		return true, s.unlink(ctx, tx, c)
	})
}

type RackReport struct {
	ChallengeID     uuid.UUID
	PlayerID        uuid.UUID
	RackNumber      int
	WinnerID        uuid.UUID
	ChallengerTotal int
	OpponentTotal   int
	ExpectedVersion int64
}

// ReportRack appends one rack to the challenge ledger. Either participant
// may report.
func (s *ChallengeService) ReportRack(ctx context.Context, r RackReport) (*challenge.Challenge, error) {
	return s.transition(ctx, "report_rack", r.ChallengeID, r.ExpectedVersion, func(tx *sqlx.Tx, c *challenge.Challenge, now time.Time) (bool, error) {
		if !c.IsParticipant(r.PlayerID) {
			return false, fmt.Errorf("%w: only participants can report racks", challenge.ErrInvalidTransition)
		}

		totals := challenge.Score{Challenger: r.ChallengerTotal, Opponent: r.OpponentTotal}
		rack, err := c.ReportRack(r.RackNumber, r.WinnerID, totals, now)
		if err != nil {
			return false, err
		}
		return true, s.stores.Challenges.InsertRackTx(ctx, tx, rack)
	})
}

// ConfirmResult records a participant's acknowledgment of the finished race.
// The second acknowledgment completes the challenge and applies the rating
// change in the same transaction. Confirming twice changes nothing.
func (s *ChallengeService) ConfirmResult(ctx context.Context, id, playerID uuid.UUID, expectedVersion int64) (*challenge.Challenge, error) {
	var delta int

	c, err := s.transition(ctx, "confirm", id, expectedVersion, func(tx *sqlx.Tx, c *challenge.Challenge, now time.Time) (bool, error) {
		outcome, err := c.Confirm(playerID, now)
		if err != nil {
			return false, err
		}

		switch outcome {
		case challenge.ConfirmUnchanged:
			return false, nil
		case challenge.ConfirmCompleted:
			delta, err = s.applyRatings(ctx, tx, c, now)
			if err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil || c.Status != challenge.StatusCompleted {
		return c, err
	}

	if delta != 0 {
		s.metrics.RatingDelta(delta)
	}
	s.afterCompletion(ctx, c)
	return c, nil
}

// Bracket advancement runs in its own transaction after the result is
// committed. A failure here is retried by the reward sync pass.
func (s *ChallengeService) afterCompletion(ctx context.Context, c *challenge.Challenge) {
	if c.BracketMatchID != nil && s.brackets != nil {
		if err := s.brackets.AdvanceFromChallenge(ctx, c); err != nil {
			s.logger.ErrorContext(ctx, "Failed to advance bracket match",
				slog.String("challenge_id", c.ID.String()),
				slog.String("match_id", c.BracketMatchID.String()),
				slog.Any("error", err),
			)
		}
	}
	if s.opts.OnCompleted != nil {
		s.opts.OnCompleted()
	}
}

// applyRatings moves both ratings and records the change. A completion whose
// change is already on record is skipped, which makes replays harmless.
func (s *ChallengeService) applyRatings(ctx context.Context, tx *sqlx.Tx, c *challenge.Challenge, now time.Time) (int, error) {
	applied, err := s.stores.Players.HasRatingApplicationTx(ctx, tx, c.ID, player.TransitionChallengeCompleted)
	if err != nil {
		return 0, err
	}
	if applied {
		s.logger.WarnContext(ctx, "Rating already applied, skipping", slog.String("challenge_id", c.ID.String()))
		return 0, nil
	}

	challenger, err := s.stores.Players.GetPlayerTx(ctx, tx, c.ChallengerID)
	if err != nil {
		return 0, err
	}
	opponent, err := s.stores.Players.GetPlayerTx(ctx, tx, c.OpponentID)
	if err != nil {
		return 0, err
	}

	res, err := s.ratings.Compute(challenger.Rating, opponent.Rating, c.Stake, *c.WinnerID == challenger.ID)
	if err != nil {
		return 0, err
	}

	changes := []player.RatingChange{
		s.rerate(c.ID, challenger, opponent.ID, res.DeltaA, res.ExpectedA, res.K, now),
		s.rerate(c.ID, opponent, challenger.ID, res.DeltaB, 1-res.ExpectedA, res.K, now),
	}
	if err := s.stores.Players.UpdateRatingTx(ctx, tx, challenger); err != nil {
		return 0, err
	}
	if err := s.stores.Players.UpdateRatingTx(ctx, tx, opponent); err != nil {
		return 0, err
	}
	if err := s.stores.Players.InsertRatingChangesTx(ctx, tx, changes); err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "Ratings applied",
		slog.String("challenge_id", c.ID.String()),
		slog.Float64("k", res.K),
		slog.Int("challenger_delta", res.DeltaA),
		slog.Int("opponent_delta", res.DeltaB),
	)
	return res.DeltaA, nil
}

// rerate moves p by delta, reclassifies it and returns the audit row.
func (s *ChallengeService) rerate(challengeID uuid.UUID, p *player.Player, opponentID uuid.UUID, delta int, expected, k float64, now time.Time) player.RatingChange {
	change := player.RatingChange{
		ChallengeID:  challengeID,
		Transition:   player.TransitionChallengeCompleted,
		PlayerID:     p.ID,
		OpponentID:   opponentID,
		RatingBefore: p.Rating,
		Delta:        delta,
		Expected:     expected,
		K:            k,
		TierBefore:   p.Tier,
		AppliedAt:    now,
	}

	p.Rating += delta
	p.Tier = s.ranks.Classify(p.Rating).Name

	change.RatingAfter = p.Rating
	change.TierAfter = p.Tier
	return change
}

// GetChallenge returns a snapshot of the challenge, expiring it first if its
// time ran out.
func (s *ChallengeService) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	c, err := s.stores.Challenges.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.expireIfDue(ctx, c)
}

// ListPlayerChallenges expires the player's overdue challenges before
// querying, so the status filter and the limit see current statuses.
func (s *ChallengeService) ListPlayerChallenges(ctx context.Context, playerID uuid.UUID, status challenge.Status, limit int) ([]challenge.Challenge, error) {
	overdue, err := s.stores.Challenges.ListOverdue(ctx, playerID, s.now())
	if err != nil {
		return nil, err
	}
	for _, id := range overdue {
		if _, err := s.transition(ctx, "expire", id, 0, nil); err != nil && !errors.Is(err, challenge.ErrExpiredChallenge) {
			return nil, err
		}
	}

	challenges, err := s.stores.Challenges.ListPlayerChallenges(ctx, playerID, status, limit)
	if err != nil {
		return nil, err
	}

	// Anything that ran out between the two queries
	out := challenges[:0]
	for i := range challenges {
		c, err := s.expireIfDue(ctx, &challenges[i])
		if err != nil {
			return nil, err
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *ChallengeService) expireIfDue(ctx context.Context, c *challenge.Challenge) (*challenge.Challenge, error) {
	if !c.Expirable(s.now()) {
		return c, nil
	}

	expired, err := s.transition(ctx, "expire", c.ID, 0, nil)
	if errors.Is(err, challenge.ErrExpiredChallenge) {
		return expired, nil
	}
	return expired, err
}

// applyFunc mutates a loaded challenge and writes whatever else the
// transition needs. Returning false means nothing changed.
type applyFunc func(tx *sqlx.Tx, c *challenge.Challenge, now time.Time) (bool, error)

// transition runs one challenge state change in a transaction: load, check
// the caller's version token, expire lazily, apply, then write back
// conditionally on the loaded version. A zero expectedVersion retries lost
// races; a stale token fails straight away.
func (s *ChallengeService) transition(ctx context.Context, op string, id uuid.UUID, expectedVersion int64, apply applyFunc) (*challenge.Challenge, error) {
	ctx, span := s.tracer.Start(ctx, "ChallengeService."+op)
	defer span.End()
	span.SetAttributes(attribute.String("challenge.id", id.String()))

	var (
		result  *challenge.Challenge
		expired bool
		dirty   bool
		before  challenge.Status
	)

	err := s.retry.do(ctx, op, func() error {
		expired, dirty = false, false
		return store.RunInTx(ctx, s.stores.DB, func(tx *sqlx.Tx) error {
			c, err := s.stores.Challenges.GetChallengeTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if expectedVersion != 0 && c.Version != expectedVersion {
				return backoff.Permanent(fmt.Errorf("%w: challenge is at version %d, not %d",
					store.ErrConcurrentModification, c.Version, expectedVersion))
			}
			before = c.Status
			result = c

			now := s.now()
			if c.Expirable(now) {
				if err := c.Expire(now); err != nil {
					return err
				}
				if err := s.unlink(ctx, tx, c); err != nil {
					return err
				}
				expired, dirty = true, true
				return s.stores.Challenges.UpdateChallengeTx(ctx, tx, c)
			}
			if apply == nil {
				return nil
			}

			changed, err := apply(tx, c, now)
			if err != nil || !changed {
				return err
			}
			dirty = true
			return s.stores.Challenges.UpdateChallengeTx(ctx, tx, c)
		})
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	if dirty && result.Status != before {
		s.metrics.Transition(string(result.Status))
		s.logger.InfoContext(ctx, "Challenge transitioned",
			slog.String("challenge_id", result.ID.String()),
			slog.String("from", string(before)),
			slog.String("to", string(result.Status)),
			slog.Int64("version", result.Version),
		)
	}
	if expired {
		return result, spanError(span, challenge.ErrExpiredChallenge)
	}
	return result, nil
}

func (s *ChallengeService) unlink(ctx context.Context, tx *sqlx.Tx, c *challenge.Challenge) error {
	if c.BracketMatchID == nil || s.brackets == nil {
		return nil
	}
	return s.brackets.unlinkTx(ctx, tx, *c.BracketMatchID, c.ID)
}
