package challenge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDeclined   Status = "declined"
	StatusExpired    Status = "expired"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeclined || s == StatusExpired
}

type Challenge struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ChallengerID uuid.UUID `db:"challenger_id" json:"challenger_id"`
	OpponentID   uuid.UUID `db:"opponent_id" json:"opponent_id"`

	Stake              int64 `db:"stake" json:"stake"`
	RaceTo             int   `db:"race_to" json:"race_to"`
	ChallengerHandicap int   `db:"challenger_handicap" json:"challenger_handicap"`
	OpponentHandicap   int   `db:"opponent_handicap" json:"opponent_handicap"`

	Status          Status     `db:"status" json:"status"`
	ChallengerScore int        `db:"challenger_score" json:"challenger_score"`
	OpponentScore   int        `db:"opponent_score" json:"opponent_score"`
	WinnerID        *uuid.UUID `db:"winner_id" json:"winner_id,omitempty"`

	// Back-reference only; the bracket owns the match.
	BracketMatchID *uuid.UUID `db:"bracket_match_id" json:"bracket_match_id,omitempty"`

	ChallengerConfirmed bool `db:"challenger_confirmed" json:"challenger_confirmed"`
	OpponentConfirmed   bool `db:"opponent_confirmed" json:"opponent_confirmed"`
	RewardSynced        bool `db:"reward_synced" json:"reward_synced"`

	Version     int64      `db:"version" json:"version"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedAt  *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	Racks []RackResult `db:"-" json:"racks"`
}

type Params struct {
	ChallengerID       uuid.UUID
	OpponentID         uuid.UUID
	Stake              int64
	RaceTo             int
	ChallengerHandicap int
	OpponentHandicap   int
	BracketMatchID     *uuid.UUID
}

func New(p Params, now time.Time, ttl time.Duration) (*Challenge, error) {
	switch {
	case p.ChallengerID == uuid.Nil || p.OpponentID == uuid.Nil:
		return nil, fmt.Errorf("%w: both players are required", ErrInvalidChallenge)
	case p.ChallengerID == p.OpponentID:
		return nil, fmt.Errorf("%w: a player cannot challenge themselves", ErrInvalidChallenge)
	case p.Stake < 0:
		return nil, fmt.Errorf("%w: stake must not be negative", ErrInvalidChallenge)
	case p.RaceTo < 1:
		return nil, fmt.Errorf("%w: race must be to at least 1 rack", ErrInvalidChallenge)
	case p.RaceTo+p.ChallengerHandicap < 1 || p.RaceTo+p.OpponentHandicap < 1:
		return nil, fmt.Errorf("%w: handicap leaves a side with no racks to win", ErrInvalidChallenge)
	case ttl <= 0:
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidChallenge)
	}

	return &Challenge{
		ID:                 uuid.New(),
		ChallengerID:       p.ChallengerID,
		OpponentID:         p.OpponentID,
		Stake:              p.Stake,
		RaceTo:             p.RaceTo,
		ChallengerHandicap: p.ChallengerHandicap,
		OpponentHandicap:   p.OpponentHandicap,
		Status:             StatusPending,
		BracketMatchID:     p.BracketMatchID,
		Version:            1,
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
	}, nil
}

func (c *Challenge) IsParticipant(playerID uuid.UUID) bool {
	return playerID == c.ChallengerID || playerID == c.OpponentID
}

// Target is the number of racks playerID needs, handicap included.
func (c *Challenge) Target(playerID uuid.UUID) int {
	if playerID == c.ChallengerID {
		return c.RaceTo + c.ChallengerHandicap
	}
	return c.RaceTo + c.OpponentHandicap
}

func (c *Challenge) Ledger() *Ledger {
	return NewLedger(c.ID, c.ChallengerID, c.OpponentID, c.Racks)
}

// RaceWinner evaluates the race from the ledger, never from reported scores.
func (c *Challenge) RaceWinner() (uuid.UUID, bool) {
	return c.Ledger().RaceWinner(c.RaceTo, c.ChallengerHandicap, c.OpponentHandicap)
}

func (c *Challenge) LoserID() uuid.UUID {
	if c.WinnerID == nil {
		return uuid.Nil
	}
	if *c.WinnerID == c.ChallengerID {
		return c.OpponentID
	}
	return c.ChallengerID
}

// Expirable reports whether the challenge was never played and its expiry
// passed.
func (c *Challenge) Expirable(now time.Time) bool {
	if !now.After(c.ExpiresAt) {
		return false
	}
	return c.Status == StatusPending || (c.Status == StatusAccepted && len(c.Racks) == 0)
}

func (c *Challenge) Expire(now time.Time) error {
	if !c.Expirable(now) {
		return fmt.Errorf("%w: cannot expire a %s challenge", ErrInvalidTransition, c.Status)
	}
	c.Status = StatusExpired
	return nil
}

func (c *Challenge) Accept(playerID uuid.UUID, now time.Time) error {
	if err := c.respond(playerID, now); err != nil {
		return err
	}
	c.Status = StatusAccepted
	c.AcceptedAt = &now
	return nil
}

func (c *Challenge) Decline(playerID uuid.UUID, now time.Time) error {
	if err := c.respond(playerID, now); err != nil {
		return err
	}
	c.Status = StatusDeclined
	return nil
}

func (c *Challenge) respond(playerID uuid.UUID, now time.Time) error {
	if c.Expirable(now) {
		return ErrExpiredChallenge
	}
	if c.Status != StatusPending {
		return fmt.Errorf("%w: challenge is %s, not pending", ErrInvalidTransition, c.Status)
	}
	if playerID != c.OpponentID {
		return fmt.Errorf("%w: only the challenged player can respond", ErrInvalidTransition)
	}
	return nil
}

// ReportRack appends the next rack. The first rack moves an accepted
// challenge into play.
func (c *Challenge) ReportRack(rackNumber int, winner uuid.UUID, totals Score, now time.Time) (RackResult, error) {
	if c.Expirable(now) {
		return RackResult{}, ErrExpiredChallenge
	}
	if c.Status != StatusAccepted && c.Status != StatusInProgress {
		return RackResult{}, fmt.Errorf("%w: cannot report racks on a %s challenge", ErrInvalidTransition, c.Status)
	}
	if _, decided := c.RaceWinner(); decided {
		return RackResult{}, fmt.Errorf("%w: race is already decided", ErrInvalidTransition)
	}

	ledger := c.Ledger()
	score, err := ledger.Append(rackNumber, winner, totals, now)
	if err != nil {
		return RackResult{}, err
	}

	racks := ledger.Racks()
	c.Racks = racks
	c.ChallengerScore = score.Challenger
	c.OpponentScore = score.Opponent
	c.Status = StatusInProgress
	return racks[len(racks)-1], nil
}

type ConfirmOutcome int

const (
	// ConfirmUnchanged means the player had already confirmed.
	ConfirmUnchanged ConfirmOutcome = iota
	ConfirmRecorded
	ConfirmCompleted
)

// Confirm records playerID's acknowledgment of the ledger result. The
// challenge completes once both players have acknowledged.
func (c *Challenge) Confirm(playerID uuid.UUID, now time.Time) (ConfirmOutcome, error) {
	if c.Status != StatusInProgress {
		return ConfirmUnchanged, fmt.Errorf("%w: cannot confirm a %s challenge", ErrInvalidTransition, c.Status)
	}
	if !c.IsParticipant(playerID) {
		return ConfirmUnchanged, fmt.Errorf("%w: only participants can confirm", ErrInvalidTransition)
	}

	winner, decided := c.RaceWinner()
	if !decided {
		return ConfirmUnchanged, fmt.Errorf("%w: race is not finished (%d-%d)", ErrInvalidTransition, c.ChallengerScore, c.OpponentScore)
	}

	confirmed := &c.OpponentConfirmed
	if playerID == c.ChallengerID {
		confirmed = &c.ChallengerConfirmed
	}
	if *confirmed {
		return ConfirmUnchanged, nil
	}
	*confirmed = true

	if !c.ChallengerConfirmed || !c.OpponentConfirmed {
		return ConfirmRecorded, nil
	}

	c.Status = StatusCompleted
	c.WinnerID = &winner
	c.CompletedAt = &now
	return ConfirmCompleted, nil
}
