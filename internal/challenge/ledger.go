package challenge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Score is a cumulative rack count for both sides of a challenge.
type Score struct {
	Challenger int `json:"challenger"`
	Opponent   int `json:"opponent"`
}

type RackResult struct {
	ChallengeID     uuid.UUID `db:"challenge_id" json:"-"`
	RackNumber      int       `db:"rack_number" json:"rack_number"`
	WinnerID        uuid.UUID `db:"winner_id" json:"winner_id"`
	ChallengerTotal int       `db:"challenger_total" json:"challenger_total"`
	OpponentTotal   int       `db:"opponent_total" json:"opponent_total"`
	RecordedAt      time.Time `db:"recorded_at" json:"recorded_at"`
}

func (r RackResult) Totals() Score {
	return Score{Challenger: r.ChallengerTotal, Opponent: r.OpponentTotal}
}

// Ledger is the append-only rack history of one challenge.
type Ledger struct {
	challengeID  uuid.UUID
	challengerID uuid.UUID
	opponentID   uuid.UUID
	racks        []RackResult
}

func NewLedger(challengeID, challengerID, opponentID uuid.UUID, racks []RackResult) *Ledger {
	l := &Ledger{
		challengeID:  challengeID,
		challengerID: challengerID,
		opponentID:   opponentID,
		racks:        make([]RackResult, len(racks)),
	}
	copy(l.racks, racks)
	return l
}

func (l *Ledger) Score() Score {
	if len(l.racks) == 0 {
		return Score{}
	}
	return l.racks[len(l.racks)-1].Totals()
}

func (l *Ledger) Len() int {
	return len(l.racks)
}

func (l *Ledger) Racks() []RackResult {
	out := make([]RackResult, len(l.racks))
	copy(out, l.racks)
	return out
}

// Append validates the next rack against the previous one and records it.
// Nothing is recorded when an error is returned.
func (l *Ledger) Append(rackNumber int, winner uuid.UUID, totals Score, at time.Time) (Score, error) {
	if want := len(l.racks) + 1; rackNumber != want {
		return l.Score(), fmt.Errorf("%w: got rack %d, expected %d", ErrOutOfOrderRack, rackNumber, want)
	}

	next := l.Score()
	switch winner {
	case l.challengerID:
		next.Challenger++
	case l.opponentID:
		next.Opponent++
	default:
		return l.Score(), fmt.Errorf("%w: rack winner %s is not part of this challenge", ErrInvalidTransition, winner)
	}

	if totals != next {
		return l.Score(), fmt.Errorf("%w: rack %d reported %d-%d, expected %d-%d",
			ErrInconsistentTotals, rackNumber, totals.Challenger, totals.Opponent, next.Challenger, next.Opponent)
	}

	l.racks = append(l.racks, RackResult{
		ChallengeID:     l.challengeID,
		RackNumber:      rackNumber,
		WinnerID:        winner,
		ChallengerTotal: next.Challenger,
		OpponentTotal:   next.Opponent,
		RecordedAt:      at,
	})
	return next, nil
}

// RaceWinner reports the side that reached its handicapped target while
// ahead on racks. With uneven targets a side can reach its own target and
// still trail, in which case play continues.
func (l *Ledger) RaceWinner(raceTo, challengerHandicap, opponentHandicap int) (uuid.UUID, bool) {
	score := l.Score()
	switch {
	case score.Challenger >= raceTo+challengerHandicap && score.Challenger > score.Opponent:
		return l.challengerID, true
	case score.Opponent >= raceTo+opponentHandicap && score.Opponent > score.Challenger:
		return l.opponentID, true
	}
	return uuid.Nil, false
}

// Verify replays a stored rack sequence from scratch.
func Verify(challengeID, challengerID, opponentID uuid.UUID, racks []RackResult) error {
	replay := NewLedger(challengeID, challengerID, opponentID, nil)
	for _, r := range racks {
		if _, err := replay.Append(r.RackNumber, r.WinnerID, r.Totals(), r.RecordedAt); err != nil {
			return err
		}
	}
	return nil
}
