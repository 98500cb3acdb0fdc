package bracket

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	// Waiting for at least one input slot.
	MatchPending  MatchStatus = "pending"
	MatchReady    MatchStatus = "ready"
	MatchFinished MatchStatus = "finished"
	// A reset final that turned out not to be needed.
	MatchVoid MatchStatus = "void"
)

type BracketSide string

const (
	WinnersSide BracketSide = "winners"
	LosersSide  BracketSide = "losers"
	FinalsSide  BracketSide = "finals"
)

// SourceKind says where a match slot gets its player from.
type SourceKind string

const (
	SourceNone   SourceKind = "none"
	SourceSeed   SourceKind = "seed"
	SourceWinner SourceKind = "winner"
	SourceLoser  SourceKind = "loser"
)

type Match struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournament_id"`

	// Position in the tournament for reconstructing the view
	BracketSide BracketSide `db:"bracket_side" json:"bracket_side"`
	RoundNumber int         `db:"round_number" json:"round_number"`
	MatchOrder  int         `db:"match_order" json:"match_order"`

	Slot1Source SourceKind `db:"slot_1_source" json:"slot_1_source"`
	Slot1FromID *uuid.UUID `db:"slot_1_from_id" json:"slot_1_from_id,omitempty"`
	Slot2Source SourceKind `db:"slot_2_source" json:"slot_2_source"`
	Slot2FromID *uuid.UUID `db:"slot_2_from_id" json:"slot_2_from_id,omitempty"`

	Player1ID *uuid.UUID `db:"player_1_id" json:"player_1_id,omitempty"`
	Player2ID *uuid.UUID `db:"player_2_id" json:"player_2_id,omitempty"`

	Status   MatchStatus `db:"status" json:"status"`
	WinnerID *uuid.UUID  `db:"winner_id" json:"winner_id,omitempty"`
	LoserID  *uuid.UUID  `db:"loser_id" json:"loser_id,omitempty"`

	WinnerNextMatchID *uuid.UUID `db:"winner_next_match_id" json:"winner_next_match_id,omitempty"`
	WinnerNextSlot    *int       `db:"winner_next_slot" json:"winner_next_slot,omitempty"`

	LoserNextMatchID *uuid.UUID `db:"loser_next_match_id" json:"loser_next_match_id,omitempty"`
	LoserNextSlot    *int       `db:"loser_next_slot" json:"loser_next_slot,omitempty"`

	ChallengeID  *uuid.UUID `db:"challenge_id" json:"challenge_id,omitempty"`
	Stake        int64      `db:"stake" json:"stake"`
	IsBye        bool       `db:"is_bye" json:"is_bye"`
	RewardSynced bool       `db:"reward_synced" json:"reward_synced"`

	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (m *Match) Resolved() bool {
	return m.Status == MatchFinished || m.Status == MatchVoid
}

// Slot returns 1 or 2 for a player seated in the match, 0 otherwise.
func (m *Match) Slot(playerID uuid.UUID) int {
	switch {
	case m.Player1ID != nil && *m.Player1ID == playerID:
		return 1
	case m.Player2ID != nil && *m.Player2ID == playerID:
		return 2
	}
	return 0
}

func (m *Match) player(slot int) *uuid.UUID {
	if slot == 1 {
		return m.Player1ID
	}
	return m.Player2ID
}

func (m *Match) seat(slot int, playerID uuid.UUID) {
	id := playerID
	if slot == 1 {
		m.Player1ID = &id
	} else {
		m.Player2ID = &id
	}
}

func (m *Match) source(slot int) (SourceKind, *uuid.UUID) {
	if slot == 1 {
		return m.Slot1Source, m.Slot1FromID
	}
	return m.Slot2Source, m.Slot2FromID
}

func (m *Match) IsWinner(slot int) bool {
	p := m.player(slot)
	return m.Status == MatchFinished && p != nil && m.WinnerID != nil && *m.WinnerID == *p
}

func (m *Match) IsLoser(slot int) bool {
	p := m.player(slot)
	return m.Status == MatchFinished && p != nil && m.LoserID != nil && *m.LoserID == *p
}
