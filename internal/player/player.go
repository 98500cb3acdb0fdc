package player

import (
	"time"

	"github.com/google/uuid"
)

type Player struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Name   string    `db:"name" json:"name"`
	Rating int       `db:"rating" json:"rating"`
	Tier   string    `db:"tier" json:"tier"`
	// Reward points credited by the ledger
	Points    int64     `db:"points" json:"points"`
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Transition names the event a rating application belongs to.
type Transition string

const TransitionChallengeCompleted Transition = "challenge_completed"

// RatingChange is one applied rating delta. The challenge, transition and
// player triple is unique so a delta is never applied twice.
type RatingChange struct {
	ChallengeID  uuid.UUID  `db:"challenge_id" json:"challenge_id"`
	Transition   Transition `db:"transition" json:"transition"`
	PlayerID     uuid.UUID  `db:"player_id" json:"player_id"`
	OpponentID   uuid.UUID  `db:"opponent_id" json:"opponent_id"`
	RatingBefore int        `db:"rating_before" json:"rating_before"`
	RatingAfter  int        `db:"rating_after" json:"rating_after"`
	Delta        int        `db:"delta" json:"delta"`
	Expected     float64    `db:"expected" json:"expected"`
	K            float64    `db:"k_factor" json:"k_factor"`
	TierBefore   string     `db:"tier_before" json:"tier_before"`
	TierAfter    string     `db:"tier_after" json:"tier_after"`
	AppliedAt    time.Time  `db:"applied_at" json:"applied_at"`
}
