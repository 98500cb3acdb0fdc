package bracket

import (
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentDraft     TournamentStatus = "draft"
	TournamentStarted   TournamentStatus = "started"
	TournamentCompleted TournamentStatus = "completed"
)

type TournamentType string

const (
	SingleElimination TournamentType = "single"
	DoubleElimination TournamentType = "double"
)

// Seeding decides how round 1 is laid out.
type Seeding string

const (
	// Players are paired in seed order; an odd count gives the top seed a bye.
	SeedingCompact Seeding = "compact"
	// Players are spread over a power-of-two draw with the remaining slots as byes.
	SeedingPadded Seeding = "padded"
)

type Tournament struct {
	ID         uuid.UUID        `db:"id" json:"id"`
	Name       string           `db:"name" json:"name"`
	Slug       string           `db:"slug" json:"slug"`
	Status     TournamentStatus `db:"status" json:"status"`
	Type       TournamentType   `db:"tournament_type" json:"type"`
	Seeding    Seeding          `db:"seeding" json:"seeding"`
	Stake      int64            `db:"stake" json:"stake"`
	RaceTo     int              `db:"race_to" json:"race_to"`
	ChampionID *uuid.UUID       `db:"champion_id" json:"champion_id,omitempty"`
	Version    int64            `db:"version" json:"version"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}
