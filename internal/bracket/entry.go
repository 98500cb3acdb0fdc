package bracket

import "github.com/google/uuid"

type Entry struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournament_id"`
	PlayerID     uuid.UUID `db:"player_id" json:"player_id"`
	Seed         int       `db:"seed" json:"seed"`
}
