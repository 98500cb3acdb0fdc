package store

import "github.com/jmoiron/sqlx"

// Stores bundles the per-record stores sharing one database handle.
type Stores struct {
	DB          *sqlx.DB
	Players     *PlayerStore
	Challenges  *ChallengeStore
	Tournaments *TournamentStore
}

func New(db *sqlx.DB) *Stores {
	return &Stores{
		DB:          db,
		Players:     NewPlayerStore(db),
		Challenges:  NewChallengeStore(db),
		Tournaments: NewTournamentStore(db),
	}
}
