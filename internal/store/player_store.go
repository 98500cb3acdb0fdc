package store

import (
	"context"

	"github.com/AdamBeresnev/rack-ladder/internal/player"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PlayerStore struct {
	db *sqlx.DB
}

const (
	getPlayerQuery    = "SELECT * FROM players WHERE id = ?"
	createPlayerQuery = `
		INSERT INTO players (id, name, rating, tier, points, version, created_at) VALUES
		(:id, :name, :rating, :tier, :points, :version, :created_at)
	`
	updatePlayerRatingQuery = `
		UPDATE players SET
		rating = :rating,
		tier = :tier,
		version = version + 1
		WHERE id = :id AND version = :version
	`
	addPointsQuery = `
		UPDATE players SET
		points = points + ?,
		version = version + 1
		WHERE id = ?
	`
	insertRatingChangeQuery = `
		INSERT INTO rating_applications (challenge_id, transition, player_id, opponent_id, rating_before, rating_after, delta, expected, k_factor, tier_before, tier_after, applied_at)
		VALUES (:challenge_id, :transition, :player_id, :opponent_id, :rating_before, :rating_after, :delta, :expected, :k_factor, :tier_before, :tier_after, :applied_at)
	`
)

func NewPlayerStore(db *sqlx.DB) *PlayerStore {
	return &PlayerStore{db: db}
}

func (s *PlayerStore) CreatePlayer(ctx context.Context, p *player.Player) error {
	_, err := s.db.NamedExecContext(ctx, createPlayerQuery, p)
	return translate(err)
}

func (s *PlayerStore) GetPlayer(ctx context.Context, id uuid.UUID) (*player.Player, error) {
	var p player.Player
	if err := s.db.GetContext(ctx, &p, getPlayerQuery, id); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *PlayerStore) GetPlayerTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*player.Player, error) {
	var p player.Player
	if err := tx.GetContext(ctx, &p, getPlayerQuery, id); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// ListPlayers returns the ladder, best rating first.
func (s *PlayerStore) ListPlayers(ctx context.Context, limit int) ([]player.Player, error) {
	var players []player.Player
	err := s.db.SelectContext(ctx, &players, "SELECT * FROM players ORDER BY rating DESC, name ASC LIMIT ?", limit)
	return players, translate(err)
}

// UpdateRatingTx writes rating and tier if the row still has p.Version, then
// bumps p.Version to match the stored row.
func (s *PlayerStore) UpdateRatingTx(ctx context.Context, tx *sqlx.Tx, p *player.Player) error {
	if err := expectOne(tx.NamedExecContext(ctx, updatePlayerRatingQuery, p)); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (s *PlayerStore) AddPointsTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, amount int64) error {
	res, err := tx.ExecContext(ctx, addPointsQuery, amount, id)
	ok, err := changed(res, err)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *PlayerStore) HasRatingApplicationTx(ctx context.Context, tx *sqlx.Tx, challengeID uuid.UUID, transition player.Transition) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM rating_applications WHERE challenge_id = ? AND transition = ?)",
		challengeID, transition)
	return exists, translate(err)
}

func (s *PlayerStore) InsertRatingChangesTx(ctx context.Context, tx *sqlx.Tx, changes []player.RatingChange) error {
	if len(changes) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, insertRatingChangeQuery, changes)
	return translate(err)
}

func (s *PlayerStore) GetRatingChanges(ctx context.Context, playerID uuid.UUID) ([]player.RatingChange, error) {
	var changes []player.RatingChange
	err := s.db.SelectContext(ctx, &changes,
		"SELECT * FROM rating_applications WHERE player_id = ? ORDER BY applied_at ASC", playerID)
	return changes, translate(err)
}
