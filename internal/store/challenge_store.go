package store

import (
	"context"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/challenge"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ChallengeStore struct {
	db *sqlx.DB
}

const (
	getChallengeQuery    = "SELECT * FROM challenges WHERE id = ?"
	createChallengeQuery = `
		INSERT INTO challenges (id, challenger_id, opponent_id, stake, race_to, challenger_handicap, opponent_handicap, status,
			challenger_score, opponent_score, winner_id, bracket_match_id, challenger_confirmed, opponent_confirmed,
			reward_synced, version, created_at, expires_at, accepted_at, completed_at)
		VALUES (:id, :challenger_id, :opponent_id, :stake, :race_to, :challenger_handicap, :opponent_handicap, :status,
			:challenger_score, :opponent_score, :winner_id, :bracket_match_id, :challenger_confirmed, :opponent_confirmed,
			:reward_synced, :version, :created_at, :expires_at, :accepted_at, :completed_at)
	`
	updateChallengeQuery = `
		UPDATE challenges SET
		status = :status,
		challenger_score = :challenger_score,
		opponent_score = :opponent_score,
		winner_id = :winner_id,
		challenger_confirmed = :challenger_confirmed,
		opponent_confirmed = :opponent_confirmed,
		accepted_at = :accepted_at,
		completed_at = :completed_at,
		version = version + 1
		WHERE id = :id AND version = :version
	`
	insertRackQuery = `
		INSERT INTO racks (challenge_id, rack_number, winner_id, challenger_total, opponent_total, recorded_at)
		VALUES (:challenge_id, :rack_number, :winner_id, :challenger_total, :opponent_total, :recorded_at)
	`
	getRacksQuery = "SELECT * FROM racks WHERE challenge_id = ? ORDER BY rack_number ASC"
)

func NewChallengeStore(db *sqlx.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func (s *ChallengeStore) CreateChallengeTx(ctx context.Context, tx *sqlx.Tx, c *challenge.Challenge) error {
	_, err := tx.NamedExecContext(ctx, createChallengeQuery, c)
	return translate(err)
}

// GetChallenge loads a challenge together with its rack ledger.
func (s *ChallengeStore) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	return getChallenge(ctx, s.db, id)
}

func (s *ChallengeStore) GetChallengeTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*challenge.Challenge, error) {
	return getChallenge(ctx, tx, id)
}

func getChallenge(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*challenge.Challenge, error) {
	var c challenge.Challenge
	if err := sqlx.GetContext(ctx, q, &c, getChallengeQuery, id); err != nil {
		return nil, translate(err)
	}

	racks := []challenge.RackResult{}
	if err := sqlx.SelectContext(ctx, q, &racks, getRacksQuery, id); err != nil {
		return nil, translate(err)
	}
	c.Racks = racks
	return &c, nil
}

// ListPlayerChallenges returns the challenges playerID takes part in, newest
// first. An empty status matches every status.
func (s *ChallengeStore) ListPlayerChallenges(ctx context.Context, playerID uuid.UUID, status challenge.Status, limit int) ([]challenge.Challenge, error) {
	query := "SELECT * FROM challenges WHERE (challenger_id = ? OR opponent_id = ?)"
	args := []any{playerID, playerID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	var challenges []challenge.Challenge
	if err := s.db.SelectContext(ctx, &challenges, query, args...); err != nil {
		return nil, translate(err)
	}
	if err := s.attachRacks(ctx, challenges); err != nil {
		return nil, err
	}
	return challenges, nil
}

// ListOverdue returns the IDs of playerID's challenges that are still open
// for acceptance past their expiry. Accepted challenges always have no
// racks, since the first rack moves them into play.
func (s *ChallengeStore) ListOverdue(ctx context.Context, playerID uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM challenges
		WHERE (challenger_id = ? OR opponent_id = ?) AND status IN (?, ?) AND expires_at < ?
		ORDER BY expires_at ASC`,
		playerID, playerID, challenge.StatusPending, challenge.StatusAccepted, now)
	return ids, translate(err)
}

// ListUnsynced returns completed challenges whose payout has not been
// acknowledged by the reward ledger.
func (s *ChallengeStore) ListUnsynced(ctx context.Context, limit int) ([]challenge.Challenge, error) {
	var challenges []challenge.Challenge
	err := s.db.SelectContext(ctx, &challenges,
		"SELECT * FROM challenges WHERE status = ? AND reward_synced = 0 ORDER BY completed_at ASC LIMIT ?",
		challenge.StatusCompleted, limit)
	return challenges, translate(err)
}

// ListUnadvanced returns completed bracket challenges whose match still has
// no result.
func (s *ChallengeStore) ListUnadvanced(ctx context.Context, limit int) ([]challenge.Challenge, error) {
	var challenges []challenge.Challenge
	err := s.db.SelectContext(ctx, &challenges, `
		SELECT c.* FROM challenges c
		JOIN matches m ON m.id = c.bracket_match_id
		WHERE c.status = ? AND m.status NOT IN ('finished', 'void')
		ORDER BY c.completed_at ASC LIMIT ?`,
		challenge.StatusCompleted, limit)
	return challenges, translate(err)
}

func (s *ChallengeStore) attachRacks(ctx context.Context, challenges []challenge.Challenge) error {
	if len(challenges) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(challenges))
	index := make(map[uuid.UUID]int, len(challenges))
	for i, c := range challenges {
		ids[i] = c.ID
		index[c.ID] = i
		challenges[i].Racks = []challenge.RackResult{}
	}

	query, args, err := sqlx.In("SELECT * FROM racks WHERE challenge_id IN (?) ORDER BY challenge_id, rack_number", ids)
	if err != nil {
		return err
	}

	var racks []challenge.RackResult
	if err := s.db.SelectContext(ctx, &racks, s.db.Rebind(query), args...); err != nil {
		return translate(err)
	}
	for _, r := range racks {
		i := index[r.ChallengeID]
		challenges[i].Racks = append(challenges[i].Racks, r)
	}
	return nil
}

// UpdateChallengeTx writes the mutable columns if the row still has
// c.Version, then bumps c.Version to match.
func (s *ChallengeStore) UpdateChallengeTx(ctx context.Context, tx *sqlx.Tx, c *challenge.Challenge) error {
	if err := expectOne(tx.NamedExecContext(ctx, updateChallengeQuery, c)); err != nil {
		return err
	}
	c.Version++
	return nil
}

func (s *ChallengeStore) InsertRackTx(ctx context.Context, tx *sqlx.Tx, rack challenge.RackResult) error {
	_, err := tx.NamedExecContext(ctx, insertRackQuery, rack)
	return translate(err)
}

// MarkSyncedTx flips reward_synced and reports whether this call did it.
func (s *ChallengeStore) MarkSyncedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	return changed(tx.ExecContext(ctx,
		"UPDATE challenges SET reward_synced = 1, version = version + 1 WHERE id = ? AND reward_synced = 0", id))
}
