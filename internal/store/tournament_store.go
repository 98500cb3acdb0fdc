package store

import (
	"context"

	"github.com/AdamBeresnev/rack-ladder/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TournamentStore struct {
	db *sqlx.DB
}

const (
	getMatchQuery = "SELECT * FROM matches WHERE id = ?"

	updateMatchQuery = `
		UPDATE matches SET
		player_1_id = :player_1_id,
		player_2_id = :player_2_id,
		status = :status,
		winner_id = :winner_id,
		loser_id = :loser_id,
		challenge_id = :challenge_id,
		version = version + 1
		WHERE id = :id AND version = :version
	`
	updateTournamentQuery = `
		UPDATE tournaments SET
		status = :status,
		champion_id = :champion_id,
		version = version + 1
		WHERE id = :id AND version = :version
	`
)

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

func (s *TournamentStore) CreateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO tournaments (id, name, slug, status, tournament_type, seeding, stake, race_to, champion_id, version, created_at)
        VALUES (:id, :name, :slug, :status, :tournament_type, :seeding, :stake, :race_to, :champion_id, :version, :created_at)`, tournament)
	return translate(err)
}

func (s *TournamentStore) CreateEntries(ctx context.Context, tx *sqlx.Tx, entries []bracket.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO entries (id, tournament_id, player_id, seed)
            VALUES (:id, :tournament_id, :player_id, :seed)`, entries)
	return translate(err)
}

func (s *TournamentStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO matches (id, tournament_id, bracket_side, round_number, match_order,
			slot_1_source, slot_1_from_id, slot_2_source, slot_2_from_id, player_1_id, player_2_id, status, winner_id, loser_id,
			winner_next_match_id, winner_next_slot, loser_next_match_id, loser_next_slot, challenge_id, stake, is_bye, reward_synced, version, created_at)
		VALUES (:id, :tournament_id, :bracket_side, :round_number, :match_order,
			:slot_1_source, :slot_1_from_id, :slot_2_source, :slot_2_from_id, :player_1_id, :player_2_id, :status, :winner_id, :loser_id,
			:winner_next_match_id, :winner_next_slot, :loser_next_match_id, :loser_next_slot, :challenge_id, :stake, :is_bye, :reward_synced, :version, :created_at)`, matches)
	return translate(err)
}

func (s *TournamentStore) GetTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := s.db.GetContext(ctx, &tournament, "SELECT * FROM tournaments WHERE id = ?", id); err != nil {
		return nil, translate(err)
	}
	return &tournament, nil
}

func (s *TournamentStore) GetTournamentTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := tx.GetContext(ctx, &tournament, "SELECT * FROM tournaments WHERE id = ?", id); err != nil {
		return nil, translate(err)
	}
	return &tournament, nil
}

func (s *TournamentStore) GetTournamentBySlug(ctx context.Context, slug string) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := s.db.GetContext(ctx, &tournament, "SELECT * FROM tournaments WHERE slug = ?", slug); err != nil {
		return nil, translate(err)
	}
	return &tournament, nil
}

func (s *TournamentStore) ListTournaments(ctx context.Context, limit int) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments, "SELECT * FROM tournaments ORDER BY created_at DESC LIMIT ?", limit)
	return tournaments, translate(err)
}

func (s *TournamentStore) GetEntries(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Entry, error) {
	var entries []bracket.Entry
	err := s.db.SelectContext(ctx, &entries, "SELECT * FROM entries WHERE tournament_id = ? ORDER BY seed ASC", tournamentID)
	return entries, translate(err)
}

func (s *TournamentStore) GetMatches(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches, "SELECT * FROM matches WHERE tournament_id = ? ORDER BY bracket_side DESC, round_number ASC, match_order ASC", tournamentID)
	return matches, translate(err)
}

func (s *TournamentStore) GetMatchesTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := tx.SelectContext(ctx, &matches, "SELECT * FROM matches WHERE tournament_id = ? ORDER BY bracket_side DESC, round_number ASC, match_order ASC", tournamentID)
	return matches, translate(err)
}

func (s *TournamentStore) GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	if err := s.db.GetContext(ctx, &match, getMatchQuery, id); err != nil {
		return nil, translate(err)
	}
	return &match, nil
}

func (s *TournamentStore) GetMatchTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	if err := tx.GetContext(ctx, &match, getMatchQuery, id); err != nil {
		return nil, translate(err)
	}
	return &match, nil
}

// UpdateMatchTx writes the match state if the row still has m.Version, then
// bumps m.Version. Two results racing into the same downstream slot meet
// here and only one of them wins.
func (s *TournamentStore) UpdateMatchTx(ctx context.Context, tx *sqlx.Tx, m *bracket.Match) error {
	if err := expectOne(tx.NamedExecContext(ctx, updateMatchQuery, m)); err != nil {
		return err
	}
	m.Version++
	return nil
}

func (s *TournamentStore) UpdateTournamentTx(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament) error {
	if err := expectOne(tx.NamedExecContext(ctx, updateTournamentQuery, t)); err != nil {
		return err
	}
	t.Version++
	return nil
}

// ListUnsyncedMatches returns played bracket matches whose placement
// rewards have not been acknowledged.
func (s *TournamentStore) ListUnsyncedMatches(ctx context.Context, limit int) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches,
		"SELECT * FROM matches WHERE status = ? AND is_bye = 0 AND reward_synced = 0 ORDER BY created_at ASC LIMIT ?",
		bracket.MatchFinished, limit)
	return matches, translate(err)
}

func (s *TournamentStore) MarkMatchSyncedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	return changed(tx.ExecContext(ctx,
		"UPDATE matches SET reward_synced = 1, version = version + 1 WHERE id = ? AND reward_synced = 0", id))
}
