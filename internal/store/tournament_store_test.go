package store

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/bracket"
	"github.com/AdamBeresnev/rack-ladder/internal/challenge"
	"github.com/AdamBeresnev/rack-ladder/internal/utils"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestTournament(t *testing.T, s *Stores, numPlayers int) (*bracket.Tournament, []bracket.Entry, []bracket.Match) {
	t.Helper()

	tournament := &bracket.Tournament{
		ID:        uuid.New(),
		Name:      "Test Tournament",
		Slug:      "test-tournament-" + uuid.NewString()[:8],
		Status:    bracket.TournamentStarted,
		Type:      bracket.DoubleElimination,
		Seeding:   bracket.SeedingCompact,
		Stake:     20,
		RaceTo:    3,
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}

	entries := make([]bracket.Entry, numPlayers)
	for i := range entries {
		p := createTestPlayer(t, s, 1500)
		entries[i] = bracket.Entry{ID: uuid.New(), TournamentID: tournament.ID, PlayerID: p.ID, Seed: i + 1}
	}

	matches, err := bracket.Generate(tournament, entries)
	require.NoError(t, err)
	for i := range matches {
		matches[i].CreatedAt = tournament.CreatedAt
	}

	ctx := context.Background()
	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) error {
		if err := s.Tournaments.CreateTournament(ctx, tx, tournament); err != nil {
			return err
		}
		if err := s.Tournaments.CreateEntries(ctx, tx, entries); err != nil {
			return err
		}
		return s.Tournaments.CreateMatches(ctx, tx, matches)
	}))

	return tournament, entries, matches
}

func TestCreateTournament(t *testing.T) {
	s := setupTestStores(t)
	ctx := context.Background()

	tournament, entries, matches := createTestTournament(t, s, 4)

	fetched, err := s.Tournaments.GetTournament(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, tournament.Name, fetched.Name)
	assert.Equal(t, tournament.Type, fetched.Type)
	assert.Equal(t, tournament.Seeding, fetched.Seeding)
	assert.Nil(t, fetched.ChampionID)
	assert.WithinDuration(t, tournament.CreatedAt, fetched.CreatedAt, time.Second)

	bySlug, err := s.Tournaments.GetTournamentBySlug(ctx, tournament.Slug)
	require.NoError(t, err)
	assert.Equal(t, tournament.ID, bySlug.ID)

	fetchedEntries, err := s.Tournaments.GetEntries(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, entries, fetchedEntries)

	fetchedMatches, err := s.Tournaments.GetMatches(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, fetchedMatches, len(matches))

	sortByID := cmpopts.SortSlices(func(a, b bracket.Match) bool { return a.ID.String() < b.ID.String() })
	ignoreTime := cmpopts.IgnoreFields(bracket.Match{}, "CreatedAt")
	if diff := cmp.Diff(matches, fetchedMatches, sortByID, ignoreTime); diff != "" {
		t.Errorf("matches changed on the round trip (-want +got):\n%s", diff)
	}

	list, err := s.Tournaments.ListTournaments(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateEntries_DuplicatePlayer(t *testing.T) {
	s := setupTestStores(t)
	ctx := context.Background()
	tournament, entries, _ := createTestTournament(t, s, 2)

	dup := bracket.Entry{ID: uuid.New(), TournamentID: tournament.ID, PlayerID: entries[0].PlayerID, Seed: 3}
	err := inTx(t, s.DB, func(tx *sqlx.Tx) error {
		return s.Tournaments.CreateEntries(ctx, tx, []bracket.Entry{dup})
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUpdateMatchTx_SerializesSlotWrites(t *testing.T) {
	s := setupTestStores(t)
	ctx := context.Background()
	_, entries, matches := createTestTournament(t, s, 4)

	var target bracket.Match
	for _, m := range matches {
		if m.BracketSide == bracket.WinnersSide && m.RoundNumber == 2 {
			target = m
		}
	}
	require.NotEqual(t, uuid.Nil, target.ID)

	// Two results racing into the same slot from the same snapshot
	first, second := target, target
	first.Player1ID = utils.Ptr(entries[0].PlayerID)
	second.Player1ID = utils.Ptr(entries[3].PlayerID)

	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) error {
		return s.Tournaments.UpdateMatchTx(ctx, tx, &first)
	}))
	err := inTx(t, s.DB, func(tx *sqlx.Tx) error {
		return s.Tournaments.UpdateMatchTx(ctx, tx, &second)
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	fetched, err := s.Tournaments.GetMatch(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, target.Version+1, fetched.Version)
	require.NotNil(t, fetched.Player1ID)
	assert.Equal(t, entries[0].PlayerID, *fetched.Player1ID)
}

func TestUnsyncedAndUnadvanced(t *testing.T) {
	s := setupTestStores(t)
	ctx := context.Background()
	tournament, _, matches := createTestTournament(t, s, 2)

	var first bracket.Match
	for _, m := range matches {
		if m.BracketSide == bracket.WinnersSide {
			first = m
		}
	}
	require.Equal(t, bracket.MatchReady, first.Status)

	c, err := challenge.New(challenge.Params{
		ChallengerID:   *first.Player1ID,
		OpponentID:     *first.Player2ID,
		Stake:          tournament.Stake,
		RaceTo:         1,
		BracketMatchID: &first.ID,
	}, time.Now().UTC(), time.Hour)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, c.Accept(c.OpponentID, now))
	rack, err := c.ReportRack(1, c.ChallengerID, challenge.Score{Challenger: 1}, now)
	require.NoError(t, err)
	_, err = c.Confirm(c.ChallengerID, now)
	require.NoError(t, err)
	_, err = c.Confirm(c.OpponentID, now)
	require.NoError(t, err)
	require.Equal(t, challenge.StatusCompleted, c.Status)

	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) error {
		if err := s.Challenges.CreateChallengeTx(ctx, tx, c); err != nil {
			return err
		}
		return s.Challenges.InsertRackTx(ctx, tx, rack)
	}))

	unadvanced, err := s.Challenges.ListUnadvanced(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unadvanced, 1)
	assert.Equal(t, c.ID, unadvanced[0].ID)

	unsynced, err := s.Challenges.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1)

	br := bracket.NewBracket(tournament, matches)
	require.NoError(t, br.Advance(first.ID, c.ChallengerID, c.OpponentID))
	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) error {
		for _, m := range br.Changed() {
			if err := s.Tournaments.UpdateMatchTx(ctx, tx, &m); err != nil {
				return err
			}
		}
		return nil
	}))

	unadvanced, err = s.Challenges.ListUnadvanced(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unadvanced)

	played, err := s.Tournaments.ListUnsyncedMatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, played, 1)
	assert.Equal(t, first.ID, played[0].ID)

	var marked bool
	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) (err error) {
		marked, err = s.Tournaments.MarkMatchSyncedTx(ctx, tx, first.ID)
		return err
	}))
	assert.True(t, marked)

	played, err = s.Tournaments.ListUnsyncedMatches(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, played)
}
