package store

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/challenge"
	"github.com/AdamBeresnev/rack-ladder/internal/player"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestChallenge(t *testing.T, s *Stores, a, b *player.Player) *challenge.Challenge {
	t.Helper()

	c, err := challenge.New(challenge.Params{
		ChallengerID: a.ID,
		OpponentID:   b.ID,
		Stake:        10,
		RaceTo:       2,
	}, time.Now().UTC(), time.Hour)
	require.NoError(t, err)

	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) error {
		return s.Challenges.CreateChallengeTx(context.Background(), tx, c)
	}))
	return c
}

func TestChallengeRoundTrip(t *testing.T) {
	s := setupTestStores(t)
	ctx := context.Background()
	a := createTestPlayer(t, s, 1500)
	b := createTestPlayer(t, s, 1500)
	c := createTestChallenge(t, s, a, b)

	fetched, err := s.Challenges.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ChallengerID, fetched.ChallengerID)
	assert.Equal(t, challenge.StatusPending, fetched.Status)
	assert.Equal(t, int64(10), fetched.Stake)
	assert.Empty(t, fetched.Racks)
	assert.Nil(t, fetched.WinnerID)
	assert.WithinDuration(t, c.ExpiresAt, fetched.ExpiresAt, time.Second)

	now := time.Now().UTC()
	require.NoError(t, fetched.Accept(b.ID, now))
	rack, err := fetched.ReportRack(1, a.ID, challenge.Score{Challenger: 1}, now)
	require.NoError(t, err)

	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) error {
		if err := s.Challenges.UpdateChallengeTx(ctx, tx, fetched); err != nil {
			return err
		}
		return s.Challenges.InsertRackTx(ctx, tx, rack)
	}))
	assert.Equal(t, int64(2), fetched.Version)

	reloaded, err := s.Challenges.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusInProgress, reloaded.Status)
	assert.Equal(t, 1, reloaded.ChallengerScore)
	require.Len(t, reloaded.Racks, 1)
	assert.Equal(t, a.ID, reloaded.Racks[0].WinnerID)
	assert.NotNil(t, reloaded.AcceptedAt)

	_, err = s.Challenges.GetChallenge(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateChallengeTx_StaleVersion(t *testing.T) {
	s := setupTestStores(t)
	ctx := context.Background()
	a := createTestPlayer(t, s, 1500)
	b := createTestPlayer(t, s, 1500)
	c := createTestChallenge(t, s, a, b)

	first, err := s.Challenges.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	second, err := s.Challenges.GetChallenge(ctx, c.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, first.Accept(b.ID, now))
	require.NoError(t, second.Decline(b.ID, now))

	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) error {
		return s.Challenges.UpdateChallengeTx(ctx, tx, first)
	}))
	err = inTx(t, s.DB, func(tx *sqlx.Tx) error {
		return s.Challenges.UpdateChallengeTx(ctx, tx, second)
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	reloaded, err := s.Challenges.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusAccepted, reloaded.Status)
}

func TestInsertRackTx_Duplicate(t *testing.T) {
	s := setupTestStores(t)
	ctx := context.Background()
	a := createTestPlayer(t, s, 1500)
	b := createTestPlayer(t, s, 1500)
	c := createTestChallenge(t, s, a, b)

	rack := challenge.RackResult{ChallengeID: c.ID, RackNumber: 1, WinnerID: a.ID, ChallengerTotal: 1, RecordedAt: time.Now().UTC()}
	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) error {
		return s.Challenges.InsertRackTx(ctx, tx, rack)
	}))
	err := inTx(t, s.DB, func(tx *sqlx.Tx) error {
		return s.Challenges.InsertRackTx(ctx, tx, rack)
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestListPlayerChallenges(t *testing.T) {
	s := setupTestStores(t)
	ctx := context.Background()
	a := createTestPlayer(t, s, 1500)
	b := createTestPlayer(t, s, 1500)
	other := createTestPlayer(t, s, 1500)

	first := createTestChallenge(t, s, a, b)
	second := createTestChallenge(t, s, other, a)
	createTestChallenge(t, s, b, other)

	rack := challenge.RackResult{ChallengeID: first.ID, RackNumber: 1, WinnerID: a.ID, ChallengerTotal: 1, RecordedAt: time.Now().UTC()}
	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) error {
		return s.Challenges.InsertRackTx(ctx, tx, rack)
	}))

	list, err := s.Challenges.ListPlayerChallenges(ctx, a.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[uuid.UUID]challenge.Challenge{}
	for _, c := range list {
		byID[c.ID] = c
	}
	assert.Len(t, byID[first.ID].Racks, 1)
	assert.Empty(t, byID[second.ID].Racks)

	pending, err := s.Challenges.ListPlayerChallenges(ctx, a.ID, challenge.StatusCompleted, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListOverdue(t *testing.T) {
	s := setupTestStores(t)
	ctx := context.Background()
	a := createTestPlayer(t, s, 1500)
	b := createTestPlayer(t, s, 1500)

	pending := createTestChallenge(t, s, a, b)
	started := createTestChallenge(t, s, b, a)
	rack := challenge.RackResult{ChallengeID: started.ID, RackNumber: 1, WinnerID: a.ID, OpponentTotal: 1, RecordedAt: time.Now().UTC()}
	started.Status = challenge.StatusInProgress
	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) error {
		if err := s.Challenges.InsertRackTx(ctx, tx, rack); err != nil {
			return err
		}
		return s.Challenges.UpdateChallengeTx(ctx, tx, started)
	}))

	ids, err := s.Challenges.ListOverdue(ctx, a.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, ids, "nothing is past its expiry yet")

	ids, err = s.Challenges.ListOverdue(ctx, a.ID, time.Now().UTC().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pending.ID}, ids)
}

func TestMarkSyncedTx_OnlyOnce(t *testing.T) {
	s := setupTestStores(t)
	ctx := context.Background()
	a := createTestPlayer(t, s, 1500)
	b := createTestPlayer(t, s, 1500)
	c := createTestChallenge(t, s, a, b)

	var first, second bool
	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) (err error) {
		first, err = s.Challenges.MarkSyncedTx(ctx, tx, c.ID)
		return err
	}))
	require.NoError(t, inTx(t, s.DB, func(tx *sqlx.Tx) (err error) {
		second, err = s.Challenges.MarkSyncedTx(ctx, tx, c.ID)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)
}
