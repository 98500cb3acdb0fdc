package store

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/db/dbtest"
	"github.com/AdamBeresnev/rack-ladder/internal/player"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupTestStores(t *testing.T) *Stores {
	t.Helper()
	return New(dbtest.New(t))
}

func createTestPlayer(t *testing.T, s *Stores, rating int) *player.Player {
	t.Helper()

	p := &player.Player{
		ID:        uuid.New(),
		Name:      gofakeit.Username() + "-" + uuid.NewString()[:8],
		Rating:    rating,
		Tier:      "Bronze",
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Players.CreatePlayer(context.Background(), p))
	return p
}

func inTx(t *testing.T, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	t.Helper()
	return RunInTx(context.Background(), db, fn)
}
