package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/AdamBeresnev/rack-ladder/internal/bracket"
	"github.com/AdamBeresnev/rack-ladder/internal/reward"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyLedger fails every call while down is set.
type flakyLedger struct {
	mu    sync.Mutex
	down  bool
	calls int
	next  reward.Ledger
}

func (l *flakyLedger) Credit(ctx context.Context, matchID, playerID uuid.UUID, amount int64) (reward.Ack, error) {
	l.mu.Lock()
	l.calls++
	down := l.down
	l.mu.Unlock()

	if down {
		return reward.Ack{}, fmt.Errorf("%w: ledger returned 503", reward.ErrRewardSyncFailed)
	}
	return l.next.Credit(ctx, matchID, playerID, amount)
}

func (l *flakyLedger) setDown(down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.down = down
}

func TestRewardSync_RetriesAfterLedgerFailure(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	a, b := env.registerPlayer(t), env.registerPlayer(t)

	c, err := env.challenges.Create(ctx, CreateChallengeInput{ChallengerID: a.ID, OpponentID: b.ID, Stake: 10, RaceTo: 2})
	require.NoError(t, err)
	env.completeRace(t, c, repeat(b.ID, 2))

	memory := reward.NewMemoryLedger()
	ledger := &flakyLedger{down: true, next: memory}
	rs := env.newRewardSync(ledger)

	require.NoError(t, rs.SyncAll(ctx))
	assert.Equal(t, 1, ledger.calls)

	unsynced, err := env.stores.Challenges.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unsynced, 1, "a failed credit leaves the challenge unsynced")

	loser, err := env.players.GetPlayer(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, loser.Points)

	ledger.setDown(false)
	require.NoError(t, rs.SyncAll(ctx))

	unsynced, err = env.stores.Challenges.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	// Winner share 1 sends the whole pot of 2 x 10 to the winner
	winner, err := env.players.GetPlayer(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), winner.Points)
	assert.Equal(t, int64(20), memory.Balance(b.ID))

	require.NoError(t, rs.SyncAll(ctx))
	winner, err = env.players.GetPlayer(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), winner.Points, "a synced challenge is never paid twice")
}

func TestRewardSync_ReplayAfterLostAck(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	a, b := env.registerPlayer(t), env.registerPlayer(t)

	c, err := env.challenges.Create(ctx, CreateChallengeInput{ChallengerID: a.ID, OpponentID: b.ID, Stake: 5, RaceTo: 1})
	require.NoError(t, err)
	c = env.completeRace(t, c, []uuid.UUID{a.ID})

	// The ledger already has the credit but the local mark never happened
	memory := reward.NewMemoryLedger()
	_, err = memory.Credit(ctx, c.ID, a.ID, 10)
	require.NoError(t, err)

	require.NoError(t, env.newRewardSync(memory).SyncAll(ctx))

	winner, err := env.players.GetPlayer(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), winner.Points)
	assert.Equal(t, int64(10), memory.Balance(a.ID))
}

func TestRewardSync_PlacementBonuses(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	data, _ := env.createTournament(t, CreateTournamentInput{Name: "Bonus Cup", Type: bracket.DoubleElimination}, 2)
	top, bottom := data.Entries[0].PlayerID, data.Entries[1].PlayerID

	wb := findStoredMatch(t, data, bracket.WinnersSide, 1, 1)
	_, err := env.brackets.AdvanceMatch(ctx, wb.ID, top, bottom)
	require.NoError(t, err)

	gf := findStoredMatch(t, data, bracket.FinalsSide, 1, 1)
	_, err = env.brackets.AdvanceMatch(ctx, gf.ID, top, bottom)
	require.NoError(t, err)

	memory := reward.NewMemoryLedger()
	require.NoError(t, env.newRewardSync(memory).SyncAll(ctx))

	champion, err := env.players.GetPlayer(ctx, top)
	require.NoError(t, err)
	runnerUp, err := env.players.GetPlayer(ctx, bottom)
	require.NoError(t, err)

	assert.Equal(t, env.cfg.Rewards.PlacementBonus[1], champion.Points)
	assert.Equal(t, env.cfg.Rewards.PlacementBonus[2], runnerUp.Points)

	unsynced, err := env.stores.Tournaments.ListUnsyncedMatches(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestRewardSync_RedrivesBracketAdvance(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	data, _ := env.createTournament(t, CreateTournamentInput{Name: "Redrive", Type: bracket.SingleElimination}, 2)
	final := findStoredMatch(t, data, bracket.WinnersSide, 1, 1)
	top, bottom := *final.Player1ID, *final.Player2ID

	c, err := env.challenges.Create(ctx, CreateChallengeInput{ChallengerID: top, OpponentID: bottom, BracketMatchID: &final.ID})
	require.NoError(t, err)
	c = env.playRace(t, c, repeat(top, 3))

	// Confirm through a service that cannot reach the bracket, as if the
	// advance after commit had failed
	detached := *env.challenges
	detached.brackets = nil
	_, err = detached.ConfirmResult(ctx, c.ID, top, 0)
	require.NoError(t, err)
	_, err = detached.ConfirmResult(ctx, c.ID, bottom, 0)
	require.NoError(t, err)

	pending, err := env.stores.Challenges.ListUnadvanced(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, env.newRewardSync(reward.NewMemoryLedger()).SyncAll(ctx))

	m, err := env.stores.Tournaments.GetMatch(ctx, final.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchFinished, m.Status)
	assert.Equal(t, top, *m.WinnerID)

	pending, err = env.stores.Challenges.ListUnadvanced(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRewardSync_StartStop(t *testing.T) {
	env := setupTestEnv(t)
	rs := env.newRewardSync(reward.NewMemoryLedger())

	rs.Trigger()
	require.NoError(t, rs.Start())
	require.NoError(t, rs.Start())
	rs.Trigger()
	require.NoError(t, rs.Stop())
	require.NoError(t, rs.Stop())
}
