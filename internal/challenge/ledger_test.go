package challenge

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerAppend(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ledger := NewLedger(uuid.New(), a, b, nil)
	now := time.Now().UTC()

	score, err := ledger.Append(1, a, Score{Challenger: 1}, now)
	require.NoError(t, err)
	assert.Equal(t, Score{Challenger: 1}, score)

	score, err = ledger.Append(2, b, Score{Challenger: 1, Opponent: 1}, now)
	require.NoError(t, err)
	assert.Equal(t, Score{Challenger: 1, Opponent: 1}, score)

	racks := ledger.Racks()
	require.Len(t, racks, 2)
	for i, r := range racks {
		assert.Equal(t, i+1, r.RackNumber)
	}
}

func TestLedgerAppend_Rejections(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	now := time.Now().UTC()

	testCases := []struct {
		name       string
		rackNumber int
		winner     uuid.UUID
		totals     Score
		wantErr    error
	}{
		{name: "gap", rackNumber: 3, winner: a, totals: Score{Challenger: 2, Opponent: 0}, wantErr: ErrOutOfOrderRack},
		{name: "repeat", rackNumber: 1, winner: a, totals: Score{Challenger: 2, Opponent: 0}, wantErr: ErrOutOfOrderRack},
		{name: "point to the wrong side", rackNumber: 2, winner: a, totals: Score{Challenger: 1, Opponent: 1}, wantErr: ErrInconsistentTotals},
		{name: "two points at once", rackNumber: 2, winner: a, totals: Score{Challenger: 3, Opponent: 0}, wantErr: ErrInconsistentTotals},
		{name: "unchanged totals", rackNumber: 2, winner: b, totals: Score{Challenger: 1, Opponent: 0}, wantErr: ErrInconsistentTotals},
		{name: "outsider wins", rackNumber: 2, winner: uuid.New(), totals: Score{Challenger: 1, Opponent: 1}, wantErr: ErrInvalidTransition},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := NewLedger(uuid.New(), a, b, nil)
			_, err := ledger.Append(1, a, Score{Challenger: 1}, now)
			require.NoError(t, err)

			score, err := ledger.Append(tc.rackNumber, tc.winner, tc.totals, now)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, Score{Challenger: 1}, score)
			assert.Equal(t, 1, ledger.Len(), "rejected rack must not be recorded")
		})
	}
}

func TestRaceWinner_Handicap(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	now := time.Now().UTC()

	// a races to 5, b races to 3
	ledger := NewLedger(uuid.New(), a, b, nil)
	total := Score{}
	rack := 0
	play := func(winner uuid.UUID) {
		t.Helper()
		rack++
		if winner == a {
			total.Challenger++
		} else {
			total.Opponent++
		}
		_, err := ledger.Append(rack, winner, total, now)
		require.NoError(t, err)
	}

	for range 4 {
		play(a)
	}
	for range 2 {
		play(b)
	}
	_, decided := ledger.RaceWinner(3, 2, 0)
	assert.False(t, decided)

	// 4-3: b has reached its target but trails
	play(b)
	_, decided = ledger.RaceWinner(3, 2, 0)
	assert.False(t, decided, "a side behind on racks cannot win")

	// 4-4: level, still open
	play(b)
	_, decided = ledger.RaceWinner(3, 2, 0)
	assert.False(t, decided)

	play(a)
	winner, decided := ledger.RaceWinner(3, 2, 0)
	require.True(t, decided)
	assert.Equal(t, a, winner)
	assert.Equal(t, Score{Challenger: 5, Opponent: 4}, ledger.Score())
}

func TestRaceWinner_HandicappedSideLeads(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	now := time.Now().UTC()

	ledger := NewLedger(uuid.New(), a, b, nil)
	for i, total := range []Score{{Opponent: 1}, {Opponent: 2}, {Opponent: 3}} {
		_, err := ledger.Append(i+1, b, total, now)
		require.NoError(t, err)
	}

	winner, decided := ledger.RaceWinner(3, 2, 0)
	require.True(t, decided)
	assert.Equal(t, b, winner)
}

func TestVerify(t *testing.T) {
	id, a, b := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	good := []RackResult{
		{RackNumber: 1, WinnerID: a, ChallengerTotal: 1, OpponentTotal: 0, RecordedAt: now},
		{RackNumber: 2, WinnerID: b, ChallengerTotal: 1, OpponentTotal: 1, RecordedAt: now},
	}
	assert.NoError(t, Verify(id, a, b, good))

	bad := []RackResult{
		{RackNumber: 1, WinnerID: a, ChallengerTotal: 1, OpponentTotal: 0, RecordedAt: now},
		{RackNumber: 3, WinnerID: b, ChallengerTotal: 1, OpponentTotal: 1, RecordedAt: now},
	}
	assert.ErrorIs(t, Verify(id, a, b, bad), ErrOutOfOrderRack)
}
