package reward

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestChallengePayout(t *testing.T) {
	matchID, winner, loser := uuid.New(), uuid.New(), uuid.New()

	testCases := []struct {
		name     string
		share    float64
		stake    int64
		expected []Credit
	}{
		{
			name:  "winner takes all",
			share: 1,
			stake: 10,
			expected: []Credit{
				{MatchID: matchID, PlayerID: winner, Amount: 20},
			},
		},
		{
			name:  "split pot",
			share: 0.75,
			stake: 10,
			expected: []Credit{
				{MatchID: matchID, PlayerID: winner, Amount: 15},
				{MatchID: matchID, PlayerID: loser, Amount: 5},
			},
		},
		{
			name:     "free match",
			share:    0.75,
			stake:    0,
			expected: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			credits := Policy{WinnerShare: tc.share}.ChallengePayout(matchID, winner, loser, tc.stake)
			assert.Equal(t, tc.expected, credits)

			var total int64
			for _, c := range credits {
				total += c.Amount
			}
			assert.Equal(t, 2*tc.stake, total, "the pot is paid out in full")
		})
	}
}

func TestPlacementPayout(t *testing.T) {
	matchID, first, second, third := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	policy := Policy{PlacementBonus: map[int]int64{1: 100, 2: 50}}

	credits := policy.PlacementPayout(matchID, map[uuid.UUID]int{first: 1, second: 2, third: 3})
	assert.ElementsMatch(t, []Credit{
		{MatchID: matchID, PlayerID: first, Amount: 100},
		{MatchID: matchID, PlayerID: second, Amount: 50},
	}, credits)

	assert.Empty(t, policy.PlacementPayout(matchID, nil))
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, Policy{WinnerShare: 0.5, PlacementBonus: map[int]int64{1: 10}}.Validate())
	assert.Error(t, Policy{WinnerShare: 1.5}.Validate())
	assert.Error(t, Policy{WinnerShare: -0.1}.Validate())
	assert.Error(t, Policy{WinnerShare: 1, PlacementBonus: map[int]int64{0: 10}}.Validate())
	assert.Error(t, Policy{WinnerShare: 1, PlacementBonus: map[int]int64{1: -10}}.Validate())
}
