package reward

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Policy decides how much each side of a match is credited.
type Policy struct {
	// Fraction of the pot (both stakes) paid to the winner; the loser keeps the rest.
	WinnerShare float64 `yaml:"winner_share"`
	// Bonus per final placement, keyed by place (1, 2, 3).
	PlacementBonus map[int]int64 `yaml:"placement_bonus"`
}

func (p Policy) Validate() error {
	if math.IsNaN(p.WinnerShare) || p.WinnerShare < 0 || p.WinnerShare > 1 {
		return fmt.Errorf("winner_share must be between 0 and 1, got %v", p.WinnerShare)
	}
	for place, bonus := range p.PlacementBonus {
		if place < 1 {
			return fmt.Errorf("placement %d must be at least 1", place)
		}
		if bonus < 0 {
			return fmt.Errorf("bonus for placement %d must not be negative", place)
		}
	}
	return nil
}

// Credit is one payment to send to the ledger.
type Credit struct {
	MatchID  uuid.UUID
	PlayerID uuid.UUID
	Amount   int64
}

// ChallengePayout splits the pot of a finished challenge. Zero amounts are
// left out.
func (p Policy) ChallengePayout(matchID, winnerID, loserID uuid.UUID, stake int64) []Credit {
	pot := 2 * stake
	winnerCut := int64(math.Round(float64(pot) * p.WinnerShare))

	var credits []Credit
	if winnerCut > 0 {
		credits = append(credits, Credit{MatchID: matchID, PlayerID: winnerID, Amount: winnerCut})
	}
	if rest := pot - winnerCut; rest > 0 {
		credits = append(credits, Credit{MatchID: matchID, PlayerID: loserID, Amount: rest})
	}
	return credits
}

// PlacementPayout credits the placement bonus for each placed player.
func (p Policy) PlacementPayout(matchID uuid.UUID, places map[uuid.UUID]int) []Credit {
	var credits []Credit
	for playerID, place := range places {
		if bonus := p.PlacementBonus[place]; bonus > 0 {
			credits = append(credits, Credit{MatchID: matchID, PlayerID: playerID, Amount: bonus})
		}
	}
	return credits
}
