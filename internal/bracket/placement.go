package bracket

import "github.com/google/uuid"

// Placements returns the final standings decided by a finished match, keyed
// by player. The match that crowns the champion places its winner first and
// its loser second; the losers-bracket final places its loser third. Other
// matches place nobody.
func (b *Bracket) Placements(matchID uuid.UUID) map[uuid.UUID]int {
	m, ok := b.matches[matchID]
	if !ok || m.Status != MatchFinished || m.IsBye || m.WinnerID == nil {
		return nil
	}

	places := make(map[uuid.UUID]int)

	if b.decides(m) {
		places[*m.WinnerID] = 1
		if m.LoserID != nil {
			places[*m.LoserID] = 2
		}
		return places
	}

	if m.BracketSide == LosersSide && m.WinnerNextMatchID != nil && m.LoserID != nil {
		if next, ok := b.matches[*m.WinnerNextMatchID]; ok && next.BracketSide == FinalsSide {
			places[*m.LoserID] = 3
			return places
		}
	}

	return nil
}

func (b *Bracket) decides(m *Match) bool {
	t := b.Tournament
	if t == nil || t.ChampionID == nil || *t.ChampionID != *m.WinnerID {
		return false
	}
	if m.WinnerNextMatchID == nil {
		return true
	}
	next, ok := b.matches[*m.WinnerNextMatchID]
	return ok && next.Status == MatchVoid
}
