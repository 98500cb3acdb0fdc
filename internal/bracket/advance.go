package bracket

import (
	"fmt"

	"github.com/AdamBeresnev/rack-ladder/internal/utils"
	"github.com/google/uuid"
)

// Bracket is an in-memory view of one tournament used to work out what a
// result changes. Callers persist Changed() and the tournament afterwards.
type Bracket struct {
	Tournament *Tournament

	matches map[uuid.UUID]*Match
	order   []uuid.UUID
	changed map[uuid.UUID]bool

	tournamentChanged bool
}

func NewBracket(t *Tournament, matches []Match) *Bracket {
	b := &Bracket{
		Tournament: t,
		matches:    make(map[uuid.UUID]*Match, len(matches)),
		order:      make([]uuid.UUID, 0, len(matches)),
		changed:    make(map[uuid.UUID]bool),
	}
	for _, m := range matches {
		b.matches[m.ID] = &m
		b.order = append(b.order, m.ID)
	}
	return b
}

func (b *Bracket) Match(id uuid.UUID) (*Match, bool) {
	m, ok := b.matches[id]
	return m, ok
}

func (b *Bracket) Matches() []Match {
	out := make([]Match, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.matches[id])
	}
	return out
}

// Changed returns the matches touched since the bracket was loaded.
func (b *Bracket) Changed() []Match {
	var out []Match
	for _, id := range b.order {
		if b.changed[id] {
			out = append(out, *b.matches[id])
		}
	}
	return out
}

func (b *Bracket) TournamentChanged() bool {
	return b.tournamentChanged
}

func (b *Bracket) touch(m *Match) {
	b.changed[m.ID] = true
}

// Marks fully seeded matches ready and plays out seeded byes.
func (b *Bracket) start() error {
	for _, id := range b.order {
		m := b.matches[id]
		if m.Status != MatchPending {
			continue
		}
		if m.IsBye && m.Player1ID != nil {
			if err := b.finish(m, *m.Player1ID, nil); err != nil {
				return err
			}
			continue
		}
		if m.Player1ID != nil && m.Player2ID != nil {
			m.Status = MatchReady
			b.touch(m)
		}
	}
	return nil
}

// Advance records winnerID beating loserID in a ready match and moves both
// players along their links. A match can only be advanced once.
func (b *Bracket) Advance(matchID, winnerID, loserID uuid.UUID) error {
	m, ok := b.matches[matchID]
	if !ok {
		return ErrUnknownMatch
	}
	if m.Resolved() {
		return ErrAlreadyAdvanced
	}
	if m.Status != MatchReady {
		return ErrMatchNotReady
	}

	ws, ls := m.Slot(winnerID), m.Slot(loserID)
	if ws == 0 || ls == 0 || ws == ls {
		return ErrNotInMatch
	}

	return b.finish(m, winnerID, &loserID)
}

func (b *Bracket) finish(m *Match, winnerID uuid.UUID, loserID *uuid.UUID) error {
	m.Status = MatchFinished
	m.WinnerID = utils.Ptr(winnerID)
	m.LoserID = loserID
	b.touch(m)

	// The winners-bracket champion sits in slot 1 of the first final and
	// has not lost yet, so taking it ends the tournament.
	if reset := b.resetFinal(m); reset != nil && m.Slot(winnerID) == 1 {
		reset.Status = MatchVoid
		b.touch(reset)
		b.crown(winnerID)
		return nil
	}

	if m.WinnerNextMatchID == nil {
		b.crown(winnerID)
		return nil
	}

	if err := b.fill(*m.WinnerNextMatchID, *m.WinnerNextSlot, winnerID); err != nil {
		return err
	}
	if loserID != nil && m.LoserNextMatchID != nil {
		if err := b.fill(*m.LoserNextMatchID, *m.LoserNextSlot, *loserID); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bracket) resetFinal(m *Match) *Match {
	if m.BracketSide != FinalsSide || m.RoundNumber != 1 || m.WinnerNextMatchID == nil {
		return nil
	}
	return b.matches[*m.WinnerNextMatchID]
}

func (b *Bracket) crown(playerID uuid.UUID) {
	if b.Tournament == nil {
		return
	}
	b.Tournament.ChampionID = utils.Ptr(playerID)
	b.Tournament.Status = TournamentCompleted
	b.tournamentChanged = true
}

func (b *Bracket) fill(matchID uuid.UUID, slot int, playerID uuid.UUID) error {
	m, ok := b.matches[matchID]
	if !ok {
		return fmt.Errorf("%w: link to unknown match %s", ErrInvalidTopology, matchID)
	}
	if m.player(slot) != nil {
		return fmt.Errorf("%w: match %s slot %d", ErrSlotTaken, m.ID, slot)
	}

	m.seat(slot, playerID)
	b.touch(m)

	if m.IsBye {
		return b.finish(m, playerID, nil)
	}
	if m.Player1ID != nil && m.Player2ID != nil {
		m.Status = MatchReady
	}
	return nil
}

// LinkChallenge attaches the challenge that will decide a ready match
// between playerA and playerB.
func (b *Bracket) LinkChallenge(matchID, challengeID, playerA, playerB uuid.UUID) error {
	m, ok := b.matches[matchID]
	if !ok {
		return ErrUnknownMatch
	}
	if m.Resolved() {
		return ErrAlreadyAdvanced
	}
	if m.Status != MatchReady {
		return ErrMatchNotReady
	}
	sa, sb := m.Slot(playerA), m.Slot(playerB)
	if sa == 0 || sb == 0 || sa == sb {
		return ErrNotInMatch
	}
	if m.ChallengeID != nil {
		if *m.ChallengeID == challengeID {
			return nil
		}
		return ErrAlreadyLinked
	}

	m.ChallengeID = utils.Ptr(challengeID)
	b.touch(m)
	return nil
}
