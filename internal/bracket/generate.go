package bracket

import (
	"fmt"
	"math"
	"sort"

	"github.com/AdamBeresnev/rack-ladder/internal/utils"
	"github.com/google/uuid"
)

// Gets the nearest power of 2 while rounding up, so with input 5 it returns 8 and so on
func calcBracketSize(count int) int {
	if count <= 0 {
		return 0
	}

	// Log2 -> Ceil -> 2^^log2 to round up
	log2 := math.Ceil(math.Log2(float64(count)))
	return int(math.Pow(2, log2))
}

// Standard seed folding: 1v8, 4v5, 2v7, 3v6 for a draw of 8. Indices are 0-based.
func generateRound1Pairs(bracketSize int) [][2]int {
	if bracketSize == 0 {
		return [][2]int{}
	}

	rounds := []int{0}
	for len(rounds) < bracketSize {
		var nextRound []int
		currentCount := len(rounds) * 2

		for _, seed := range rounds {
			nextRound = append(nextRound, seed)
			nextRound = append(nextRound, (currentCount-1)-seed)
		}
		rounds = nextRound
	}

	pairs := make([][2]int, 0, bracketSize/2)
	for i := 0; i < len(rounds); i += 2 {
		matchup := [2]int{rounds[i], rounds[i+1]}
		pairs = append(pairs, matchup)
	}

	return pairs
}

type source struct {
	kind   SourceKind
	player uuid.UUID
	match  *Match
}

var noSource = source{kind: SourceNone}

func seedOf(playerID uuid.UUID) source { return source{kind: SourceSeed, player: playerID} }
func winnerOf(m *Match) source         { return source{kind: SourceWinner, match: m} }
func loserOf(m *Match) source          { return source{kind: SourceLoser, match: m} }

type roundResult struct {
	winners []source
	losers  []source
}

type builder struct {
	tournamentID uuid.UUID
	stake        int64
	matches      []*Match
}

func (b *builder) add(side BracketSide, round, order int, s1, s2 source) *Match {
	m := &Match{
		ID:           uuid.New(),
		TournamentID: b.tournamentID,
		BracketSide:  side,
		RoundNumber:  round,
		MatchOrder:   order,
		Slot1Source:  SourceNone,
		Slot2Source:  SourceNone,
		Status:       MatchPending,
		Stake:        b.stake,
		IsBye:        s2.kind == SourceNone,
		Version:      1,
	}
	b.connect(m, 1, s1)
	b.connect(m, 2, s2)
	b.matches = append(b.matches, m)
	return m
}

func (b *builder) connect(m *Match, slot int, s source) {
	var from *uuid.UUID
	switch s.kind {
	case SourceNone:
		return
	case SourceSeed:
		m.seat(slot, s.player)
	case SourceWinner:
		from = utils.Ptr(s.match.ID)
		s.match.WinnerNextMatchID = utils.Ptr(m.ID)
		s.match.WinnerNextSlot = utils.Ptr(slot)
	case SourceLoser:
		from = utils.Ptr(s.match.ID)
		s.match.LoserNextMatchID = utils.Ptr(m.ID)
		s.match.LoserNextSlot = utils.Ptr(slot)
	}

	if slot == 1 {
		m.Slot1Source, m.Slot1FromID = s.kind, from
	} else {
		m.Slot2Source, m.Slot2FromID = s.kind, from
	}
}

func (b *builder) playRound(side BracketSide, round int, pairs [][2]source) roundResult {
	var res roundResult
	for i, pair := range pairs {
		m := b.add(side, round, i+1, pair[0], pair[1])
		res.winners = append(res.winners, winnerOf(m))
		if !m.IsBye {
			res.losers = append(res.losers, loserOf(m))
		}
	}
	return res
}

// Pairs neighbours in order. An odd source out plays a bye match at the end of the round.
func (b *builder) pairRound(side BracketSide, round int, srcs []source) roundResult {
	pairs := make([][2]source, 0, (len(srcs)+1)/2)
	for i := 0; i < len(srcs); i += 2 {
		if i+1 < len(srcs) {
			pairs = append(pairs, [2]source{srcs[i], srcs[i+1]})
		} else {
			pairs = append(pairs, [2]source{srcs[i], noSource})
		}
	}
	return b.playRound(side, round, pairs)
}

// Drops winners-bracket losers onto the losers-bracket survivors. The
// incoming list is reversed so players who just met are kept apart.
func (b *builder) crossRound(round int, survivors, incoming []source) roundResult {
	n := max(len(survivors), len(incoming))
	pairs := make([][2]source, 0, n)
	for i := 0; i < n; i++ {
		s1, s2 := noSource, noSource
		if i < len(survivors) {
			s1 = survivors[i]
		}
		if j := len(incoming) - 1 - i; j >= 0 {
			s2 = incoming[j]
		}
		if s1.kind == SourceNone {
			s1, s2 = s2, noSource
		}
		pairs = append(pairs, [2]source{s1, s2})
	}
	return b.playRound(LosersSide, round, pairs)
}

func firstRoundPairs(players []uuid.UUID, seeding Seeding) [][2]source {
	var pairs [][2]source

	if seeding == SeedingPadded {
		for _, pair := range generateRound1Pairs(calcBracketSize(len(players))) {
			s1, s2 := noSource, noSource
			if pair[0] < len(players) {
				s1 = seedOf(players[pair[0]])
			}
			if pair[1] < len(players) {
				s2 = seedOf(players[pair[1]])
			}
			if s1.kind == SourceNone {
				s1, s2 = s2, noSource
			}
			pairs = append(pairs, [2]source{s1, s2})
		}
		return pairs
	}

	rest := players
	if len(rest)%2 == 1 {
		pairs = append(pairs, [2]source{seedOf(rest[0]), noSource})
		rest = rest[1:]
	}
	for i := 0; i < len(rest)/2; i++ {
		pairs = append(pairs, [2]source{seedOf(rest[i]), seedOf(rest[len(rest)-1-i])})
	}
	return pairs
}

// Winners-bracket losers are interleaved with the surviving losers-bracket
// players: one round absorbing the newcomers, one round halving the field.
func (b *builder) losersBracket(losersByRound [][]source) source {
	round := 0
	var survivors []source

	for r, incoming := range losersByRound {
		switch {
		case r == 0:
			survivors = incoming
			if len(survivors) > 1 {
				round++
				survivors = b.pairRound(LosersSide, round, survivors).winners
			}
			continue
		case len(incoming) == 0:
		case len(survivors) == 0:
			survivors = incoming
		default:
			round++
			survivors = b.crossRound(round, survivors, incoming).winners
		}

		if r < len(losersByRound)-1 && len(survivors) > 1 {
			round++
			survivors = b.pairRound(LosersSide, round, survivors).winners
		}
	}

	for len(survivors) > 1 {
		round++
		survivors = b.pairRound(LosersSide, round, survivors).winners
	}
	return survivors[0]
}

// Generate builds every match of the tournament for the given entries and
// plays out round-1 byes. Fewer than two entries produce no matches.
func Generate(t *Tournament, entries []Entry) ([]Match, error) {
	if len(entries) < 2 {
		return nil, nil
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Seed < sorted[j].Seed
	})
	players := make([]uuid.UUID, len(sorted))
	for i, e := range sorted {
		players[i] = e.PlayerID
	}

	b := &builder{tournamentID: t.ID, stake: t.Stake}

	round := 1
	res := b.playRound(WinnersSide, round, firstRoundPairs(players, t.Seeding))
	winners := res.winners
	losersByRound := [][]source{res.losers}

	for len(winners) > 1 {
		round++
		res = b.pairRound(WinnersSide, round, winners)
		winners = res.winners
		losersByRound = append(losersByRound, res.losers)
	}

	if t.Type == DoubleElimination {
		lbChampion := b.losersBracket(losersByRound)
		grandFinal := b.add(FinalsSide, 1, 1, winners[0], lbChampion)
		// The reset is only played if the losers-bracket champion takes the
		// first final, so nobody is out before their second loss.
		b.add(FinalsSide, 2, 1, loserOf(grandFinal), winnerOf(grandFinal))
	}

	matches := make([]Match, len(b.matches))
	for i, m := range b.matches {
		matches[i] = *m
	}

	if err := Validate(matches, sorted); err != nil {
		return nil, err
	}

	br := NewBracket(t, matches)
	if err := br.start(); err != nil {
		return nil, err
	}
	return br.Matches(), nil
}

// Validate checks that every entry is seeded exactly once, that forward links
// and input sources agree, and that no match depends on its own output.
func Validate(matches []Match, entries []Entry) error {
	byID := make(map[uuid.UUID]*Match, len(matches))
	for i := range matches {
		byID[matches[i].ID] = &matches[i]
	}

	seeded := make(map[uuid.UUID]int)
	for i := range matches {
		m := &matches[i]
		for slot := 1; slot <= 2; slot++ {
			kind, from := m.source(slot)
			switch kind {
			case SourceSeed:
				if p := m.player(slot); p != nil {
					seeded[*p]++
				}
			case SourceWinner, SourceLoser:
				if from == nil {
					return fmt.Errorf("%w: match %s slot %d has no feeding match", ErrInvalidTopology, m.ID, slot)
				}
				feeder, ok := byID[*from]
				if !ok {
					return fmt.Errorf("%w: match %s is fed by unknown match %s", ErrInvalidTopology, m.ID, *from)
				}
				next, nextSlot := feeder.WinnerNextMatchID, feeder.WinnerNextSlot
				if kind == SourceLoser {
					next, nextSlot = feeder.LoserNextMatchID, feeder.LoserNextSlot
				}
				if next == nil || *next != m.ID || nextSlot == nil || *nextSlot != slot {
					return fmt.Errorf("%w: match %s slot %d disagrees with its feeder", ErrInvalidTopology, m.ID, slot)
				}
			}
		}
	}

	for _, e := range entries {
		if seeded[e.PlayerID] != 1 {
			return fmt.Errorf("%w: player %s is seeded %d times", ErrInvalidTopology, e.PlayerID, seeded[e.PlayerID])
		}
	}

	// Kahn's algorithm over the forward links
	inbound := make(map[uuid.UUID]int, len(matches))
	for _, m := range matches {
		for _, next := range []*uuid.UUID{m.WinnerNextMatchID, m.LoserNextMatchID} {
			if next != nil {
				inbound[*next]++
			}
		}
	}
	queue := make([]*Match, 0, len(matches))
	for i := range matches {
		if inbound[matches[i].ID] == 0 {
			queue = append(queue, &matches[i])
		}
	}
	visited := 0
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range []*uuid.UUID{m.WinnerNextMatchID, m.LoserNextMatchID} {
			if next == nil {
				continue
			}
			target, ok := byID[*next]
			if !ok {
				return fmt.Errorf("%w: match %s feeds unknown match %s", ErrInvalidTopology, m.ID, *next)
			}
			inbound[*next]--
			if inbound[*next] == 0 {
				queue = append(queue, target)
			}
		}
	}
	if visited != len(matches) {
		return fmt.Errorf("%w: bracket contains a cycle", ErrInvalidTopology)
	}

	return nil
}
