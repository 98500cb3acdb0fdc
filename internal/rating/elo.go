package rating

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrInvalidTable = errors.New("invalid rating table")
	ErrNonFinite    = errors.New("rating update is not finite")
)

// KBand applies K to every stake at or above MinStake, up to the next band.
type KBand struct {
	MinStake int64   `yaml:"min_stake" json:"min_stake"`
	K        float64 `yaml:"k" json:"k"`
}

// KTable is sorted by MinStake ascending. Stakes below the first band use
// the first band's K.
type KTable []KBand

func NewKTable(bands []KBand) (KTable, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: at least one K band is required", ErrInvalidTable)
	}

	table := make(KTable, len(bands))
	copy(table, bands)
	sort.Slice(table, func(i, j int) bool {
		return table[i].MinStake < table[j].MinStake
	})

	for i, band := range table {
		if math.IsNaN(band.K) || math.IsInf(band.K, 0) || band.K <= 0 {
			return nil, fmt.Errorf("%w: K for stake %d must be a positive number", ErrInvalidTable, band.MinStake)
		}
		if i > 0 && table[i-1].MinStake == band.MinStake {
			return nil, fmt.Errorf("%w: duplicate stake bracket %d", ErrInvalidTable, band.MinStake)
		}
	}

	return table, nil
}

func (t KTable) For(stake int64) float64 {
	k := t[0].K
	for _, band := range t {
		if stake < band.MinStake {
			break
		}
		k = band.K
	}
	return k
}

type Result struct {
	ExpectedA float64 `json:"expected_a"`
	K         float64 `json:"k"`
	DeltaA    int     `json:"delta_a"`
	DeltaB    int     `json:"delta_b"`
}

// Engine computes zero-sum Elo deltas. It holds no state besides its
// K table, so the same inputs always give the same result.
type Engine struct {
	kTable KTable
}

func NewEngine(kTable KTable) *Engine {
	return &Engine{kTable: kTable}
}

// Expected is the probability that a player rated ra beats one rated rb.
func Expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

func (e *Engine) Compute(ratingA, ratingB int, stake int64, aWon bool) (Result, error) {
	k := e.kTable.For(stake)
	expected := Expected(ratingA, ratingB)

	outcome := 0.0
	if aWon {
		outcome = 1.0
	}

	delta := math.Round(k * (outcome - expected))
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return Result{}, fmt.Errorf("%w: ratings %d/%d with K %.2f", ErrNonFinite, ratingA, ratingB, k)
	}

	deltaA := int(delta)
	return Result{
		ExpectedA: expected,
		K:         k,
		DeltaA:    deltaA,
		DeltaB:    -deltaA,
	}, nil
}
