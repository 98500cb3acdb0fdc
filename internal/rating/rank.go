package rating

import (
	"fmt"
	"sort"
	"strings"
)

type Tier struct {
	Name      string `yaml:"name" json:"name"`
	MinRating int    `yaml:"min_rating" json:"min_rating"`
}

// Classifier maps a rating onto ascending threshold bands. The lowest tier
// catches every rating below the next threshold, including ratings below its
// own MinRating.
type Classifier struct {
	tiers []Tier
}

func NewClassifier(tiers []Tier) (*Classifier, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: at least one rank tier is required", ErrInvalidTable)
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinRating < sorted[j].MinRating
	})

	seen := make(map[string]bool, len(sorted))
	for i, tier := range sorted {
		name := strings.TrimSpace(tier.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tier at %d has no name", ErrInvalidTable, tier.MinRating)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate tier %q", ErrInvalidTable, name)
		}
		if i > 0 && sorted[i-1].MinRating == tier.MinRating {
			return nil, fmt.Errorf("%w: tiers %q and %q share threshold %d", ErrInvalidTable, sorted[i-1].Name, name, tier.MinRating)
		}
		seen[name] = true
		sorted[i].Name = name
	}

	return &Classifier{tiers: sorted}, nil
}

// Rank returns the index of the tier for rating; higher is better.
func (c *Classifier) Rank(rating int) int {
	for i := len(c.tiers) - 1; i > 0; i-- {
		if rating >= c.tiers[i].MinRating {
			return i
		}
	}
	return 0
}

func (c *Classifier) Classify(rating int) Tier {
	return c.tiers[c.Rank(rating)]
}

func (c *Classifier) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}
