package revenue

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// tier is one parsed revenue bracket. Boundary rule: lower bound inclusive,
// upper bound exclusive; a trailing "+" in the key denotes an open-ended
// top bracket. Under this rule 100000 falls in "100000+", not "0-100000".
type tier struct {
	key   string
	lower float64
	upper float64 // ignored when open
	open  bool
	rate  float64
}

// parseTiers converts a tier map into brackets sorted by lower bound.
// Unparseable keys are skipped and reported as notes; a malformed tier
// never aborts a batch run.
func parseTiers(m map[string]float64) ([]tier, []string) {
	tiers := make([]tier, 0, len(m))
	var notes []string

	for key, rate := range m {
		t, err := parseTierKey(key)
		if err != nil {
			notes = append(notes, fmt.Sprintf("skipping tier %q: %v", key, err))
			continue
		}
		t.rate = rate
		tiers = append(tiers, t)
	}

	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].lower != tiers[j].lower {
			return tiers[i].lower < tiers[j].lower
		}
		return tiers[i].key < tiers[j].key
	})

	return tiers, notes
}

// parseTierKey parses "lower-upper" or "lower+" range strings.
func parseTierKey(key string) (tier, error) {
	s := strings.TrimSpace(key)
	if s == "" {
		return tier{}, fmt.Errorf("empty range")
	}

	if strings.HasSuffix(s, "+") {
		lower, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "+")), 64)
		if err != nil {
			return tier{}, fmt.Errorf("non-numeric lower bound")
		}
		return tier{key: key, lower: lower, open: true}, nil
	}

	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return tier{}, fmt.Errorf("expected \"lower-upper\" or \"lower+\"")
	}

	lower, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return tier{}, fmt.Errorf("non-numeric lower bound")
	}
	upper, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return tier{}, fmt.Errorf("non-numeric upper bound")
	}
	if upper <= lower {
		return tier{}, fmt.Errorf("upper bound must exceed lower bound")
	}

	return tier{key: key, lower: lower, upper: upper}, nil
}

// portion returns how much of value falls inside the bracket.
func (t tier) portion(value float64) float64 {
	if value <= t.lower {
		return 0
	}
	if t.open || value < t.upper {
		return value - t.lower
	}
	return t.upper - t.lower
}

// ValidateTiers checks that every tier key parses. Used at configuration
// load time, where malformed definitions are fatal rather than skipped.
func ValidateTiers(m map[string]float64) error {
	for key := range m {
		if _, err := parseTierKey(key); err != nil {
			return fmt.Errorf("tier %q: %v", key, err)
		}
	}
	return nil
}
