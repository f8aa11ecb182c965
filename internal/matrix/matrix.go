// Package matrix expands a job's matrix specification into the ordered set
// of concrete axis-value combinations.
package matrix

import (
	"sort"
	"strings"

	"github.com/vk/pipegrid/internal/config"
)

// Combination is one concrete assignment of values to matrix axes. Keys
// preserves axis declaration order so expansion is deterministic.
type Combination struct {
	Keys   []string
	Values map[string]string
}

// Get returns the value for an axis, or the empty string.
func (c Combination) Get(axis string) string { return c.Values[axis] }

// Empty reports whether the combination has no axes (a job without a
// matrix expands to exactly one empty combination).
func (c Combination) Empty() bool { return len(c.Keys) == 0 }

// Key renders the combination as "v1/v2/..." in axis order, used to build
// instance identifiers.
func (c Combination) Key() string {
	parts := make([]string, len(c.Keys))
	for i, k := range c.Keys {
		parts[i] = c.Values[k]
	}
	return strings.Join(parts, "/")
}

// equal reports whether two combinations assign the same values to the
// same axes.
func (c Combination) equal(other Combination) bool {
	if len(c.Values) != len(other.Values) {
		return false
	}
	for k, v := range c.Values {
		if other.Values[k] != v {
			return false
		}
	}
	return true
}

// matches reports whether the combination satisfies every key of a rule.
// Rules may name a subset of axes; an empty rule matches everything.
func (c Combination) matches(rule config.Rule) bool {
	for k, v := range rule {
		if c.Values[k] != v {
			return false
		}
	}
	return true
}

// Expand produces the ordered combinations of a matrix: the Cartesian
// product in axis declaration order, minus combinations matched by an
// exclude rule, plus include combinations not already produced. A nil
// matrix yields exactly one empty combination.
//
// Rules are applied in declaration order, so a later rule wins over an
// earlier one for the same axis-value key.
func Expand(m *config.Matrix) []Combination {
	if m == nil || len(m.Axes) == 0 {
		return []Combination{{Values: map[string]string{}}}
	}

	keys := make([]string, len(m.Axes))
	for i, axis := range m.Axes {
		keys[i] = axis.Name
	}

	// Cartesian product, first axis varying slowest.
	combos := []Combination{{Keys: keys, Values: map[string]string{}}}
	for _, axis := range m.Axes {
		next := make([]Combination, 0, len(combos)*len(axis.Values))
		for _, base := range combos {
			for _, value := range axis.Values {
				values := make(map[string]string, len(base.Values)+1)
				for k, v := range base.Values {
					values[k] = v
				}
				values[axis.Name] = value
				next = append(next, Combination{Keys: keys, Values: values})
			}
		}
		combos = next
	}

	// Excludes remove every product combination they match.
	if len(m.Excludes) > 0 {
		kept := combos[:0]
		for _, combo := range combos {
			excluded := false
			for _, rule := range m.Excludes {
				if len(rule) > 0 && combo.matches(rule) {
					excluded = true
					break
				}
			}
			if !excluded {
				kept = append(kept, combo)
			}
		}
		combos = kept
	}

	// Includes append combinations not already present, in rule order.
	for _, rule := range m.Includes {
		combo := includeCombination(keys, rule)
		exists := false
		for _, existing := range combos {
			if existing.equal(combo) {
				exists = true
				break
			}
		}
		if !exists {
			combos = append(combos, combo)
		}
	}

	return combos
}

// includeCombination builds a combination from an include rule: declared
// axes keep their declaration order, extra keys follow sorted.
func includeCombination(axisKeys []string, rule config.Rule) Combination {
	keys := make([]string, 0, len(rule))
	for _, k := range axisKeys {
		if _, ok := rule[k]; ok {
			keys = append(keys, k)
		}
	}
	var extra []string
	for k := range rule {
		known := false
		for _, ak := range axisKeys {
			if ak == k {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	values := make(map[string]string, len(rule))
	for k, v := range rule {
		values[k] = v
	}
	return Combination{Keys: keys, Values: values}
}
