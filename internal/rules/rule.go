// Package rules holds the rules that map metric series onto diagram cells
// and the evaluator that turns a series into a discrete level.
package rules

import (
	"cmp"
	"context"
	"slices"

	"github.com/tidwall/match"

	"github.com/dshills/flowpanel/internal/event"
	"github.com/dshills/flowpanel/internal/metric"
)

// Rule binds series matching Pattern to the diagram cells in Cells.
// The level of a cell is computed by Script; what a level looks like is up
// to the drawing engine.
type Rule struct {
	UID     string   `yaml:"uid"`
	Alias   string   `yaml:"alias"`
	Pattern string   `yaml:"pattern"`
	Script  string   `yaml:"script"`
	Cells   []string `yaml:"cells"`
	Order   int      `yaml:"order"`
	Hidden  bool     `yaml:"hidden"`
}

// Kind implements event.Entity.
func (Rule) Kind() event.Kind { return event.KindRule }

// MappingID implements mapping.Target.
func (r Rule) MappingID() string { return r.UID }

// Matches reports whether the series name matches the rule pattern.
// Patterns use * and ? wildcards; an empty pattern matches everything.
func (r Rule) Matches(series string) bool {
	if r.Pattern == "" {
		return true
	}
	return match.Match(series, r.Pattern)
}

// Sort orders rules by Order, then Alias. The sort is stable.
func Sort(rules []Rule) {
	slices.SortStableFunc(rules, func(a, b Rule) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.Alias, b.Alias)
	})
}

// Evaluator computes the level of one rule for one series.
type Evaluator interface {
	Level(ctx context.Context, r Rule, s metric.Series) (int, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, r Rule, s metric.Series) (int, error)

// Level implements Evaluator.
func (f EvaluatorFunc) Level(ctx context.Context, r Rule, s metric.Series) (int, error) {
	return f(ctx, r, s)
}

// Index maps cell ids to the rules targeting them.
type Index struct {
	cells map[string][]Rule
}

// NewIndex builds an index over rules. Hidden rules are left out.
func NewIndex(rules []Rule) *Index {
	sorted := slices.Clone(rules)
	Sort(sorted)

	idx := &Index{cells: make(map[string][]Rule)}
	for _, r := range sorted {
		if r.Hidden {
			continue
		}
		for _, cell := range r.Cells {
			idx.cells[cell] = append(idx.cells[cell], r)
		}
	}
	return idx
}

// Rules returns the rules targeting cell in evaluation order.
func (x *Index) Rules(cell string) []Rule {
	if x == nil {
		return nil
	}
	return x.cells[cell]
}

// Cells returns the targeted cell ids, sorted.
func (x *Index) Cells() []string {
	if x == nil {
		return nil
	}
	out := make([]string, 0, len(x.cells))
	for c := range x.cells {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of targeted cells.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.cells)
}
