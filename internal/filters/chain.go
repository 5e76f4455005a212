package filters

import (
	"context"
	"time"

	"pullback-trading-bot/internal/pattern"
	"pullback-trading-bot/internal/types"
)

// Context carries everything a filter may inspect alongside the verdict.
// Filters never reach into undocumented nested structures; the Stages struct
// is the complete contract.
type Context struct {
	Symbol string
	Bars   []types.AggBar
	Bar    types.AggBar
	At     time.Time
}

// Filter is one veto step. Evaluate reports whether the verdict should be
// excluded and why; it must not mutate the verdict itself.
type Filter interface {
	Name() string
	Evaluate(ctx context.Context, v *pattern.Verdict, fc Context) (exclude bool, reason string)
}

// Chain applies filters in declared order, short-circuiting on the first
// exclusion. The stats sink sees every check and every block.
type Chain struct {
	filters []Filter
	stats   StatsSink
}

func NewChain(stats StatsSink, fs ...Filter) *Chain {
	if stats == nil {
		stats = NopSink{}
	}
	return &Chain{filters: fs, stats: stats}
}

// Apply runs the chain over a passing verdict. Verdicts already excluded by
// the scorer pass through untouched so the scorer's reason is preserved.
func (c *Chain) Apply(ctx context.Context, v *pattern.Verdict, fc Context) {
	if !v.HasPattern || v.Stages == nil {
		return
	}
	c.stats.Checked()
	for _, f := range c.filters {
		exclude, reason := f.Evaluate(ctx, v, fc)
		if exclude {
			c.stats.Blocked(f.Name(), fc.Symbol, reason)
			v.Exclude(reason)
			return
		}
	}
}
