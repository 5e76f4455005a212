package filters

import (
	"context"
	"fmt"

	"pullback-trading-bot/internal/pattern"
)

// ConfidenceFilter enforces the hour-of-day minimum confidence as chain
// policy, independent of the scorer's own gate, so the minimums can be tuned
// without touching the scorer.
type ConfidenceFilter struct {
	minByHour map[int]float64
}

func NewConfidenceFilter(minByHour map[int]float64) *ConfidenceFilter {
	return &ConfidenceFilter{minByHour: minByHour}
}

func (f *ConfidenceFilter) Name() string { return "confidence" }

func (f *ConfidenceFilter) Evaluate(_ context.Context, v *pattern.Verdict, fc Context) (bool, string) {
	min := f.minByHour[fc.At.Hour()]
	if v.Confidence < min {
		return true, fmt.Sprintf("confidence filter: %.1f below hour-%02d minimum %.1f",
			v.Confidence, fc.At.Hour(), min)
	}
	return false, ""
}
