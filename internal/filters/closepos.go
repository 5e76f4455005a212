package filters

import (
	"context"
	"fmt"

	"pullback-trading-bot/internal/pattern"
)

// ClosePositionFilter re-checks the breakout candle's close position against
// a chain-level threshold. Distinct from the scorer's internal gate so the
// two policies can be tuned and toggled independently.
type ClosePositionFilter struct {
	min float64
}

func NewClosePositionFilter(min float64) *ClosePositionFilter {
	return &ClosePositionFilter{min: min}
}

func (f *ClosePositionFilter) Name() string { return "close_position" }

func (f *ClosePositionFilter) Evaluate(_ context.Context, v *pattern.Verdict, _ Context) (bool, string) {
	if v.ClosePosition < f.min {
		return true, fmt.Sprintf("close position filter: %.2f below %.2f", v.ClosePosition, f.min)
	}
	return false, ""
}
