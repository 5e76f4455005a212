package filters

import (
	"context"
	"fmt"

	"pullback-trading-bot/internal/interfaces"
	"pullback-trading-bot/internal/logger"
	"pullback-trading-bot/internal/pattern"
)

// MLFilter asks the external win-probability predictor to veto low-quality
// setups. Predictor failures fail open: the pattern passes without an ML
// opinion and the failure is logged.
type MLFilter struct {
	pred      interfaces.Predictor
	threshold float64
}

func NewMLFilter(pred interfaces.Predictor, threshold float64) *MLFilter {
	return &MLFilter{pred: pred, threshold: threshold}
}

func (f *MLFilter) Name() string { return "ml_probability" }

func (f *MLFilter) Evaluate(ctx context.Context, v *pattern.Verdict, fc Context) (bool, string) {
	if f.pred == nil {
		return false, ""
	}
	features := pattern.FeatureVector(v.Stages, fc.Bars)
	prob, err := f.pred.WinProbability(ctx, features)
	if err != nil {
		logger.Warn(ctx, "ML predictor unavailable, passing pattern through",
			"symbol", fc.Symbol, "error", err)
		return false, ""
	}
	if prob < f.threshold {
		return true, fmt.Sprintf("ml filter: win probability %.3f below %.3f", prob, f.threshold)
	}
	return false, ""
}
