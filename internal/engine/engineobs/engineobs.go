package engineobs

import (
	"context"

	"pullback-trading-bot/internal/interfaces"
	"pullback-trading-bot/internal/logger"
	"pullback-trading-bot/internal/trace"
	"pullback-trading-bot/internal/types"
)

// observableEngine wraps an Engine with observability (logging & tracing)
type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

// Wrap wraps an engine with observability middleware
func Wrap(engine interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: engine,
	}
}

func (oe *observableEngine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()

	res, err := oe.engine.Step(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Engine step failed", err, "symbol", symbol)
		return nil, err
	}

	switch res.Action {
	case "HOLD":
		logger.DebugSkip(ctx, 1, "Engine step",
			"symbol", symbol,
			"action", res.Action,
			"reason", res.Reason,
		)
	default:
		logger.InfoSkip(ctx, 1, "Engine step",
			"symbol", symbol,
			"action", res.Action,
			"price", res.Price,
			"confidence", res.Confidence,
			"reason", res.Reason,
		)
	}
	return res, nil
}
