package interfaces

import "context"

// Predictor is the external win-probability model. Implementations must
// return a probability in [0,1]; callers treat failures as fail-open.
type Predictor interface {
	WinProbability(ctx context.Context, features map[string]float64) (float64, error)
}
