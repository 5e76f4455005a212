package interfaces

import (
	"context"

	"pullback-trading-bot/internal/types"
)

type Broker interface {
	LTP(ctx context.Context, symbol string) (float64, error)
	RecentBars(ctx context.Context, symbol string, n int) ([]types.Bar, error)
	DayOpen(ctx context.Context, symbol string) (float64, error)
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
	Start(ctx context.Context, symbols []string) error
	Stop(ctx context.Context)
}
