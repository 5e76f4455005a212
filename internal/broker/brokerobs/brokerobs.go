package brokerobs

import (
	"context"
	"fmt"

	"pullback-trading-bot/internal/interfaces"
	"pullback-trading-bot/internal/logger"
	"pullback-trading-bot/internal/trace"
	"pullback-trading-bot/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

func (ob *observableBroker) LTP(ctx context.Context, symbol string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.LTP")
	defer span.End()

	price, err := ob.broker.LTP(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch LTP", err, "symbol", symbol)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "LTP fetched", "symbol", symbol, "price", price)
	return price, nil
}

func (ob *observableBroker) RecentBars(ctx context.Context, symbol string, n int) ([]types.Bar, error) {
	ctx, span := trace.StartSpan(ctx, "broker.RecentBars")
	defer span.End()

	bars, err := ob.broker.RecentBars(ctx, symbol, n)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch bars", err, "symbol", symbol, "count", n)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Bars fetched", "symbol", symbol, "count", len(bars))
	return bars, nil
}

func (ob *observableBroker) DayOpen(ctx context.Context, symbol string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.DayOpen")
	defer span.End()

	open, err := ob.broker.DayOpen(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch day open", err, "symbol", symbol)
		return 0, err
	}
	return open, nil
}

func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Qty,
		"tag", req.Tag,
	)

	resp, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
		)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed",
		"symbol", req.Symbol,
		"order_id", resp.OrderID,
		"status", resp.Status,
	)
	return resp, nil
}

func (ob *observableBroker) Start(ctx context.Context, symbols []string) error {
	ctx, span := trace.StartSpan(ctx, "broker.Start")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting broker", "symbols", symbols, "count", len(symbols))

	if err := ob.broker.Start(ctx, symbols); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to start broker", err, "symbols", symbols)
		return fmt.Errorf("broker start failed: %w", err)
	}

	logger.InfoSkip(ctx, 1, "Broker started", "symbols", symbols)
	return nil
}

func (ob *observableBroker) Stop(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "broker.Stop")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Stopping broker")
	ob.broker.Stop(ctx)
}
