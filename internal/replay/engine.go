package replay

import (
	"context"
	"fmt"
	"math"
	"time"

	"pullback-trading-bot/internal/exits"
	"pullback-trading-bot/internal/schedule"
	"pullback-trading-bot/internal/signal"
	"pullback-trading-bot/internal/store"
	"pullback-trading-bot/internal/ta"
	"pullback-trading-bot/internal/timeframe"
	"pullback-trading-bot/internal/types"
)

// Trade is one replayed signal outcome. Unexecuted signals keep their entry
// price but carry no return.
type Trade struct {
	Symbol     string       `json:"symbol"`
	SignalTs   int64        `json:"signal_ts"`
	EntryTs    int64        `json:"entry_ts,omitempty"`
	ExitTs     int64        `json:"exit_ts,omitempty"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price,omitempty"`
	Confidence float64      `json:"confidence"`
	ExitReason exits.Reason `json:"exit_reason"`
	ReturnPct  float64      `json:"return_pct"`
}

// Engine replays one symbol-day of 1-minute bars through the same evaluation
// pipeline the live driver uses. Signals fire only at completed aggregate
// boundaries; fills and exits are then simulated at 1-minute resolution.
type Engine struct {
	cfg   *store.Config
	sched *schedule.Schedule
	eval  *signal.Evaluator
	exit  exits.Checker
}

func NewEngine(cfg *store.Config, sched *schedule.Schedule, eval *signal.Evaluator) *Engine {
	return &Engine{cfg: cfg, sched: sched, eval: eval, exit: exits.BarBoundsChecker{}}
}

// ReplayDay walks one trading day of 1-minute bars for one symbol. Bars must
// be in ascending timestamp order and belong to a single session. At most one
// position is open at a time; a closed trade starts the cooldown clock.
func (e *Engine) ReplayDay(ctx context.Context, symbol string, bars1m []types.Bar) ([]Trade, error) {
	if len(bars1m) == 0 {
		return nil, nil
	}
	width := int64(e.eval.WidthMinutes()) * 60
	dayOpen := bars1m[0].Open
	agg := timeframe.Aggregate(bars1m, e.eval.WidthMinutes())

	// Map each aggregate's completion time to its index for SMA lookups and
	// prefix evaluation at bar boundaries.
	endIdx := make(map[int64]int, len(agg))
	closes := make([]float64, len(agg))
	for i, a := range agg {
		endIdx[a.Ts+width] = i
		closes[i] = a.Close
	}

	var (
		trades        []Trade
		cooldownUntil int64
	)
	for i := 0; i < len(bars1m); i++ {
		if err := ctx.Err(); err != nil {
			return trades, err
		}
		boundary := bars1m[i].Ts + 60
		ai, ok := endIdx[boundary]
		if !ok || ai+1 < e.cfg.Pattern.MinBars {
			continue
		}
		signalTs := boundary
		if signalTs < cooldownUntil {
			continue
		}
		at := time.Unix(signalTs, 0).In(e.sched.Location())
		if !e.sched.AllowsEntry(at) {
			continue
		}

		v, err := e.eval.EvaluateAgg(ctx, symbol, agg[:ai+1], dayOpen)
		if err != nil {
			return trades, fmt.Errorf("replay %s at %d: %w", symbol, signalTs, err)
		}
		if !v.HasPattern {
			continue
		}

		cur := agg[ai]
		entry := cur.Open + (cur.Close-cur.Open)*e.cfg.Replay.EntryFillFraction
		tr := Trade{
			Symbol:     symbol,
			SignalTs:   signalTs,
			EntryPrice: entry,
			Confidence: v.Confidence,
		}

		fillIdx := e.findFill(bars1m, i+1, signalTs, entry)
		if fillIdx < 0 {
			tr.ExitReason = exits.Unexecuted
			trades = append(trades, tr)
			continue
		}
		tr.EntryTs = bars1m[fillIdx].Ts

		exitIdx, ex := e.simulateExit(bars1m, fillIdx+1, entry, endIdx, closes)
		tr.ExitTs = bars1m[exitIdx].Ts
		tr.ExitPrice = ex.Price
		tr.ExitReason = ex.Reason
		tr.ReturnPct = (ex.Price/entry - 1) * 100
		trades = append(trades, tr)

		cooldownUntil = tr.ExitTs + int64(e.cfg.Replay.CooldownMinutes)*60
		i = exitIdx
	}
	return trades, nil
}

// findFill scans forward for the first 1-minute bar whose low reaches the
// entry price inside the fill window. Returns -1 when the order expires.
func (e *Engine) findFill(bars []types.Bar, from int, signalTs int64, entry float64) int {
	deadline := signalTs + int64(e.cfg.Replay.EntryTimeoutMinutes)*60
	for j := from; j < len(bars); j++ {
		if bars[j].Ts >= deadline {
			return -1
		}
		if bars[j].Low <= entry {
			return j
		}
	}
	return -1
}

// simulateExit walks 1-minute bars from the fill until an exit rule fires.
// Priority per bar: take-profit, stop-loss, forced end-of-day liquidation,
// then a moving-average breakdown at aggregate boundaries. A day that runs
// out of bars liquidates on the final close.
func (e *Engine) simulateExit(bars []types.Bar, from int, entry float64, endIdx map[int64]int, closes []float64) (int, exits.Exit) {
	pos := exits.Position{
		EntryPrice: entry,
		TakeProfit: entry * (1 + e.cfg.Replay.TakeProfitPct/100),
		StopLoss:   entry * (1 - e.cfg.Replay.StopLossPct/100),
	}
	for j := from; j < len(bars); j++ {
		b := bars[j]
		if ex, ok := e.exit.Check(pos, exits.MarketState{High: b.High, Low: b.Low, Close: b.Close}); ok {
			return j, ex
		}
		bt := time.Unix(b.Ts, 0).In(e.sched.Location())
		if !bt.Before(e.sched.LiquidationAt(bt)) {
			return j, exits.Exit{Reason: exits.Liquidation, Price: b.Close}
		}
		if ai, ok := endIdx[b.Ts+60]; ok {
			sma := ta.SMA(closes[:ai+1], e.cfg.Replay.TechnicalExitSMA)
			if !math.IsNaN(sma) && closes[ai] < sma {
				return j, exits.Exit{Reason: exits.Technical, Price: b.Close}
			}
		}
	}
	last := len(bars) - 1
	return last, exits.Exit{Reason: exits.Liquidation, Price: bars[last].Close}
}
