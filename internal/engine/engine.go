package engine

import (
	"context"
	"time"

	"pullback-trading-bot/internal/exits"
	"pullback-trading-bot/internal/interfaces"
	"pullback-trading-bot/internal/logger"
	"pullback-trading-bot/internal/schedule"
	"pullback-trading-bot/internal/signal"
	"pullback-trading-bot/internal/store"
	"pullback-trading-bot/internal/tradelog"
	"pullback-trading-bot/internal/types"
)

type position struct {
	qty        int
	entryPrice float64
	entryTime  time.Time
	takeProfit float64
	stopLoss   float64
}

// Engine drives the pattern pipeline for each tracked instrument as new
// aggregated bars complete, and manages the open-position state machine
// (entry checks, tick-based exits, cooldown, daily limits). Each symbol's
// state is touched only from Step, one cycle at a time.
type Engine struct {
	cfg   *store.Config
	sched *schedule.Schedule
	brk   interfaces.Broker
	eval  *signal.Evaluator
	exit  exits.Checker
	clock func() time.Time

	day          time.Time
	entriesToday int
	pos          map[string]*position
	lastExit     map[string]time.Time
	lastEvalBar  map[string]int64
}

func New(cfg *store.Config, sched *schedule.Schedule, brk interfaces.Broker, eval *signal.Evaluator) *Engine {
	e := &Engine{
		cfg:         cfg,
		sched:       sched,
		brk:         brk,
		eval:        eval,
		exit:        exits.TickChecker{},
		clock:       time.Now,
		pos:         map[string]*position{},
		lastExit:    map[string]time.Time{},
		lastEvalBar: map[string]int64{},
	}
	e.day = sched.Midnight(e.clock())
	return e
}

// Step runs one evaluation cycle for one instrument. A failing cycle returns
// an error for logging but never affects other instruments' state.
func (e *Engine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	now := e.clock().In(e.sched.Location())
	e.resetIfNewDay(now)

	if p := e.pos[symbol]; p != nil {
		return e.manageOpenPosition(ctx, symbol, p, now)
	}

	minBars := e.cfg.Pattern.MinBars * e.cfg.Aggregation.WidthMinutes
	bars, err := e.brk.RecentBars(ctx, symbol, e.cfg.Pattern.WindowBars*e.cfg.Aggregation.WidthMinutes+e.cfg.Aggregation.WidthMinutes)
	if err != nil {
		return nil, err
	}
	if len(bars) < minBars {
		logger.Debug(ctx, "Insufficient bars, skipping cycle", "symbol", symbol, "have", len(bars), "need", minBars)
		return e.hold(symbol, now, 0, "insufficient bars"), nil
	}

	dayOpen, err := e.brk.DayOpen(ctx, symbol)
	if err != nil {
		return nil, err
	}

	verdict, agg, err := e.eval.Evaluate(ctx, symbol, bars, now.Unix(), dayOpen)
	if err != nil {
		// Bad data skips this cycle only; the next completed bar gets a
		// fresh evaluation.
		logger.Warn(ctx, "Data quality check failed, skipping cycle", "symbol", symbol, "error", err)
		return e.hold(symbol, now, 0, "data quality: "+err.Error()), nil
	}
	if len(agg) == 0 {
		return e.hold(symbol, now, 0, "no completed bars"), nil
	}

	latest := agg[len(agg)-1]
	if e.lastEvalBar[symbol] == latest.Ts {
		return e.hold(symbol, now, latest.Close, "no new completed bar"), nil
	}
	e.lastEvalBar[symbol] = latest.Ts

	if verdict.Stages != nil {
		_ = tradelog.AppendPattern(tradelog.PatternEntry{Symbol: symbol, Verdict: verdict, Price: latest.Close})
	}

	if !verdict.HasPattern {
		reason := verdict.ExclusionReason
		if reason == "" {
			reason = "no pattern"
		}
		return e.hold(symbol, now, latest.Close, reason), nil
	}

	logger.Decision(ctx, symbol, "BUY", verdict.Confidence, "pullback breakout",
		"bar_time", latest.Ts, "close_position", verdict.ClosePosition)

	if blocked, why := e.entryBlocked(symbol, now); blocked {
		logger.Risk(ctx, symbol, "ENTRY_BLOCKED", "reason", why, "confidence", verdict.Confidence)
		return e.hold(symbol, now, latest.Close, "entry blocked: "+why), nil
	}

	return e.enter(ctx, symbol, latest, verdict.Confidence, now)
}

func (e *Engine) resetIfNewDay(now time.Time) {
	midnight := e.sched.Midnight(now)
	if midnight.Equal(e.day) {
		return
	}
	e.day = midnight
	e.entriesToday = 0
	e.pos = map[string]*position{}
	e.lastExit = map[string]time.Time{}
	e.lastEvalBar = map[string]int64{}
}

func (e *Engine) entryBlocked(symbol string, now time.Time) (bool, string) {
	if !e.sched.AllowsEntry(now) {
		return true, "outside entry window"
	}
	if e.entriesToday >= e.cfg.Engine.DailyEntryLimit {
		return true, "daily entry limit reached"
	}
	if last, ok := e.lastExit[symbol]; ok {
		cooldown := time.Duration(e.cfg.Replay.CooldownMinutes) * time.Minute
		if now.Sub(last) < cooldown {
			return true, "cooldown active"
		}
	}
	return false, ""
}

func (e *Engine) enter(ctx context.Context, symbol string, latest types.AggBar, confidence float64, now time.Time) (*types.StepResult, error) {
	priceHint := latest.Open + (latest.Close-latest.Open)*e.cfg.Replay.EntryFillFraction
	qty := e.pickQty(symbol)

	resp, err := e.brk.PlaceOrder(ctx, types.OrderReq{Symbol: symbol, Side: "BUY", Qty: qty, Price: priceHint, Tag: "PULLBACK"})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to place BUY order", err, "symbol", symbol, "qty", qty)
		return e.hold(symbol, now, latest.Close, "order error: "+err.Error()), nil
	}

	e.pos[symbol] = &position{
		qty:        qty,
		entryPrice: priceHint,
		entryTime:  now,
		takeProfit: priceHint * (1 + e.cfg.Replay.TakeProfitPct/100),
		stopLoss:   priceHint * (1 - e.cfg.Replay.StopLossPct/100),
	}
	e.entriesToday++

	logger.Trade(ctx, symbol, "BUY", qty, priceHint, resp.OrderID, "confidence", confidence)
	_ = tradelog.Append(tradelog.Entry{Symbol: symbol, Side: "BUY", Qty: qty, Price: priceHint, OrderID: resp.OrderID, Reason: "PULLBACK_BREAKOUT", Confidence: confidence})

	return &types.StepResult{
		Symbol:     symbol,
		Action:     "BUY",
		Confidence: confidence,
		Price:      priceHint,
		Time:       now.Unix(),
		Orders:     []types.OrderResp{resp},
		Reason:     "pullback breakout",
	}, nil
}

// manageOpenPosition checks exits against the current live price on every
// tick. Replay checks bar high/low instead; that asymmetry is deliberate.
func (e *Engine) manageOpenPosition(ctx context.Context, symbol string, p *position, now time.Time) (*types.StepResult, error) {
	price, err := e.brk.LTP(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var (
		reason exits.Reason
		hit    bool
	)
	if !now.Before(e.sched.LiquidationAt(now)) {
		reason, hit = exits.Liquidation, true
	} else if ex, ok := e.exit.Check(
		exits.Position{EntryPrice: p.entryPrice, TakeProfit: p.takeProfit, StopLoss: p.stopLoss},
		exits.MarketState{Price: price},
	); ok {
		reason, hit = ex.Reason, true
	}
	if !hit {
		return e.hold(symbol, now, price, "holding position"), nil
	}

	resp, err := e.brk.PlaceOrder(ctx, types.OrderReq{Symbol: symbol, Side: "SELL", Qty: p.qty, Price: price, Tag: string(reason)})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to place SELL order", err, "symbol", symbol, "reason", string(reason))
		return nil, err
	}

	pnlPct := (price/p.entryPrice - 1) * 100
	logger.Trade(ctx, symbol, "SELL", p.qty, price, resp.OrderID, "exit_reason", string(reason), "pnl_pct", pnlPct)
	_ = tradelog.Append(tradelog.Entry{Symbol: symbol, Side: "SELL", Qty: p.qty, Price: price, OrderID: resp.OrderID, Reason: string(reason)})

	delete(e.pos, symbol)
	e.lastExit[symbol] = now

	return &types.StepResult{
		Symbol: symbol,
		Action: "SELL",
		Price:  price,
		Time:   now.Unix(),
		Orders: []types.OrderResp{resp},
		Reason: string(reason),
	}, nil
}

func (e *Engine) pickQty(symbol string) int {
	if v, ok := e.cfg.Qty.PerSymbol[symbol]; ok {
		return v
	}
	return e.cfg.Qty.DefaultBuy
}

func (e *Engine) hold(symbol string, now time.Time, price float64, reason string) *types.StepResult {
	return &types.StepResult{
		Symbol: symbol,
		Action: "HOLD",
		Price:  price,
		Time:   now.Unix(),
		Reason: reason,
	}
}
