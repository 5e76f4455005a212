package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pullback-trading-bot/internal/filters"
	"pullback-trading-bot/internal/pattern"
	"pullback-trading-bot/internal/schedule"
	"pullback-trading-bot/internal/signal"
	"pullback-trading-bot/internal/store"
	"pullback-trading-bot/internal/types"
)

var kst = time.FixedZone("KST", 9*3600)

type stubBroker struct {
	bars    []types.Bar
	ltp     float64
	dayOpen float64
	orders  []types.OrderReq
	failLTP error
}

func (b *stubBroker) LTP(context.Context, string) (float64, error) {
	return b.ltp, b.failLTP
}

func (b *stubBroker) RecentBars(_ context.Context, _ string, n int) ([]types.Bar, error) {
	if len(b.bars) > n {
		return b.bars[len(b.bars)-n:], nil
	}
	return b.bars, nil
}

func (b *stubBroker) DayOpen(context.Context, string) (float64, error) { return b.dayOpen, nil }

func (b *stubBroker) PlaceOrder(_ context.Context, req types.OrderReq) (types.OrderResp, error) {
	b.orders = append(b.orders, req)
	return types.OrderResp{OrderID: fmt.Sprintf("T-%d", len(b.orders)), Status: "COMPLETE"}, nil
}

func (b *stubBroker) Start(context.Context, []string) error { return nil }
func (b *stubBroker) Stop(context.Context)                  {}

func testConfig() *store.Config {
	cfg := &store.Config{}
	cfg.Aggregation.WidthMinutes = 3
	cfg.Pattern.WindowBars = 35
	cfg.Pattern.MinBars = 5
	cfg.Replay.EntryFillFraction = 0.8
	cfg.Replay.TakeProfitPct = 2.0
	cfg.Replay.StopLossPct = 1.5
	cfg.Replay.CooldownMinutes = 30
	cfg.Engine.DailyEntryLimit = 3
	cfg.Qty.DefaultBuy = 2
	return cfg
}

func testSchedule(t *testing.T) *schedule.Schedule {
	t.Helper()
	sched, err := schedule.New("Asia/Seoul", "09:00", "15:30", "15:10", 14)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	return sched
}

// patternSession yields 1-minute bars whose 3-minute aggregation forms a
// complete pullback pattern finishing at 10:30.
func patternSession(t *testing.T) []types.Bar {
	t.Helper()
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, kst).Unix()
	if start%180 != 0 {
		t.Fatalf("session start %d not 3-minute aligned", start)
	}
	rows := [][5]float64{
		{100.0, 100.3, 99.9, 100.2, 10000},
		{100.2, 101.6, 100.1, 101.5, 50000},
		{101.5, 103.1, 101.4, 103.0, 80000},
		{103.0, 104.1, 102.9, 104.0, 60000},
		{104.0, 104.0, 101.9, 102.0, 30000},
		{102.0, 102.0, 99.9, 100.0, 25000},
		{100.0, 100.3, 99.9, 100.1, 12000},
		{100.1, 100.2, 99.9, 100.0, 10000},
		{100.0, 100.3, 99.9, 100.2, 11000},
		{100.2, 101.5, 100.1, 101.4, 20000},
	}
	bars := make([]types.Bar, 0, len(rows)*3)
	for i, r := range rows {
		ts := start + int64(i)*180
		o, h, l, c, v := r[0], r[1], r[2], r[3], int64(r[4])
		bars = append(bars,
			types.Bar{Ts: ts, Open: o, High: h, Low: l, Close: c, Vol: v - 2000},
			types.Bar{Ts: ts + 60, Open: c, High: c, Low: c, Close: c, Vol: 1000},
			types.Bar{Ts: ts + 120, Open: c, High: c, Low: c, Close: c, Vol: 1000},
		)
	}
	return bars
}

func newTestEngine(t *testing.T, brk *stubBroker, at time.Time) *Engine {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	seg := pattern.NewSegmenter(pattern.DefaultSegmentConfig())
	scorer := pattern.NewScorer(pattern.DefaultScoreConfig())
	chain := filters.NewChain(nil,
		filters.NewCombinationFilter(filters.DefaultCombinationConfig()),
		filters.NewClosePositionFilter(0.55),
	)
	eval := signal.NewEvaluator(3, seg, scorer, chain, kst)
	eng := New(testConfig(), testSchedule(t), brk, eval)
	eng.clock = func() time.Time { return at }
	return eng
}

func TestStepEntersOnPattern(t *testing.T) {
	brk := &stubBroker{bars: patternSession(t), dayOpen: 100.0}
	at := time.Date(2026, 8, 28, 10, 30, 5, 0, kst)
	eng := newTestEngine(t, brk, at)

	res, err := eng.Step(context.Background(), "005930")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Action != "BUY" {
		t.Fatalf("action %s (%s), expected BUY", res.Action, res.Reason)
	}
	// Limit sits 80% into the breakout body: 100.2 + 1.2*0.8.
	if diff := res.Price - 101.16; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("entry price %f, expected 101.16", res.Price)
	}
	if len(brk.orders) != 1 || brk.orders[0].Side != "BUY" || brk.orders[0].Qty != 2 {
		t.Errorf("orders %+v, expected one BUY of 2", brk.orders)
	}
	if eng.entriesToday != 1 {
		t.Errorf("entriesToday %d, expected 1", eng.entriesToday)
	}
}

func TestStepExitsAtTakeProfit(t *testing.T) {
	brk := &stubBroker{bars: patternSession(t), dayOpen: 100.0}
	at := time.Date(2026, 8, 28, 10, 30, 5, 0, kst)
	eng := newTestEngine(t, brk, at)

	if res, err := eng.Step(context.Background(), "005930"); err != nil || res.Action != "BUY" {
		t.Fatalf("expected entry first: res=%+v err=%v", res, err)
	}

	// Price runs through the 2% take profit.
	brk.ltp = 103.5
	eng.clock = func() time.Time { return at.Add(time.Minute) }
	res, err := eng.Step(context.Background(), "005930")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Action != "SELL" {
		t.Fatalf("action %s (%s), expected SELL", res.Action, res.Reason)
	}
	if res.Reason != "TAKE_PROFIT" {
		t.Errorf("exit reason %s, expected TAKE_PROFIT", res.Reason)
	}
	// Live exits fill at the observed price, not the target.
	if res.Price != 103.5 {
		t.Errorf("exit price %f, expected the tick price", res.Price)
	}
	if eng.pos["005930"] != nil {
		t.Error("position should be closed")
	}
	if _, ok := eng.lastExit["005930"]; !ok {
		t.Error("exit must start the cooldown clock")
	}
}

func TestStepHoldsWhilePositionInBand(t *testing.T) {
	brk := &stubBroker{bars: patternSession(t), dayOpen: 100.0}
	at := time.Date(2026, 8, 28, 10, 30, 5, 0, kst)
	eng := newTestEngine(t, brk, at)

	if res, _ := eng.Step(context.Background(), "005930"); res.Action != "BUY" {
		t.Fatalf("expected entry first, got %s", res.Action)
	}
	brk.ltp = 101.5 // between stop and target
	res, err := eng.Step(context.Background(), "005930")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Action != "HOLD" {
		t.Errorf("action %s, expected HOLD while in band", res.Action)
	}
}

func TestStepDeduplicatesCompletedBars(t *testing.T) {
	brk := &stubBroker{bars: patternSession(t)[:27], dayOpen: 100.0} // no breakout yet
	at := time.Date(2026, 8, 28, 10, 27, 5, 0, kst)
	eng := newTestEngine(t, brk, at)

	first, err := eng.Step(context.Background(), "005930")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if first.Action != "HOLD" {
		t.Fatalf("expected HOLD without a breakout, got %s", first.Action)
	}

	second, err := eng.Step(context.Background(), "005930")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if second.Reason != "no new completed bar" {
		t.Errorf("reason %q, expected the dedup hold", second.Reason)
	}
}

func TestStepBlocksEntryAfterCutoff(t *testing.T) {
	// Shift the whole session so the breakout completes at 14:30, past the
	// entry cutoff hour.
	bars := patternSession(t)
	shift := int64(4 * 3600)
	for i := range bars {
		bars[i].Ts += shift
	}
	brk := &stubBroker{bars: bars, dayOpen: 100.0}
	at := time.Date(2026, 8, 28, 14, 30, 5, 0, kst)
	eng := newTestEngine(t, brk, at)

	res, err := eng.Step(context.Background(), "005930")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Action != "HOLD" {
		t.Fatalf("action %s, expected HOLD after cutoff", res.Action)
	}
	if res.Reason != "entry blocked: outside entry window" {
		t.Errorf("reason %q, expected the entry-window block", res.Reason)
	}
	if len(brk.orders) != 0 {
		t.Errorf("no order should be placed, got %+v", brk.orders)
	}
}

func TestStepInsufficientBars(t *testing.T) {
	brk := &stubBroker{bars: patternSession(t)[:6], dayOpen: 100.0}
	at := time.Date(2026, 8, 28, 10, 6, 5, 0, kst)
	eng := newTestEngine(t, brk, at)

	res, err := eng.Step(context.Background(), "005930")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Action != "HOLD" || res.Reason != "insufficient bars" {
		t.Errorf("got %s/%q, expected the insufficient-bars hold", res.Action, res.Reason)
	}
}

func TestDayBoundaryResetsState(t *testing.T) {
	brk := &stubBroker{bars: patternSession(t), dayOpen: 100.0}
	at := time.Date(2026, 8, 28, 10, 30, 5, 0, kst)
	eng := newTestEngine(t, brk, at)

	if res, _ := eng.Step(context.Background(), "005930"); res.Action != "BUY" {
		t.Fatal("expected entry first")
	}
	if eng.entriesToday != 1 {
		t.Fatalf("entriesToday %d", eng.entriesToday)
	}

	eng.clock = func() time.Time { return at.AddDate(0, 0, 1) }
	eng.resetIfNewDay(eng.clock())
	if eng.entriesToday != 0 || len(eng.pos) != 0 || len(eng.lastExit) != 0 {
		t.Error("next trading day must start from clean state")
	}
}
