package replay

import (
	"context"
	"sync"
	"testing"
	"time"

	"pullback-trading-bot/internal/exits"
	"pullback-trading-bot/internal/filters"
	"pullback-trading-bot/internal/pattern"
	"pullback-trading-bot/internal/schedule"
	"pullback-trading-bot/internal/signal"
	"pullback-trading-bot/internal/store"
	"pullback-trading-bot/internal/types"
)

var kst = time.FixedZone("KST", 9*3600)

func testConfig() *store.Config {
	cfg := &store.Config{}
	cfg.Aggregation.WidthMinutes = 3
	cfg.Pattern.MinBars = 5
	cfg.Replay.EntryFillFraction = 0.8
	cfg.Replay.EntryTimeoutMinutes = 5
	cfg.Replay.TakeProfitPct = 2.0
	cfg.Replay.StopLossPct = 1.5
	cfg.Replay.CooldownMinutes = 30
	cfg.Replay.TechnicalExitSMA = 5
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

func testEngine(t *testing.T) *Engine {
	t.Helper()
	seg := pattern.NewSegmenter(pattern.DefaultSegmentConfig())
	scorer := pattern.NewScorer(pattern.DefaultScoreConfig())
	chain := filters.NewChain(nil,
		filters.NewCombinationFilter(filters.DefaultCombinationConfig()),
		filters.NewClosePositionFilter(0.55),
	)
	eval := signal.NewEvaluator(3, seg, scorer, chain, kst)
	return NewEngine(testConfig(), testSchedule(t), eval)
}

// patternSession is a 10:00 session whose first ten 3-minute aggregates form
// a complete pullback pattern: uptrend to 104, decline to 100, quiet support,
// and a breakout closing at 101.4. The signal fires at 10:30.
func patternSession(t *testing.T) (int64, []types.Bar) {
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
	return start + 10*180, bars // signal time, session so far
}

// entry fill fraction 0.8 puts the limit at 100.2 + 1.2*0.8 = 101.16
const fixtureEntry = 101.16

func TestReplayDayTakeProfit(t *testing.T) {
	eng := testEngine(t)
	signalTs, bars := patternSession(t)
	bars = append(bars,
		types.Bar{Ts: signalTs, Open: 101.4, High: 101.5, Low: 101.1, Close: 101.3, Vol: 4000},
		types.Bar{Ts: signalTs + 60, Open: 101.3, High: 103.5, Low: 101.2, Close: 103.2, Vol: 6000},
	)

	trades, err := eng.ReplayDay(context.Background(), "005930", bars)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.SignalTs != signalTs {
		t.Errorf("signal at %d, expected %d", tr.SignalTs, signalTs)
	}
	if tr.EntryTs != signalTs {
		t.Errorf("fill at %d, expected the first minute bar touching the limit", tr.EntryTs)
	}
	if tr.ExitReason != exits.TakeProfit {
		t.Fatalf("exit reason %s, expected take profit", tr.ExitReason)
	}
	// Exits fill at the rule's target price, not the bar close.
	wantExit := fixtureEntry * 1.02
	if diff := tr.ExitPrice - wantExit; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("exit price %f, expected %f", tr.ExitPrice, wantExit)
	}
	if tr.ReturnPct < 1.99 || tr.ReturnPct > 2.01 {
		t.Errorf("return %.2f%%, expected ~2.00%%", tr.ReturnPct)
	}
}

func TestReplayDayTakeProfitBeatsStopLossInSameBar(t *testing.T) {
	eng := testEngine(t)
	signalTs, bars := patternSession(t)
	bars = append(bars,
		types.Bar{Ts: signalTs, Open: 101.4, High: 101.5, Low: 101.1, Close: 101.3, Vol: 4000},
		// Both bounds touched in one minute: take profit wins.
		types.Bar{Ts: signalTs + 60, Open: 101.3, High: 103.5, Low: 99.5, Close: 100.0, Vol: 6000},
	)

	trades, err := eng.ReplayDay(context.Background(), "005930", bars)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(trades) != 1 || trades[0].ExitReason != exits.TakeProfit {
		t.Fatalf("expected take-profit priority, got %+v", trades)
	}
}

func TestReplayDayStopLoss(t *testing.T) {
	eng := testEngine(t)
	signalTs, bars := patternSession(t)
	bars = append(bars,
		types.Bar{Ts: signalTs, Open: 101.4, High: 101.5, Low: 101.1, Close: 101.3, Vol: 4000},
		types.Bar{Ts: signalTs + 60, Open: 101.3, High: 101.4, Low: 99.5, Close: 99.8, Vol: 6000},
	)

	trades, err := eng.ReplayDay(context.Background(), "005930", bars)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != exits.StopLoss {
		t.Fatalf("exit reason %s, expected stop loss", tr.ExitReason)
	}
	if tr.ReturnPct > -1.49 || tr.ReturnPct < -1.51 {
		t.Errorf("return %.2f%%, expected ~-1.50%%", tr.ReturnPct)
	}
}

func TestReplayDayUnexecutedSignal(t *testing.T) {
	eng := testEngine(t)
	signalTs, bars := patternSession(t)
	// Price never pulls back to the limit inside the five-minute window.
	for m := 0; m < 6; m++ {
		bars = append(bars, types.Bar{
			Ts: signalTs + int64(m)*60, Open: 101.4, High: 101.6, Low: 101.3, Close: 101.5, Vol: 1000,
		})
	}

	trades, err := eng.ReplayDay(context.Background(), "005930", bars)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 recorded signal, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != exits.Unexecuted {
		t.Fatalf("exit reason %s, expected unexecuted", tr.ExitReason)
	}
	if tr.EntryTs != 0 || tr.ReturnPct != 0 {
		t.Errorf("unexecuted signal must carry no fill or return: %+v", tr)
	}
}

func TestReplayDayEodLiquidation(t *testing.T) {
	eng := testEngine(t)
	signalTs, bars := patternSession(t)
	bars = append(bars, types.Bar{
		Ts: signalTs, Open: 101.4, High: 101.55, Low: 101.1, Close: 101.5, Vol: 1000,
	})
	// Flat drift above the moving average from 10:31 until past the 15:10
	// liquidation mark.
	liq := time.Date(2026, 8, 28, 15, 10, 0, 0, kst).Unix()
	for ts := signalTs + 60; ts <= liq+60; ts += 60 {
		bars = append(bars, types.Bar{
			Ts: ts, Open: 101.5, High: 101.55, Low: 101.45, Close: 101.5, Vol: 1000,
		})
	}

	trades, err := eng.ReplayDay(context.Background(), "005930", bars)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != exits.Liquidation {
		t.Fatalf("exit reason %s, expected liquidation", tr.ExitReason)
	}
	if tr.ExitTs < liq {
		t.Errorf("liquidated at %d, before the %d cutoff", tr.ExitTs, liq)
	}
	if tr.ExitPrice != 101.5 {
		t.Errorf("liquidation fills at the close, got %f", tr.ExitPrice)
	}
}

func TestReplayDayTechnicalExit(t *testing.T) {
	eng := testEngine(t)
	signalTs, bars := patternSession(t)
	bars = append(bars,
		types.Bar{Ts: signalTs, Open: 101.4, High: 101.5, Low: 101.1, Close: 101.2, Vol: 1000},
		// The aggregate closes at 100.0, under its 5-bar moving average,
		// without ever touching the stop at 99.64.
		types.Bar{Ts: signalTs + 60, Open: 101.2, High: 101.2, Low: 100.2, Close: 100.3, Vol: 1000},
		types.Bar{Ts: signalTs + 120, Open: 100.3, High: 100.3, Low: 99.9, Close: 100.0, Vol: 1000},
	)

	trades, err := eng.ReplayDay(context.Background(), "005930", bars)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != exits.Technical {
		t.Fatalf("exit reason %s, expected technical", tr.ExitReason)
	}
	if tr.ExitPrice != 100.0 {
		t.Errorf("technical exits fill at the bar close, got %f", tr.ExitPrice)
	}
}

func TestReplayDayEmptyInput(t *testing.T) {
	eng := testEngine(t)
	trades, err := eng.ReplayDay(context.Background(), "005930", nil)
	if err != nil || len(trades) != 0 {
		t.Errorf("empty day should yield nothing: trades=%v err=%v", trades, err)
	}
}

func TestRunBatchIsolatesUnitsAndReportsProgress(t *testing.T) {
	eng := testEngine(t)
	signalTs, good := patternSession(t)
	good = append(good,
		types.Bar{Ts: signalTs, Open: 101.4, High: 101.5, Low: 101.1, Close: 101.3, Vol: 4000},
		types.Bar{Ts: signalTs + 60, Open: 101.3, High: 103.5, Low: 101.2, Close: 103.2, Vol: 6000},
	)
	units := []Unit{
		{Date: "2026-08-28", Symbol: "005930", Bars: good},
		{Date: "2026-08-28", Symbol: "000660", Bars: good},
		{Date: "2026-08-28", Symbol: "035420", Bars: good},
	}

	var mu sync.Mutex
	var calls int
	results := eng.RunBatch(context.Background(), units, 2, func(done, total int) {
		mu.Lock()
		calls++
		mu.Unlock()
		if total != 3 {
			t.Errorf("progress total %d, expected 3", total)
		}
	})

	if calls != 3 {
		t.Errorf("progress fired %d times, expected 3", calls)
	}
	trades := CollectTrades(results)
	if len(trades) != 3 {
		t.Fatalf("expected 3 trades across units, got %d", len(trades))
	}
}

func TestRunBatchHonorsCancellation(t *testing.T) {
	eng := testEngine(t)
	_, bars := patternSession(t)
	units := make([]Unit, 8)
	for i := range units {
		units[i] = Unit{Date: "2026-08-28", Symbol: "005930", Bars: bars}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := eng.RunBatch(ctx, units, 2, nil)

	completed := 0
	for _, r := range results {
		if r.Unit.Symbol != "" && r.Err == nil && r.Trades != nil {
			completed++
		}
	}
	if completed == len(units) {
		t.Error("expected cancellation to stop dispatching units")
	}
}

func TestSummarize(t *testing.T) {
	at := time.Date(2026, 8, 28, 10, 30, 0, 0, kst).Unix()
	trades := []Trade{
		{Symbol: "A", SignalTs: at, ExitReason: exits.TakeProfit, ReturnPct: 2.0},
		{Symbol: "B", SignalTs: at + 60, ExitReason: exits.StopLoss, ReturnPct: -1.5},
		{Symbol: "C", SignalTs: at + 120, ExitReason: exits.Unexecuted},
	}
	s := Summarize(trades, kst)

	if s.Signals != 3 || s.Executed != 2 || s.Unexecuted != 1 {
		t.Errorf("counts: %+v", s)
	}
	if s.Wins != 1 {
		t.Errorf("wins %d, expected 1", s.Wins)
	}
	if s.WinRatePct != 50 {
		t.Errorf("win rate %.1f, expected 50", s.WinRatePct)
	}
	if s.TotalReturn != 0.5 {
		t.Errorf("total return %.2f, expected 0.50", s.TotalReturn)
	}
	hs := s.ByHour[10]
	if hs.Signals != 3 || hs.Executed != 2 || hs.Wins != 1 {
		t.Errorf("hour stats: %+v", hs)
	}
}
