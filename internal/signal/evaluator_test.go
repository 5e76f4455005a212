package signal

import (
	"context"
	"reflect"
	"testing"
	"time"

	"pullback-trading-bot/internal/filters"
	"pullback-trading-bot/internal/pattern"
	"pullback-trading-bot/internal/types"
)

var kst = time.FixedZone("KST", 9*3600)

// sessionBars expands [open, high, low, close, vol] 3-minute rows into
// 1-minute bars whose aggregation reproduces the row exactly.
func sessionBars(start int64, rows [][5]float64) []types.Bar {
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

// patternRows is the ten-aggregate window holding a complete pullback:
// uptrend to 104, decline to 100, three quiet support bars, then a breakout.
func patternRows() [][5]float64 {
	return [][5]float64{
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
}

func sessionStart(t *testing.T) int64 {
	t.Helper()
	ts := time.Date(2026, 8, 28, 10, 0, 0, 0, kst).Unix()
	if ts%180 != 0 {
		t.Fatalf("session start %d not 3-minute aligned", ts)
	}
	return ts
}

func newTestEvaluator() *Evaluator {
	seg := pattern.NewSegmenter(pattern.DefaultSegmentConfig())
	scorer := pattern.NewScorer(pattern.DefaultScoreConfig())
	chain := filters.NewChain(nil,
		filters.NewCombinationFilter(filters.DefaultCombinationConfig()),
		filters.NewClosePositionFilter(0.55),
	)
	return NewEvaluator(3, seg, scorer, chain, kst)
}

func TestEvaluateFindsPattern(t *testing.T) {
	eval := newTestEvaluator()
	start := sessionStart(t)
	bars := sessionBars(start, patternRows())

	v, agg, err := eval.Evaluate(context.Background(), "005930", bars, 0, 100.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agg) != 10 {
		t.Fatalf("expected 10 aggregates, got %d", len(agg))
	}
	if !v.HasPattern {
		t.Fatalf("expected pattern, excluded: %s", v.ExclusionReason)
	}
	if v.Stages == nil || v.Stages.Breakout.Idx != 9 {
		t.Error("expected breakout anchored at the final aggregate")
	}
}

func TestReplayAndLiveVerdictsMatch(t *testing.T) {
	eval := newTestEvaluator()
	start := sessionStart(t)
	rows := patternRows()

	// The live feed additionally carries two minutes of the next, still
	// in-progress aggregate.
	liveBars := sessionBars(start, rows)
	partialTs := start + int64(len(rows))*180
	liveBars = append(liveBars,
		types.Bar{Ts: partialTs, Open: 101.4, High: 101.7, Low: 101.3, Close: 101.6, Vol: 4000},
		types.Bar{Ts: partialTs + 60, Open: 101.6, High: 101.8, Low: 101.5, Close: 101.7, Vol: 3000},
	)
	replayBars := sessionBars(start, rows)

	liveV, liveAgg, err := eval.Evaluate(context.Background(), "005930", liveBars, partialTs+120, 100.0)
	if err != nil {
		t.Fatalf("live evaluate: %v", err)
	}
	replayV, replayAgg, err := eval.Evaluate(context.Background(), "005930", replayBars, 0, 100.0)
	if err != nil {
		t.Fatalf("replay evaluate: %v", err)
	}

	if !reflect.DeepEqual(liveAgg, replayAgg) {
		t.Fatal("live and replay aggregations diverged over the same completed bars")
	}
	if !reflect.DeepEqual(liveV, replayV) {
		t.Errorf("live and replay verdicts diverged:\nlive:   %+v\nreplay: %+v", liveV, replayV)
	}
	if !liveV.HasPattern {
		t.Fatalf("expected pattern, excluded: %s", liveV.ExclusionReason)
	}
}

func TestEvaluateRejectsCorruptBars(t *testing.T) {
	eval := newTestEvaluator()
	start := sessionStart(t)
	bars := sessionBars(start, patternRows())
	// A closing print far above every high in its group leaves the aggregate
	// violating the OHLC invariant.
	bars[5].Close = 200

	_, _, err := eval.Evaluate(context.Background(), "005930", bars, 0, 100.0)
	if err == nil {
		t.Fatal("expected a data-quality error for a close outside the range")
	}
}

func TestEvaluateNoPatternIsNotAnError(t *testing.T) {
	eval := newTestEvaluator()
	start := sessionStart(t)
	rows := patternRows()
	rows[9][4] = 9000 // breakout volume below the prior bar kills the setup

	v, _, err := eval.Evaluate(context.Background(), "005930", sessionBars(start, rows), 0, 100.0)
	if err != nil {
		t.Fatalf("a pattern miss must not error: %v", err)
	}
	if v.HasPattern {
		t.Error("expected no pattern")
	}
}

func TestEvaluateEmptyInput(t *testing.T) {
	eval := newTestEvaluator()
	v, agg, err := eval.Evaluate(context.Background(), "005930", nil, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.HasPattern || len(agg) != 0 {
		t.Error("empty input must yield an empty, pattern-free result")
	}
}
