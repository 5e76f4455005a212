package filters

import (
	"context"
	"errors"
	"testing"
	"time"

	"pullback-trading-bot/internal/pattern"
	"pullback-trading-bot/internal/types"
)

func passingVerdict() *pattern.Verdict {
	return &pattern.Verdict{
		HasPattern:    true,
		Confidence:    80,
		ClosePosition: 0.9,
		Stages: &pattern.Stages{
			Uptrend:  pattern.Uptrend{PriceGainPct: 5.0, CandleCount: 4, MaxVolume: 80000, AvgVolume: 50000},
			Decline:  pattern.Decline{DeclinePct: 2.0, CandleCount: 2},
			Support:  pattern.Support{CandleCount: 3, AvgVolumeRatio: 0.15},
			Breakout: pattern.Breakout{Volume: 20000, VolumeRatioVsPrev: 0.8},
		},
	}
}

func testFC() Context {
	return Context{
		Symbol: "005930",
		Bar:    types.AggBar{Bar: types.Bar{Open: 100, High: 102, Low: 99.5, Close: 101.8, Vol: 20000}},
		At:     time.Date(2026, 8, 28, 10, 30, 0, 0, time.FixedZone("KST", 9*3600)),
	}
}

type stubFilter struct {
	name    string
	exclude bool
	reason  string
	calls   int
}

func (f *stubFilter) Name() string { return f.name }
func (f *stubFilter) Evaluate(context.Context, *pattern.Verdict, Context) (bool, string) {
	f.calls++
	return f.exclude, f.reason
}

func TestChainShortCircuitsOnFirstExclusion(t *testing.T) {
	first := &stubFilter{name: "first", exclude: true, reason: "first veto"}
	second := &stubFilter{name: "second"}
	rec := NewRecorder()
	chain := NewChain(rec, first, second)

	v := passingVerdict()
	chain.Apply(context.Background(), v, testFC())

	if v.HasPattern {
		t.Fatal("expected verdict to be excluded")
	}
	if v.ExclusionReason != "first veto" {
		t.Errorf("exclusion reason %q, expected first filter's", v.ExclusionReason)
	}
	if second.calls != 0 {
		t.Errorf("second filter ran %d times after short-circuit", second.calls)
	}

	stats := rec.Snapshot()
	if stats.Checked != 1 {
		t.Errorf("checked count %d, expected 1", stats.Checked)
	}
	if stats.Blocked["first"] != 1 {
		t.Errorf("blocked counts %v, expected first=1", stats.Blocked)
	}
}

func TestChainSkipsAlreadyExcludedVerdicts(t *testing.T) {
	f := &stubFilter{name: "any"}
	rec := NewRecorder()
	chain := NewChain(rec, f)

	v := passingVerdict()
	v.Exclude("scorer already rejected")
	chain.Apply(context.Background(), v, testFC())

	if f.calls != 0 {
		t.Error("filters must not run on an already excluded verdict")
	}
	if rec.Snapshot().Checked != 0 {
		t.Error("skipped verdicts must not count as checked")
	}
	if v.ExclusionReason != "scorer already rejected" {
		t.Errorf("scorer reason was overwritten: %q", v.ExclusionReason)
	}
}

func TestChainNilSinkDefaultsToNop(t *testing.T) {
	chain := NewChain(nil, &stubFilter{name: "any"})
	v := passingVerdict()
	chain.Apply(context.Background(), v, testFC())
	if !v.HasPattern {
		t.Error("passing verdict should survive the chain")
	}
}

func TestCombinationFilterDenylist(t *testing.T) {
	f := NewCombinationFilter(DefaultCombinationConfig())

	// gain 5.0 = medium, decline 2.0 = medium, support 2 = short: denylisted.
	v := passingVerdict()
	v.Stages.Support.CandleCount = 2
	exclude, reason := f.Evaluate(context.Background(), v, testFC())
	if !exclude {
		t.Fatal("expected denylisted combination to be excluded")
	}
	if reason == "" {
		t.Error("expected a reason naming the buckets")
	}

	// Support of 3 moves the tuple off the denylist.
	v.Stages.Support.CandleCount = 3
	if exclude, _ := f.Evaluate(context.Background(), v, testFC()); exclude {
		t.Error("medium/medium/medium is not denylisted by default")
	}
}

func TestCombinationBuckets(t *testing.T) {
	f := NewCombinationFilter(DefaultCombinationConfig())

	cases := []struct {
		gain   float64
		bucket string
	}{
		{3.9, "weak"},
		{4.0, "medium"},
		{6.0, "medium"},
		{6.1, "strong"},
	}
	for _, c := range cases {
		if got := f.GainBucket(c.gain); got != c.bucket {
			t.Errorf("GainBucket(%.1f) = %q, expected %q", c.gain, got, c.bucket)
		}
	}
	if f.DeclineBucket(1.4) != "shallow" || f.DeclineBucket(2.0) != "medium" || f.DeclineBucket(2.6) != "deep" {
		t.Error("decline buckets mismatch")
	}
	if f.SupportBucket(2) != "short" || f.SupportBucket(4) != "medium" || f.SupportBucket(5) != "long" {
		t.Error("support buckets mismatch")
	}
}

func TestClosePositionFilter(t *testing.T) {
	f := NewClosePositionFilter(0.55)
	v := passingVerdict()
	v.ClosePosition = 0.54
	if exclude, _ := f.Evaluate(context.Background(), v, testFC()); !exclude {
		t.Error("expected close position 0.54 to be excluded at min 0.55")
	}
	v.ClosePosition = 0.55
	if exclude, _ := f.Evaluate(context.Background(), v, testFC()); exclude {
		t.Error("expected close position at the minimum to pass")
	}
}

func TestConfidenceFilter(t *testing.T) {
	f := NewConfidenceFilter(map[int]float64{10: 65, 14: 75})
	v := passingVerdict()
	v.Confidence = 70

	fc := testFC() // 10:30
	if exclude, _ := f.Evaluate(context.Background(), v, fc); exclude {
		t.Error("70 should pass the hour-10 minimum of 65")
	}

	fc.At = time.Date(2026, 8, 28, 14, 10, 0, 0, time.FixedZone("KST", 9*3600))
	if exclude, _ := f.Evaluate(context.Background(), v, fc); !exclude {
		t.Error("70 should fail the hour-14 minimum of 75")
	}
}

type stubPredictor struct {
	prob float64
	err  error
}

func (p stubPredictor) WinProbability(context.Context, map[string]float64) (float64, error) {
	return p.prob, p.err
}

func TestMLFilterBlocksLowProbability(t *testing.T) {
	f := NewMLFilter(stubPredictor{prob: 0.3}, 0.55)
	if exclude, _ := f.Evaluate(context.Background(), passingVerdict(), testFC()); !exclude {
		t.Error("expected probability 0.3 to be excluded at threshold 0.55")
	}

	f = NewMLFilter(stubPredictor{prob: 0.7}, 0.55)
	if exclude, _ := f.Evaluate(context.Background(), passingVerdict(), testFC()); exclude {
		t.Error("expected probability 0.7 to pass")
	}
}

func TestMLFilterFailsOpen(t *testing.T) {
	f := NewMLFilter(stubPredictor{err: errors.New("sidecar down")}, 0.55)
	exclude, reason := f.Evaluate(context.Background(), passingVerdict(), testFC())
	if exclude {
		t.Errorf("predictor failure must fail open, got exclusion: %s", reason)
	}
}
