package signal

import (
	"context"
	"fmt"
	"time"

	"pullback-trading-bot/internal/filters"
	"pullback-trading-bot/internal/interfaces"
	"pullback-trading-bot/internal/pattern"
	"pullback-trading-bot/internal/schedule"
	"pullback-trading-bot/internal/store"
	"pullback-trading-bot/internal/timeframe"
	"pullback-trading-bot/internal/types"
)

// Evaluator owns the Aggregator→Segmenter→Scorer→Filters pipeline. The replay
// engine and the live driver are alternate front-ends over this one code
// path: given the same bar prefix they must receive byte-identical verdicts.
type Evaluator struct {
	widthMinutes int
	seg          *pattern.Segmenter
	scorer       *pattern.Scorer
	chain        *filters.Chain
	loc          *time.Location
}

func NewEvaluator(widthMinutes int, seg *pattern.Segmenter, scorer *pattern.Scorer, chain *filters.Chain, loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{widthMinutes: widthMinutes, seg: seg, scorer: scorer, chain: chain, loc: loc}
}

// NewFromConfig wires the pipeline from the loaded configuration. The stats
// sink and predictor are injected; pass nil for the production no-op sink and
// no ML gating respectively.
func NewFromConfig(cfg *store.Config, sched *schedule.Schedule, stats filters.StatsSink, pred interfaces.Predictor) *Evaluator {
	seg := pattern.NewSegmenter(SegmentConfigFrom(cfg))
	scorer := pattern.NewScorer(ScoreConfigFrom(cfg))
	chain := ChainFrom(cfg, stats, pred)
	return NewEvaluator(cfg.Aggregation.WidthMinutes, seg, scorer, chain, sched.Location())
}

func SegmentConfigFrom(cfg *store.Config) pattern.SegmentConfig {
	p := cfg.Pattern
	return pattern.SegmentConfig{
		WindowBars:             p.WindowBars,
		MinBars:                p.MinBars,
		MinUptrendGainPct:      p.MinUptrendGainPct,
		MinDeclinePct:          p.MinDeclinePct,
		SupportLengthMin:       p.SupportLengthMin,
		SupportLengthMax:       p.SupportLengthMax,
		SupportVolumeCapRatio:  p.SupportVolumeCapRatio,
		SupportVolumeSoftRatio: p.SupportVolumeSoftRatio,
		SupportVolatilityMax:   p.SupportVolatilityMax,
		SupportPullbackMinPct:  p.SupportPullbackMinPct,
		DeclineVolumeCapRatio:  p.DeclineVolumeCapRatio,
		BreakoutVolumeRatioMin: p.BreakoutVolumeRatioMin,
		BreakoutBodyRatioMin:   p.BreakoutBodyRatioMin,
		BreakoutVolumeCapRatio: p.BreakoutVolumeCapRatio,
	}
}

func ScoreConfigFrom(cfg *store.Config) pattern.ScoreConfig {
	s := cfg.Scorer
	return pattern.ScoreConfig{
		Baseline:            s.BaselineConfidence,
		DayOpenMinGainPct:   s.DayOpenMinGainPct,
		ClosePosBlockBelow:  s.ClosePositionBlockBelow,
		ClosePosBonusAbove:  s.ClosePositionBonusAbove,
		ClosePosBonus:       s.ClosePositionBonus,
		VolumeRatioBonusMax: s.VolumeRatioBonusMax,
		BodyGrowthBonusMax:  s.BodyGrowthBonusMax,
		ConfidenceCeiling:   s.ConfidenceCeiling,
		MinConfidenceByHour: s.MinConfidenceByHour,
	}
}

func ChainFrom(cfg *store.Config, stats filters.StatsSink, pred interfaces.Predictor) *filters.Chain {
	var fs []filters.Filter
	if cfg.Filters.Combination.Enabled {
		cc := filters.CombinationConfig{
			GainBounds:    [2]float64{cfg.Filters.Combination.GainBounds[0], cfg.Filters.Combination.GainBounds[1]},
			DeclineBounds: [2]float64{cfg.Filters.Combination.DeclineBounds[0], cfg.Filters.Combination.DeclineBounds[1]},
			SupportBounds: [2]int{cfg.Filters.Combination.SupportBounds[0], cfg.Filters.Combination.SupportBounds[1]},
		}
		for _, combo := range cfg.Filters.Combination.Denylist {
			cc.Denylist = append(cc.Denylist, [3]string{combo[0], combo[1], combo[2]})
		}
		fs = append(fs, filters.NewCombinationFilter(cc))
	}
	if cfg.Filters.ClosePosition.Enabled {
		fs = append(fs, filters.NewClosePositionFilter(cfg.Filters.ClosePosition.Min))
	}
	if cfg.Filters.Confidence.Enabled {
		fs = append(fs, filters.NewConfidenceFilter(cfg.Scorer.MinConfidenceByHour))
	}
	if cfg.Filters.ML.Enabled && pred != nil {
		fs = append(fs, filters.NewMLFilter(pred, cfg.Filters.ML.Threshold))
	}
	return filters.NewChain(stats, fs...)
}

// WidthMinutes exposes the aggregation width the evaluator was built with.
func (e *Evaluator) WidthMinutes() int { return e.widthMinutes }

// EvaluateAgg runs Segmenter→Scorer→Filters over already-aggregated bars
// whose last element is the most recent completed bar. A nil-stage miss
// yields a zero-confidence verdict, not an error; errors are reserved for
// data-quality problems.
func (e *Evaluator) EvaluateAgg(ctx context.Context, symbol string, bars []types.AggBar, dayOpen float64) (pattern.Verdict, error) {
	if err := checkQuality(bars); err != nil {
		return pattern.Verdict{}, err
	}
	st := e.seg.Segment(bars)
	if st == nil {
		return pattern.Verdict{}, nil
	}
	cur := bars[len(bars)-1]
	at := time.Unix(cur.Ts, 0).In(e.loc)
	v := e.scorer.Score(st, cur, dayOpen, at)
	e.chain.Apply(ctx, &v, filters.Context{Symbol: symbol, Bars: bars, Bar: cur, At: at})
	return v, nil
}

// Evaluate aggregates raw 1-minute bars and evaluates the most recent
// completed aggregate. asOf > 0 (live) excludes in-progress aggregates;
// asOf <= 0 (replay) includes every bar.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string, bars1m []types.Bar, asOf int64, dayOpen float64) (pattern.Verdict, []types.AggBar, error) {
	agg := timeframe.AggregateAsOf(bars1m, e.widthMinutes, asOf)
	if len(agg) == 0 {
		return pattern.Verdict{}, nil, nil
	}
	v, err := e.EvaluateAgg(ctx, symbol, agg, dayOpen)
	return v, agg, err
}

func checkQuality(bars []types.AggBar) error {
	var prev int64
	for i, b := range bars {
		if !b.Valid() {
			return fmt.Errorf("bar %d violates OHLC invariant", i)
		}
		if i > 0 && b.Ts <= prev {
			return fmt.Errorf("bar %d timestamp %d not after %d", i, b.Ts, prev)
		}
		prev = b.Ts
	}
	return nil
}
