package timeframe

import (
	"pullback-trading-bot/internal/types"
)

// Aggregate folds finer-granularity bars into widthMinutes bars with no
// completion cutoff (replay mode: every group is emitted).
func Aggregate(bars []types.Bar, widthMinutes int) []types.AggBar {
	return AggregateAsOf(bars, widthMinutes, 0)
}

// AggregateAsOf folds bars into widthMinutes bars, labeling each aggregate by
// its floor-aligned interval start. When asOf > 0 (live mode), any aggregate
// whose interval end exceeds asOf is still in progress and is excluded.
//
// Aggregation per group: open = first open, high = max high, low = min low,
// close = last close, volume = sum. SourceCount records how many input bars
// contributed; fewer than widthMinutes is a data-quality warning left to the
// caller. An empty input yields an empty output, never an error.
func AggregateAsOf(bars []types.Bar, widthMinutes int, asOf int64) []types.AggBar {
	if len(bars) == 0 || widthMinutes <= 0 {
		return nil
	}
	width := int64(widthMinutes) * 60

	out := make([]types.AggBar, 0, len(bars)/widthMinutes+1)
	var cur *types.AggBar
	for _, b := range bars {
		start := b.Ts - b.Ts%width
		if cur == nil || cur.Ts != start {
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &types.AggBar{
				Bar: types.Bar{
					Ts:    start,
					Open:  b.Open,
					High:  b.High,
					Low:   b.Low,
					Close: b.Close,
					Vol:   b.Vol,
				},
				SourceCount: 1,
			}
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Vol += b.Vol
		cur.SourceCount++
	}
	if cur != nil {
		out = append(out, *cur)
	}

	if asOf <= 0 {
		return out
	}
	complete := out[:0:0]
	for _, a := range out {
		if a.Ts+width <= asOf {
			complete = append(complete, a)
		}
	}
	return complete
}
