package kis

import (
	"hash/fnv"
	"math"
	"time"

	"pullback-trading-bot/internal/types"
)

// staticSession builds a deterministic synthetic 1-minute session for
// DRY_RUN testing: a drifting open, a sharp uptrend, a shallow pullback, a
// quiet consolidation, then a volume breakout, followed by noise into the
// close. The same symbol always yields the same bars for a given day.
func staticSession(symbol string) []types.Bar {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	seed := float64(h.Sum32()%1000) / 1000.0

	kst := time.FixedZone("KST", 32400)
	now := time.Now().In(kst)
	open := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, kst)

	base := 10000 + math.Floor(seed*20000)
	price := base
	bars := make([]types.Bar, 0, 390)

	phase := func(minute int) (drift float64, vol int64) {
		switch {
		case minute < 60: // quiet open
			return 0.0002 * math.Sin(float64(minute)/7+seed*6), 12000
		case minute < 90: // uptrend
			return 0.0018, 60000
		case minute < 100: // pullback
			return -0.0016, 18000
		case minute < 112: // consolidation
			return 0.0001 * math.Sin(float64(minute)), 9000
		case minute == 112: // breakout
			return 0.004, 28000
		default: // drift into the close
			return 0.0003 * math.Sin(float64(minute)/11+seed*3), 15000
		}
	}

	for minute := 0; minute < 390; minute++ {
		drift, vol := phase(minute)
		o := price
		c := o * (1 + drift)
		hi := math.Max(o, c) * 1.0004
		lo := math.Min(o, c) * 0.9996
		bars = append(bars, types.Bar{
			Ts:    open.Add(time.Duration(minute) * time.Minute).Unix(),
			Open:  round2(o),
			High:  round2(hi),
			Low:   round2(lo),
			Close: round2(c),
			Vol:   vol + int64(seed*float64(vol)/4),
		})
		price = c
	}
	return bars
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
