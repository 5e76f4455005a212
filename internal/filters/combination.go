package filters

import (
	"context"
	"fmt"

	"pullback-trading-bot/internal/pattern"
)

// CombinationConfig categorizes stage magnitudes into coarse buckets and
// holds the denylist of bucket tuples with historically net-negative return.
// The denylist is tuning data, not code: it ships as configuration.
type CombinationConfig struct {
	GainBounds    [2]float64 // weak below first, strong above second
	DeclineBounds [2]float64 // shallow below first, deep above second
	SupportBounds [2]int     // short at or below first, long above second
	Denylist      [][3]string
}

func DefaultCombinationConfig() CombinationConfig {
	return CombinationConfig{
		GainBounds:    [2]float64{4.0, 6.0},
		DeclineBounds: [2]float64{1.5, 2.5},
		SupportBounds: [2]int{2, 4},
		Denylist: [][3]string{
			{"weak", "deep", "short"},
			{"weak", "medium", "short"},
			{"medium", "medium", "medium"},
			{"medium", "medium", "short"},
		},
	}
}

// CombinationFilter vetoes patterns whose (gain, decline, support-length)
// bucket tuple is denylisted.
type CombinationFilter struct {
	cfg      CombinationConfig
	denylist map[[3]string]struct{}
}

func NewCombinationFilter(cfg CombinationConfig) *CombinationFilter {
	deny := make(map[[3]string]struct{}, len(cfg.Denylist))
	for _, combo := range cfg.Denylist {
		deny[combo] = struct{}{}
	}
	return &CombinationFilter{cfg: cfg, denylist: deny}
}

func (f *CombinationFilter) Name() string { return "combination" }

func (f *CombinationFilter) Evaluate(_ context.Context, v *pattern.Verdict, _ Context) (bool, string) {
	st := v.Stages
	combo := [3]string{
		f.GainBucket(st.Uptrend.PriceGainPct),
		f.DeclineBucket(st.Decline.DeclinePct),
		f.SupportBucket(st.Support.CandleCount),
	}
	if _, bad := f.denylist[combo]; bad {
		return true, fmt.Sprintf("combination filter: %s gain / %s decline / %s support is denylisted",
			combo[0], combo[1], combo[2])
	}
	return false, ""
}

func (f *CombinationFilter) GainBucket(gainPct float64) string {
	switch {
	case gainPct < f.cfg.GainBounds[0]:
		return "weak"
	case gainPct <= f.cfg.GainBounds[1]:
		return "medium"
	default:
		return "strong"
	}
}

func (f *CombinationFilter) DeclineBucket(declinePct float64) string {
	switch {
	case declinePct < f.cfg.DeclineBounds[0]:
		return "shallow"
	case declinePct <= f.cfg.DeclineBounds[1]:
		return "medium"
	default:
		return "deep"
	}
}

func (f *CombinationFilter) SupportBucket(candles int) string {
	switch {
	case candles <= f.cfg.SupportBounds[0]:
		return "short"
	case candles <= f.cfg.SupportBounds[1]:
		return "medium"
	default:
		return "long"
	}
}
