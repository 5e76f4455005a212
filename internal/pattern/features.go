package pattern

import (
	"pullback-trading-bot/internal/ta"
	"pullback-trading-bot/internal/types"
)

// FeatureVector derives the fixed feature set consumed by the external
// win-probability predictor. The key set is stable; values are plain numbers.
func FeatureVector(st *Stages, bars []types.AggBar) map[string]float64 {
	upVols := make([]float64, 0, st.Uptrend.CandleCount)
	for i := st.Uptrend.StartIdx; i <= st.Uptrend.EndIdx && i < len(bars); i++ {
		upVols = append(upVols, float64(bars[i].Vol))
	}

	volConcentration := 0.0
	if st.Uptrend.AvgVolume > 0 {
		volConcentration = float64(st.Uptrend.MaxVolume) / st.Uptrend.AvgVolume
	}
	gainPerCandle := 0.0
	if st.Uptrend.CandleCount > 0 {
		gainPerCandle = st.Uptrend.PriceGainPct / float64(st.Uptrend.CandleCount)
	}
	declineDepth := 0.0
	if st.Uptrend.PriceGainPct > 0 {
		declineDepth = st.Decline.DeclinePct / st.Uptrend.PriceGainPct
	}
	volStd := 0.0
	if len(upVols) > 1 {
		volStd = ta.Std(upVols)
	}

	return map[string]float64{
		"decline_pct":                      st.Decline.DeclinePct,
		"volume_ratio_breakout_to_uptrend": float64(st.Breakout.Volume) / float64(st.Uptrend.MaxVolume),
		"breakout_body_ratio":              st.Breakout.BodyIncreaseVsSupport,
		"uptrend_gain":                     st.Uptrend.PriceGainPct,
		"uptrend_max_volume":               float64(st.Uptrend.MaxVolume),
		"decline_candles":                  float64(st.Decline.CandleCount),
		"support_candles":                  float64(st.Support.CandleCount),
		"support_volatility":               st.Support.PriceVolatility,
		"decline_depth":                    declineDepth,
		"uptrend_gain_per_candle":          gainPerCandle,
		"volume_concentration":             volConcentration,
		"uptrend_volume_std":               volStd,
	}
}
