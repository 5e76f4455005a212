package pattern

import (
	"math"

	"pullback-trading-bot/internal/ta"
	"pullback-trading-bot/internal/types"
)

// SegmentConfig holds the stage thresholds. Percentages are whole percents
// (3.0 = 3%), ratios are plain multipliers.
type SegmentConfig struct {
	WindowBars             int
	MinBars                int
	MinUptrendGainPct      float64
	MinDeclinePct          float64
	SupportLengthMin       int
	SupportLengthMax       int
	SupportVolumeCapRatio  float64
	SupportVolumeSoftRatio float64
	SupportVolatilityMax   float64
	SupportPullbackMinPct  float64
	DeclineVolumeCapRatio  float64
	BreakoutVolumeRatioMin float64
	BreakoutBodyRatioMin   float64
	BreakoutVolumeCapRatio float64
}

func DefaultSegmentConfig() SegmentConfig {
	return SegmentConfig{
		WindowBars:             35,
		MinBars:                5,
		MinUptrendGainPct:      3.0,
		MinDeclinePct:          0.5,
		SupportLengthMin:       1,
		SupportLengthMax:       8,
		SupportVolumeCapRatio:  0.5,
		SupportVolumeSoftRatio: 0.3,
		SupportVolatilityMax:   0.015,
		SupportPullbackMinPct:  1.0,
		DeclineVolumeCapRatio:  0.6,
		BreakoutVolumeRatioMin: 1.5,
		BreakoutBodyRatioMin:   1.1,
		BreakoutVolumeCapRatio: 0.5,
	}
}

// Segmenter identifies the four pullback stages in an aggregated bar window.
// It holds no mutable state: Segment on identical input always yields
// identical output.
type Segmenter struct {
	cfg SegmentConfig
}

func NewSegmenter(cfg SegmentConfig) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Segment scans backward from the most recent completed bar: breakout
// candidate first, then the support run, the decline run, and the uptrend run.
// A nil result is the normal "no pattern at this bar" outcome, not an error.
// Boundary ties (a flat bar that could belong to two adjacent runs) always go
// to the stage nearer the breakout, since the scan is breakout-anchored.
func (s *Segmenter) Segment(bars []types.AggBar) *Stages {
	n := len(bars)
	if n < s.cfg.MinBars {
		return nil
	}

	// Bound the scan to the most recent window. Stage indices stay absolute.
	base := 0
	if s.cfg.WindowBars > 0 && n > s.cfg.WindowBars {
		base = n - s.cfg.WindowBars
	}

	cur := n - 1
	bo := bars[cur].Bar
	prev := bars[cur-1].Bar
	if !bo.Bullish() || bo.Close <= prev.Close || bo.High <= prev.High || bo.Vol <= prev.Vol {
		return nil
	}

	// Provisional volume ceiling for support membership; the final caps are
	// re-validated against the uptrend peak once it is known.
	windowMax := int64(0)
	for i := base; i < cur; i++ {
		if bars[i].Vol > windowMax {
			windowMax = bars[i].Vol
		}
	}
	if windowMax == 0 {
		return nil
	}

	// Support: flat, quiet bars immediately before the breakout.
	supEnd := cur - 1
	supStart := supEnd + 1
	for j := supEnd; j > base; j-- {
		if supEnd-j+1 > s.cfg.SupportLengthMax {
			break
		}
		change := math.Abs(bars[j].Close/bars[j-1].Close - 1)
		if change > s.cfg.SupportVolatilityMax {
			break
		}
		if float64(bars[j].Vol) > s.cfg.SupportVolumeCapRatio*float64(windowMax) {
			break
		}
		supStart = j
	}
	supCount := supEnd - supStart + 1
	if supCount < s.cfg.SupportLengthMin {
		return nil
	}

	// Decline: strictly falling closes immediately before support.
	decEnd := supStart - 1
	decStart := decEnd + 1
	for j := decEnd; j > base; j-- {
		if bars[j].Close >= bars[j-1].Close {
			break
		}
		decStart = j
	}
	decCount := decEnd - decStart + 1
	if decCount < 1 {
		return nil
	}

	// Uptrend: rising or flat closes immediately before the decline.
	upEnd := decStart - 1
	upStart := upEnd
	for j := upEnd; j > base; j-- {
		if bars[j].Close < bars[j-1].Close {
			break
		}
		upStart = j - 1
	}
	if upStart < base {
		upStart = base
	}
	upCount := upEnd - upStart + 1
	if upCount < 2 || upEnd < 0 {
		return nil
	}

	up := s.buildUptrend(bars, upStart, upEnd)
	if up == nil {
		return nil
	}
	dec := s.buildDecline(bars, decStart, decEnd, up)
	if dec == nil {
		return nil
	}
	sup := s.buildSupport(bars, supStart, supEnd, up)
	if sup == nil {
		return nil
	}
	br := s.buildBreakout(bars, cur, up, sup)
	if br == nil {
		return nil
	}

	return &Stages{Uptrend: *up, Decline: *dec, Support: *sup, Breakout: *br}
}

func (s *Segmenter) buildUptrend(bars []types.AggBar, start, end int) *Uptrend {
	firstOpen := bars[start].Open
	if firstOpen <= 0 {
		return nil
	}
	highClose := 0.0
	var maxVol, sumVol int64
	for i := start; i <= end; i++ {
		if bars[i].Close > highClose {
			highClose = bars[i].Close
		}
		if bars[i].Vol > maxVol {
			maxVol = bars[i].Vol
		}
		sumVol += bars[i].Vol
	}
	gain := (highClose/firstOpen - 1) * 100
	if gain < s.cfg.MinUptrendGainPct || maxVol == 0 {
		return nil
	}
	return &Uptrend{
		StartIdx:     start,
		EndIdx:       end,
		CandleCount:  end - start + 1,
		PriceGainPct: gain,
		HighPrice:    highClose,
		MaxVolume:    maxVol,
		AvgVolume:    float64(sumVol) / float64(end-start+1),
	}
}

func (s *Segmenter) buildDecline(bars []types.AggBar, start, end int, up *Uptrend) *Decline {
	trough := math.MaxFloat64
	var sumVol int64
	for i := start; i <= end; i++ {
		if bars[i].Close < trough {
			trough = bars[i].Close
		}
		if float64(bars[i].Vol) > s.cfg.DeclineVolumeCapRatio*float64(up.MaxVolume) {
			return nil
		}
		sumVol += bars[i].Vol
	}
	declinePct := (1 - trough/up.HighPrice) * 100
	if declinePct < s.cfg.MinDeclinePct {
		return nil
	}
	count := end - start + 1
	return &Decline{
		StartIdx:       start,
		EndIdx:         end,
		CandleCount:    count,
		DeclinePct:     declinePct,
		AvgVolumeRatio: float64(sumVol) / float64(count) / float64(up.MaxVolume),
	}
}

func (s *Segmenter) buildSupport(bars []types.AggBar, start, end int, up *Uptrend) *Support {
	var sumVol int64
	sumBody := 0.0
	closes := make([]float64, 0, end-start+1)
	softBreaches := 0
	for i := start; i <= end; i++ {
		v := float64(bars[i].Vol)
		if v > s.cfg.SupportVolumeCapRatio*float64(up.MaxVolume) {
			return nil
		}
		if v > s.cfg.SupportVolumeSoftRatio*float64(up.MaxVolume) {
			softBreaches++
		}
		sumVol += bars[i].Vol
		sumBody += bars[i].Body()
		closes = append(closes, bars[i].Close)
	}
	if softBreaches > 1 {
		return nil
	}
	count := end - start + 1
	volatility := ta.CoefVariation(closes)
	if volatility > s.cfg.SupportVolatilityMax {
		return nil
	}
	meanClose := ta.Mean(closes)
	if meanClose > up.HighPrice*(1-s.cfg.SupportPullbackMinPct/100) {
		return nil
	}
	return &Support{
		StartIdx:        start,
		EndIdx:          end,
		CandleCount:     count,
		SupportPrice:    meanClose,
		AvgVolume:       float64(sumVol) / float64(count),
		AvgBody:         sumBody / float64(count),
		AvgVolumeRatio:  float64(sumVol) / float64(count) / float64(up.MaxVolume),
		PriceVolatility: volatility,
	}
}

func (s *Segmenter) buildBreakout(bars []types.AggBar, idx int, up *Uptrend, sup *Support) *Breakout {
	b := bars[idx].Bar
	body := b.Body()

	if sup.AvgVolume > 0 && float64(b.Vol) < s.cfg.BreakoutVolumeRatioMin*sup.AvgVolume {
		return nil
	}
	if sup.AvgBody > 0 && body < s.cfg.BreakoutBodyRatioMin*sup.AvgBody {
		return nil
	}
	if body == 0 {
		return nil
	}
	// A breakout on volume rivaling the uptrend peak is distribution, not
	// accumulation.
	if float64(b.Vol) > s.cfg.BreakoutVolumeCapRatio*float64(up.MaxVolume) {
		return nil
	}

	prevVol := float64(bars[idx-1].Vol)
	volRatio := 0.0
	if prevVol > 0 {
		volRatio = (float64(b.Vol) - prevVol) / prevVol
	}
	bodyIncrease := 0.0
	if sup.AvgBody > 0 {
		bodyIncrease = (body - sup.AvgBody) / sup.AvgBody
	}
	return &Breakout{
		Idx:                   idx,
		Open:                  b.Open,
		High:                  b.High,
		Low:                   b.Low,
		Close:                 b.Close,
		Volume:                b.Vol,
		BodySize:              body,
		VolumeRatioVsPrev:     volRatio,
		BodyIncreaseVsSupport: bodyIncrease,
	}
}
