package pattern

import (
	"fmt"
	"time"

	"pullback-trading-bot/internal/types"
)

// Verdict is the scored outcome for one evaluated bar window. Filters may
// force HasPattern to false and append to Reasons/ExclusionReason; nothing
// else mutates a Verdict after Score returns it.
type Verdict struct {
	HasPattern      bool     `json:"has_pattern"`
	Confidence      float64  `json:"confidence"`
	Stages          *Stages  `json:"stages,omitempty"`
	Reasons         []string `json:"reasons,omitempty"`
	ExclusionReason string   `json:"exclusion_reason,omitempty"`
	ClosePosition   float64  `json:"close_position"`
}

// Exclude forces the verdict to a non-pattern, recording the first exclusion
// reason. Later exclusions never overwrite an earlier one.
func (v *Verdict) Exclude(reason string) {
	v.HasPattern = false
	if v.ExclusionReason == "" {
		v.ExclusionReason = reason
	}
	v.Reasons = append(v.Reasons, reason)
}

// ScoreConfig holds the scorer thresholds. Percentages are whole percents.
type ScoreConfig struct {
	Baseline            float64
	DayOpenMinGainPct   float64
	ClosePosBlockBelow  float64
	ClosePosBonusAbove  float64
	ClosePosBonus       float64
	VolumeRatioBonusMax float64
	BodyGrowthBonusMax  float64
	ConfidenceCeiling   float64
	MinConfidenceByHour map[int]float64
}

func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		Baseline:            50,
		DayOpenMinGainPct:   0.5,
		ClosePosBlockBelow:  0.55,
		ClosePosBonusAbove:  0.75,
		ClosePosBonus:       10,
		VolumeRatioBonusMax: 10,
		BodyGrowthBonusMax:  10,
		ConfidenceCeiling:   95,
		MinConfidenceByHour: map[int]float64{9: 70, 10: 65, 11: 65, 12: 70, 13: 70, 14: 75},
	}
}

// Scorer turns a segmentation into a confidence score and pattern verdict.
type Scorer struct {
	cfg ScoreConfig
}

func NewScorer(cfg ScoreConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// MinConfidenceAt returns the hour-of-day minimum confidence gate.
func (s *Scorer) MinConfidenceAt(at time.Time) float64 {
	return s.cfg.MinConfidenceByHour[at.Hour()]
}

// Score computes the verdict for the segmented stages anchored at the given
// breakout bar. dayOpen is the instrument's opening price for the trading
// day; at is the wall-clock time of the breakout bar.
func (s *Scorer) Score(st *Stages, cur types.AggBar, dayOpen float64, at time.Time) Verdict {
	v := Verdict{Stages: st, ClosePosition: cur.ClosePosition()}

	// Hard gate: only bars already showing intraday strength from the open
	// are eligible at all.
	if dayOpen > 0 && cur.Close < dayOpen*(1+s.cfg.DayOpenMinGainPct/100) {
		v.Exclude(fmt.Sprintf("day open gain %.2f%% below required %.2f%%",
			(cur.Close/dayOpen-1)*100, s.cfg.DayOpenMinGainPct))
		return v
	}

	if v.ClosePosition < s.cfg.ClosePosBlockBelow {
		v.Exclude(fmt.Sprintf("close position %.2f below block threshold %.2f",
			v.ClosePosition, s.cfg.ClosePosBlockBelow))
		return v
	}

	conf := s.cfg.Baseline

	if v.ClosePosition >= s.cfg.ClosePosBonusAbove {
		conf += s.cfg.ClosePosBonus
		v.Reasons = append(v.Reasons, fmt.Sprintf("close position %.2f strong", v.ClosePosition))
	} else {
		span := s.cfg.ClosePosBonusAbove - s.cfg.ClosePosBlockBelow
		if span > 0 {
			conf += s.cfg.ClosePosBonus * (v.ClosePosition - s.cfg.ClosePosBlockBelow) / span
		}
		v.Reasons = append(v.Reasons, fmt.Sprintf("close position %.2f mid-band", v.ClosePosition))
	}

	if d := clamp01(st.Breakout.VolumeRatioVsPrev) * s.cfg.VolumeRatioBonusMax; d > 0 {
		conf += d
		v.Reasons = append(v.Reasons, fmt.Sprintf("breakout volume +%.0f%% vs prior bar", st.Breakout.VolumeRatioVsPrev*100))
	}
	if d := clamp01(st.Breakout.BodyIncreaseVsSupport) * s.cfg.BodyGrowthBonusMax; d > 0 {
		conf += d
		v.Reasons = append(v.Reasons, fmt.Sprintf("breakout body +%.0f%% vs support", st.Breakout.BodyIncreaseVsSupport*100))
	}

	switch {
	case st.Uptrend.PriceGainPct >= 5:
		conf += 8
		v.Reasons = append(v.Reasons, fmt.Sprintf("uptrend gain %.2f%%", st.Uptrend.PriceGainPct))
	case st.Uptrend.PriceGainPct >= 3:
		conf += 4
		v.Reasons = append(v.Reasons, fmt.Sprintf("uptrend gain %.2f%%", st.Uptrend.PriceGainPct))
	}
	switch {
	case st.Decline.DeclinePct >= 3:
		conf += 5
	case st.Decline.DeclinePct >= 1.5:
		conf += 2
	}
	if st.Support.CandleCount >= 3 {
		conf += 2
		v.Reasons = append(v.Reasons, fmt.Sprintf("support held %d bars", st.Support.CandleCount))
	}
	if st.Support.AvgVolumeRatio <= 0.25 {
		conf += 3
		v.Reasons = append(v.Reasons, "support volume dried up")
	}

	if conf > 100 {
		conf = 100
	}
	if conf < 0 {
		conf = 0
	}
	v.Confidence = conf

	// A near-perfect score is more likely a degenerate input than a perfect
	// setup.
	if conf >= s.cfg.ConfidenceCeiling {
		v.Exclude(fmt.Sprintf("confidence %.1f at or above ceiling %.1f", conf, s.cfg.ConfidenceCeiling))
		return v
	}

	if min := s.cfg.MinConfidenceByHour[at.Hour()]; conf < min {
		v.Exclude(fmt.Sprintf("confidence %.1f below hour-%02d minimum %.1f", conf, at.Hour(), min))
		return v
	}

	v.HasPattern = true
	return v
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
