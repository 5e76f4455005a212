package replay

import (
	"time"

	"pullback-trading-bot/internal/exits"
)

// HourStats aggregates outcomes for signals fired within one hour of day.
type HourStats struct {
	Signals   int     `json:"signals"`
	Executed  int     `json:"executed"`
	Wins      int     `json:"wins"`
	ReturnPct float64 `json:"return_pct"`
}

// Summary is a read-only projection over a batch of replayed trades. It
// never mutates the trades it summarizes.
type Summary struct {
	Signals      int                  `json:"signals"`
	Executed     int                  `json:"executed"`
	Unexecuted   int                  `json:"unexecuted"`
	Wins         int                  `json:"wins"`
	WinRatePct   float64              `json:"win_rate_pct"`
	TotalReturn  float64              `json:"total_return_pct"`
	AvgReturn    float64              `json:"avg_return_pct"`
	ByExitReason map[exits.Reason]int `json:"by_exit_reason"`
	ByHour       map[int]HourStats    `json:"by_hour"`
}

// Summarize computes win rate and return aggregates over executed trades.
// Unexecuted signals count toward signal totals only.
func Summarize(trades []Trade, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}
	s := Summary{
		ByExitReason: make(map[exits.Reason]int),
		ByHour:       make(map[int]HourStats),
	}
	for _, t := range trades {
		s.Signals++
		s.ByExitReason[t.ExitReason]++
		hour := time.Unix(t.SignalTs, 0).In(loc).Hour()
		hs := s.ByHour[hour]
		hs.Signals++

		if t.ExitReason == exits.Unexecuted {
			s.Unexecuted++
			s.ByHour[hour] = hs
			continue
		}
		s.Executed++
		s.TotalReturn += t.ReturnPct
		hs.Executed++
		hs.ReturnPct += t.ReturnPct
		if t.ReturnPct > 0 {
			s.Wins++
			hs.Wins++
		}
		s.ByHour[hour] = hs
	}
	if s.Executed > 0 {
		s.WinRatePct = float64(s.Wins) / float64(s.Executed) * 100
		s.AvgReturn = s.TotalReturn / float64(s.Executed)
	}
	return s
}
