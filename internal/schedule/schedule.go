package schedule

import (
	"fmt"
	"time"
)

// Schedule carries the trading session boundaries for one venue. All session
// times are injected configuration so shortened sessions (exam days, half
// days) are a config change, not a code change.
type Schedule struct {
	loc             *time.Location
	openMin         int // minutes from midnight
	closeMin        int
	liquidationMin  int
	entryCutoffHour int
}

// New builds a Schedule from "HH:MM" session boundaries in the given
// IANA timezone.
func New(tz, open, close_, liquidation string, entryCutoffHour int) (*Schedule, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	openMin, err := parseMinutes(open)
	if err != nil {
		return nil, fmt.Errorf("invalid open time: %w", err)
	}
	closeMin, err := parseMinutes(close_)
	if err != nil {
		return nil, fmt.Errorf("invalid close time: %w", err)
	}
	liqMin, err := parseMinutes(liquidation)
	if err != nil {
		return nil, fmt.Errorf("invalid liquidation time: %w", err)
	}
	if openMin >= closeMin {
		return nil, fmt.Errorf("open %s must precede close %s", open, close_)
	}
	if liqMin > closeMin {
		return nil, fmt.Errorf("liquidation %s must not follow close %s", liquidation, close_)
	}
	return &Schedule{
		loc:             loc,
		openMin:         openMin,
		closeMin:        closeMin,
		liquidationMin:  liqMin,
		entryCutoffHour: entryCutoffHour,
	}, nil
}

func parseMinutes(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (s *Schedule) Location() *time.Location { return s.loc }

// Midnight returns the start of t's trading day in the venue timezone.
func (s *Schedule) Midnight(t time.Time) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Schedule) at(day time.Time, min int) time.Time {
	return s.Midnight(day).Add(time.Duration(min) * time.Minute)
}

// OpenAt returns the session open on t's trading day.
func (s *Schedule) OpenAt(t time.Time) time.Time { return s.at(t, s.openMin) }

// CloseAt returns the session close on t's trading day.
func (s *Schedule) CloseAt(t time.Time) time.Time { return s.at(t, s.closeMin) }

// LiquidationAt returns the forced end-of-day exit time on t's trading day.
func (s *Schedule) LiquidationAt(t time.Time) time.Time { return s.at(t, s.liquidationMin) }

// InSession reports whether t falls within [open, close).
func (s *Schedule) InSession(t time.Time) bool {
	lt := t.In(s.loc)
	return !lt.Before(s.OpenAt(lt)) && lt.Before(s.CloseAt(lt))
}

// AllowsEntry reports whether new entries may still be evaluated at t:
// inside the session and before the entry cutoff hour.
func (s *Schedule) AllowsEntry(t time.Time) bool {
	lt := t.In(s.loc)
	if !s.InSession(lt) {
		return false
	}
	return lt.Hour() < s.entryCutoffHour
}

// EntryCutoffHour exposes the configured cutoff for reporting.
func (s *Schedule) EntryCutoffHour() int { return s.entryCutoffHour }
