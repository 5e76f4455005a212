package replay

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"pullback-trading-bot/internal/types"
)

const candidateSchema = `
CREATE TABLE IF NOT EXISTS candidates (
	date   TEXT NOT NULL,
	symbol TEXT NOT NULL,
	PRIMARY KEY (date, symbol)
);
CREATE TABLE IF NOT EXISTS bars (
	date   TEXT    NOT NULL,
	symbol TEXT    NOT NULL,
	ts     INTEGER NOT NULL,
	open   REAL    NOT NULL,
	high   REAL    NOT NULL,
	low    REAL    NOT NULL,
	close  REAL    NOT NULL,
	vol    INTEGER NOT NULL,
	PRIMARY KEY (date, symbol, ts)
);`

// CandidateStore holds the replay universe: which symbols were candidates on
// which days, and their recorded 1-minute bars.
type CandidateStore struct {
	db *sql.DB
}

func OpenCandidateStore(path string) (*CandidateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open candidate db %s: %w", path, err)
	}
	if _, err := db.Exec(candidateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init candidate schema: %w", err)
	}
	return &CandidateStore{db: db}, nil
}

func (s *CandidateStore) Close() error { return s.db.Close() }

// Dates lists trading days with at least one candidate, ascending.
func (s *CandidateStore) Dates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT date FROM candidates ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// Symbols lists candidate symbols for one day, ascending.
func (s *CandidateStore) Symbols(ctx context.Context, date string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM candidates WHERE date = ? ORDER BY symbol`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// Bars loads one symbol-day of 1-minute bars in timestamp order.
func (s *CandidateStore) Bars(ctx context.Context, date, symbol string) ([]types.Bar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, vol FROM bars WHERE date = ? AND symbol = ? ORDER BY ts`,
		date, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []types.Bar
	for rows.Next() {
		var b types.Bar
		if err := rows.Scan(&b.Ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Vol); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// SaveBars records a candidate symbol-day and its bars in one transaction.
// Re-saving the same symbol-day overwrites bar rows.
func (s *CandidateStore) SaveBars(ctx context.Context, date, symbol string, bars []types.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO candidates (date, symbol) VALUES (?, ?)`, date, symbol); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO bars (date, symbol, ts, open, high, low, close, vol) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, date, symbol, b.Ts, b.Open, b.High, b.Low, b.Close, b.Vol); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Units expands the store into replay units for the requested dates and
// symbols. Empty slices mean all dates or all symbols.
func (s *CandidateStore) Units(ctx context.Context, dates, symbols []string) ([]Unit, error) {
	if len(dates) == 0 {
		var err error
		dates, err = s.Dates(ctx)
		if err != nil {
			return nil, err
		}
	}
	want := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		want[sym] = true
	}

	var units []Unit
	for _, date := range dates {
		syms, err := s.Symbols(ctx, date)
		if err != nil {
			return nil, err
		}
		for _, sym := range syms {
			if len(want) > 0 && !want[sym] {
				continue
			}
			bars, err := s.Bars(ctx, date, sym)
			if err != nil {
				return nil, err
			}
			if len(bars) == 0 {
				continue
			}
			units = append(units, Unit{Date: date, Symbol: sym, Bars: bars})
		}
	}
	return units, nil
}
