package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

type eodSummarizer struct{}

// SummarizeDay folds the day's trade log into a per-symbol CSV: entry counts,
// average signal confidence, matched realized P&L, and how each position ended.
// A missing or empty log is not an error; there simply is nothing to report.
func (s *eodSummarizer) SummarizeDay(t time.Time) (string, error) {
	inPath := todaysTradeFile(t)
	if _, err := os.Stat(inPath); err != nil {
		return "", nil
	}
	f, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var tl tradeLine
		if err := json.Unmarshal([]byte(sc.Text()), &tl); err != nil {
			continue
		}
		row := aggs[tl.Symbol]
		if row == nil {
			row = &aggRow{Symbol: tl.Symbol}
			aggs[tl.Symbol] = row
		}
		switch tl.Side {
		case "BUY":
			row.Entries++
			row.ConfSum += tl.Confidence
			row.BuyQty += tl.Qty
			row.BuyValue += float64(tl.Qty) * tl.Price
		case "SELL":
			row.SellQty += tl.Qty
			row.SellValue += float64(tl.Qty) * tl.Price
			switch tl.Reason {
			case "TAKE_PROFIT":
				row.TakeProfits++
			case "STOP_LOSS":
				row.StopLosses++
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	headers := []string{
		"symbol", "entries", "avg_confidence",
		"buy_qty", "buy_avg", "sell_qty", "sell_avg",
		"take_profits", "stop_losses", "realized_pnl",
	}
	if err := w.Write(headers); err != nil {
		return "", err
	}

	var totalEntries int
	var totalPnL float64
	for _, k := range keys {
		r := aggs[k]
		var buyAvg, sellAvg, avgConf float64
		if r.BuyQty > 0 {
			buyAvg = r.BuyValue / float64(r.BuyQty)
		}
		if r.SellQty > 0 {
			sellAvg = r.SellValue / float64(r.SellQty)
		}
		if r.Entries > 0 {
			avgConf = r.ConfSum / float64(r.Entries)
		}
		matched := r.BuyQty
		if r.SellQty < matched {
			matched = r.SellQty
		}
		r.RealizedPnL = float64(matched) * (sellAvg - buyAvg)
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.Entries), fmt.Sprintf("%.1f", avgConf),
			strconv.Itoa(r.BuyQty), fmt.Sprintf("%.4f", buyAvg),
			strconv.Itoa(r.SellQty), fmt.Sprintf("%.4f", sellAvg),
			strconv.Itoa(r.TakeProfits), strconv.Itoa(r.StopLosses),
			fmt.Sprintf("%.2f", r.RealizedPnL),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalEntries += r.Entries
		totalPnL += r.RealizedPnL
	}
	_ = w.Write([]string{"TOTAL", strconv.Itoa(totalEntries), "", "", "", "", "", "", "", fmt.Sprintf("%.2f", totalPnL)})
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday() (string, error) {
	return s.SummarizeDay(kstNow())
}

// ShouldRunNow reports whether the post-close summary is due and not yet
// written for today.
func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := kstNow()
	outPath := eodCSVPath(now)
	if now.After(summaryCutoff(now)) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}
