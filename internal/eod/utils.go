package eod

import (
	"os"
	"path/filepath"
	"time"
)

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func kstNow() time.Time {
	return time.Now().In(time.FixedZone("KST", 32400))
}

func todaysTradeFile(t time.Time) string {
	dateStr := t.Format("2006-01-02")
	return filepath.Join(logDir(), dateStr+".txt")
}

func eodCSVPath(t time.Time) string {
	dateStr := t.Format("2006-01-02")
	return filepath.Join(logDir(), "eod", dateStr+".csv")
}

// summaryCutoff is when the daily report becomes due, shortly after the
// 15:30 close.
func summaryCutoff(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 15, 40, 0, 0, t.Location())
}
