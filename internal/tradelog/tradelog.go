package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pullback-trading-bot/internal/pattern"
)

var mu sync.Mutex

// Entry is one executed trade, appended as JSONL to the daily trade file.
type Entry struct {
	Time, Symbol, Side, OrderID, Reason string
	Qty                                 int
	Price                               float64
	Confidence                          float64
	Extra                               map[string]any `json:"extra,omitempty"`
}

// PatternEntry is one pattern evaluation worth keeping: the verdict with its
// stage detail, appended to the daily pattern file for offline analysis.
type PatternEntry struct {
	Time    string          `json:"time"`
	Symbol  string          `json:"symbol"`
	Verdict pattern.Verdict `json:"verdict"`
	Price   float64         `json:"price"`
	Extra   map[string]any  `json:"extra,omitempty"`
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func kstNow() time.Time { return time.Now().In(time.FixedZone("KST", 32400)) }

func dailyFilepath(t time.Time) string {
	d := t.Format("2006-01-02")
	return filepath.Join(logDir(), d+".txt")
}

func patternsFilepath(t time.Time) string {
	d := t.Format("2006-01-02")
	return filepath.Join(logDir(), "patterns", d+".txt")
}

func appendLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(v)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	now := kstNow()
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(dailyFilepath(now), e)
}

func AppendPattern(e PatternEntry) error {
	mu.Lock()
	defer mu.Unlock()
	now := kstNow()
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(patternsFilepath(now), e)
}

// CompressOlder gzips daily log files older than retentionDays.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}
		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()
		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
