package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	ossignal "os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pullback-trading-bot/internal/exits"
	"pullback-trading-bot/internal/filters"
	"pullback-trading-bot/internal/interfaces"
	"pullback-trading-bot/internal/logger"
	"pullback-trading-bot/internal/ml"
	"pullback-trading-bot/internal/replay"
	"pullback-trading-bot/internal/schedule"
	"pullback-trading-bot/internal/signal"
	"pullback-trading-bot/internal/store"
)

var (
	cfgFile    string
	dbPath     string
	dateList   string
	symbolList string
	workers    int
	format     string
	withML     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded sessions through the pullback signal pipeline",
		Long: `Replay runs recorded 1-minute candidate sessions through the same
evaluation pipeline the live bot uses, simulating fills and exits to
measure what the strategy would have done.

Examples:
  replay --db data/candidates.db --date 2026-08-28
  replay --symbols 005930,000660 --workers 8 --format json`,
		RunE: run,
	}

	// Flags
	rootCmd.Flags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "candidate database path (default: replay.db_path from config)")
	rootCmd.Flags().StringVar(&dateList, "date", "", "comma-separated list of dates (YYYY-MM-DD, default: all recorded)")
	rootCmd.Flags().StringVar(&symbolList, "symbols", "", "comma-separated list of symbols (default: all candidates)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "number of parallel workers (default: replay.workers from config)")
	rootCmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	rootCmd.Flags().BoolVar(&withML, "ml", false, "apply the ML probability filter during replay")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	cfg, err := store.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if workers > 0 {
		cfg.Replay.Workers = workers
	}
	if dbPath == "" {
		dbPath = cfg.Replay.DBPath
	}
	if !withML {
		cfg.Filters.ML.Enabled = false
	}

	sched, err := schedule.New(
		cfg.Schedule.Timezone,
		cfg.Schedule.Open,
		cfg.Schedule.Close,
		cfg.Schedule.EodLiquidation,
		cfg.Schedule.EntryCutoffHour,
	)
	if err != nil {
		return fmt.Errorf("building schedule: %w", err)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt
	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted. Stopping replay...")
		cancel()
	}()

	// Load replay units from the candidate store
	cs, err := replay.OpenCandidateStore(dbPath)
	if err != nil {
		return err
	}
	defer cs.Close()

	units, err := cs.Units(ctx, splitList(dateList), splitList(symbolList))
	if err != nil {
		return fmt.Errorf("loading candidates: %w", err)
	}
	if len(units) == 0 {
		return fmt.Errorf("no recorded candidate sessions in %s", dbPath)
	}

	// Wire the pipeline with a recording stats sink so blocked-signal
	// counters survive the run
	rec := filters.NewRecorder()
	var pred interfaces.Predictor
	if cfg.Filters.ML.Enabled {
		pred = ml.NewClient(cfg.ML.Endpoint, time.Duration(cfg.ML.TimeoutSeconds)*time.Second)
	}
	eval := signal.NewFromConfig(cfg, sched, rec, pred)
	eng := replay.NewEngine(cfg, sched, eval)

	fmt.Printf("Replaying %d symbol-days with %d workers...\n\n", len(units), cfg.Replay.Workers)

	// Setup progress bar
	bar := progressbar.NewOptions(len(units),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Replaying"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	startTime := time.Now()
	results := eng.RunBatch(ctx, units, cfg.Replay.Workers, func(done, total int) {
		bar.Set(done)
	})
	bar.Finish()
	fmt.Println()

	trades := replay.CollectTrades(results)
	summary := replay.Summarize(trades, sched.Location())
	stats := rec.Snapshot()
	elapsed := time.Since(startTime)

	if format == "json" {
		return outputJSON(trades, summary, stats)
	}
	return outputTable(trades, summary, stats, sched, elapsed)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func outputJSON(trades []replay.Trade, summary replay.Summary, stats filters.Stats) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Trades      []replay.Trade `json:"trades"`
		Summary     replay.Summary `json:"summary"`
		FilterStats filters.Stats  `json:"filter_stats"`
	}{trades, summary, stats})
}

func outputTable(trades []replay.Trade, summary replay.Summary, stats filters.Stats, sched *schedule.Schedule, elapsed time.Duration) error {
	if len(trades) == 0 {
		fmt.Println("No signals fired.")
		fmt.Printf("Checked %d evaluations in %s\n", stats.Checked, elapsed.Round(time.Second))
		return nil
	}

	fmt.Printf("Found %d signals (%d executed):\n\n", summary.Signals, summary.Executed)

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Symbol", "Signal", "Entry", "Exit", "Reason", "Return"}),
	)
	for _, t := range trades {
		ret := "-"
		entryAt := "-"
		exitAt := "-"
		if t.ExitReason != exits.Unexecuted {
			ret = fmt.Sprintf("%+.2f%%", t.ReturnPct)
			entryAt = time.Unix(t.EntryTs, 0).In(sched.Location()).Format("15:04")
			exitAt = time.Unix(t.ExitTs, 0).In(sched.Location()).Format("15:04")
		}
		table.Append([]string{
			t.Symbol,
			time.Unix(t.SignalTs, 0).In(sched.Location()).Format("01-02 15:04"),
			entryAt,
			exitAt,
			string(t.ExitReason),
			ret,
		})
	}
	table.Render()

	fmt.Printf("\nWin rate: %.1f%% (%d/%d) | Total return: %+.2f%% | Avg: %+.2f%%\n",
		summary.WinRatePct, summary.Wins, summary.Executed, summary.TotalReturn, summary.AvgReturn)

	hours := make([]int, 0, len(summary.ByHour))
	for h := range summary.ByHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	for _, h := range hours {
		hs := summary.ByHour[h]
		fmt.Printf("  %02d:00  signals=%d executed=%d wins=%d return=%+.2f%%\n",
			h, hs.Signals, hs.Executed, hs.Wins, hs.ReturnPct)
	}

	if len(stats.Blocked) > 0 {
		fmt.Println("\n--- Filter Blocks ---")
		blockTable := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Filter", "Blocked"}),
		)
		names := make([]string, 0, len(stats.Blocked))
		for name := range stats.Blocked {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			blockTable.Append([]string{name, fmt.Sprintf("%d", stats.Blocked[name])})
		}
		blockTable.Render()
	}

	fmt.Printf("\nReplayed in %s (%d evaluations)\n", elapsed.Round(time.Second), stats.Checked)
	return nil
}
