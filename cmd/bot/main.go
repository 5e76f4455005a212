package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pullback-trading-bot/internal/eod"
	"pullback-trading-bot/internal/logger"
	"pullback-trading-bot/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer trace.Shutdown(context.Background())

	cfg, err := loadConfig(ctx)
	if err != nil {
		os.Exit(1)
	}
	compressOldLogs(ctx)

	sched, err := initializeSchedule(cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Invalid schedule config", err)
		os.Exit(1)
	}

	brk := initializeBroker(ctx, cfg)
	if err := brk.Start(ctx, cfg.UniverseStatic); err != nil {
		logger.ErrorWithErr(ctx, "Broker start failed", err)
		os.Exit(1)
	}
	defer brk.Stop(context.Background())

	pred := initializePredictor(ctx, cfg)
	eng := initializeEngine(cfg, sched, brk, pred)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(time.Duration(cfg.PollSeconds) * time.Second)
	defer tick.Stop()
	eodTick := time.NewTicker(60 * time.Second)
	defer eodTick.Stop()

	logger.Info(ctx, "Bot started",
		"mode", cfg.Mode,
		"data_source", cfg.DataSource,
		"universe", cfg.UniverseStatic,
		"poll_seconds", cfg.PollSeconds,
	)

	for {
		select {
		case <-tick.C:
			if !sched.InSession(time.Now()) {
				continue
			}
			for _, sym := range cfg.UniverseStatic {
				if _, err := eng.Step(ctx, sym); err != nil {
					// One symbol's failure never stalls the rest of the
					// universe.
					logger.ErrorWithErr(ctx, "Step failed", err, "symbol", sym)
				}
			}
		case <-eodTick.C:
			if ok, _ := eod.ShouldRunNow(); ok {
				if p, err := eod.SummarizeToday(); err == nil && p != "" {
					logger.Info(ctx, "EOD CSV written", "path", p)
				}
			}
		case <-sigc:
			logger.Info(ctx, "Shutting down")
			if p, err := eod.SummarizeToday(); err == nil && p != "" {
				logger.Info(ctx, "EOD CSV written", "path", p)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}
