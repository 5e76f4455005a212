package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"pullback-trading-bot/internal/broker/brokerobs"
	"pullback-trading-bot/internal/broker/kis"
	"pullback-trading-bot/internal/engine"
	"pullback-trading-bot/internal/engine/engineobs"
	"pullback-trading-bot/internal/eod"
	"pullback-trading-bot/internal/eod/eodobs"
	"pullback-trading-bot/internal/filters"
	"pullback-trading-bot/internal/interfaces"
	"pullback-trading-bot/internal/logger"
	"pullback-trading-bot/internal/ml"
	"pullback-trading-bot/internal/schedule"
	"pullback-trading-bot/internal/signal"
	"pullback-trading-bot/internal/store"
	"pullback-trading-bot/internal/trace"
	"pullback-trading-bot/internal/tradelog"

	"github.com/joho/godotenv"
)

// initializeSystem initializes logger, tracer, and EOD summarizer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	// Initialize EOD summarizer with observability
	initializeEOD()

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("TRADER_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old tradelog files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeSchedule builds the market session schedule from config
func initializeSchedule(cfg *store.Config) (*schedule.Schedule, error) {
	return schedule.New(
		cfg.Schedule.Timezone,
		cfg.Schedule.Open,
		cfg.Schedule.Close,
		cfg.Schedule.EodLiquidation,
		cfg.Schedule.EntryCutoffHour,
	)
}

// initializeBroker initializes and returns the broker instance with observability
func initializeBroker(ctx context.Context, cfg *store.Config) interfaces.Broker {
	// Create base broker
	brk := kis.NewClient(kis.Params{
		Mode:       cfg.Mode,
		AppKey:     os.Getenv("KIS_APP_KEY"),
		AppSecret:  os.Getenv("KIS_APP_SECRET"),
		AccountNo:  os.Getenv("KIS_ACCOUNT_NO"),
		BaseURL:    os.Getenv("KIS_BASE_URL"),
		DataSource: cfg.DataSource,
	})

	// Log initialization info
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}

	if cfg.DataSource == "LIVE" {
		logger.Info(ctx, "Using LIVE minute bars from the brokerage API")
	} else {
		logger.Info(ctx, "Using STATIC synthetic minute bars for testing")
	}

	// Wrap with observability middleware
	return brokerobs.Wrap(brk)
}

// initializePredictor returns the ML win-probability client when the ML
// filter is enabled, nil otherwise
func initializePredictor(ctx context.Context, cfg *store.Config) interfaces.Predictor {
	if !cfg.Filters.ML.Enabled {
		logger.Info(ctx, "ML probability filter disabled")
		return nil
	}
	logger.Info(ctx, "ML probability filter enabled", "endpoint", cfg.ML.Endpoint, "threshold", cfg.Filters.ML.Threshold)
	return ml.NewClient(cfg.ML.Endpoint, time.Duration(cfg.ML.TimeoutSeconds)*time.Second)
}

// initializeEngine wires the evaluation pipeline and the live decision driver
// with observability
func initializeEngine(cfg *store.Config, sched *schedule.Schedule, brk interfaces.Broker, pred interfaces.Predictor) interfaces.Engine {
	// The live driver runs the no-op stats sink; block counters only matter
	// during replay analysis
	eval := signal.NewFromConfig(cfg, sched, filters.NopSink{}, pred)

	// Create base engine
	eng := engine.New(cfg, sched, brk, eval)

	// Wrap with observability middleware
	return engineobs.Wrap(eng)
}

// initializeEOD wraps the default EOD summarizer with observability
func initializeEOD() {
	// Create base summarizer
	baseSummarizer := eod.NewSummarizer()

	// Wrap with observability middleware
	observableSummarizer := eodobs.Wrap(baseSummarizer)

	// Set as default summarizer
	eod.SetDefaultSummarizer(observableSummarizer)
}
