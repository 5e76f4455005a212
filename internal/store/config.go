package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode           string   `yaml:"mode"`
	DataSource     string   `yaml:"data_source"`
	PollSeconds    int      `yaml:"poll_seconds"`
	Exchange       string   `yaml:"exchange"`
	UniverseStatic []string `yaml:"universe_static"`

	Aggregation struct {
		WidthMinutes int `yaml:"width_minutes"`
	} `yaml:"aggregation"`

	Pattern struct {
		WindowBars             int     `yaml:"window_bars"`
		MinBars                int     `yaml:"min_bars"`
		MinUptrendGainPct      float64 `yaml:"min_uptrend_gain_pct"`
		MinDeclinePct          float64 `yaml:"min_decline_pct"`
		SupportLengthMin       int     `yaml:"support_length_min"`
		SupportLengthMax       int     `yaml:"support_length_max"`
		SupportVolumeCapRatio  float64 `yaml:"support_volume_cap_ratio"`
		SupportVolumeSoftRatio float64 `yaml:"support_volume_soft_ratio"`
		SupportVolatilityMax   float64 `yaml:"support_volatility_max"`
		SupportPullbackMinPct  float64 `yaml:"support_pullback_min_pct"`
		DeclineVolumeCapRatio  float64 `yaml:"decline_volume_cap_ratio"`
		BreakoutVolumeRatioMin float64 `yaml:"breakout_volume_ratio_min"`
		BreakoutBodyRatioMin   float64 `yaml:"breakout_body_ratio_min"`
		BreakoutVolumeCapRatio float64 `yaml:"breakout_volume_cap_ratio"`
	} `yaml:"pattern"`

	Scorer struct {
		BaselineConfidence      float64         `yaml:"baseline_confidence"`
		DayOpenMinGainPct       float64         `yaml:"day_open_min_gain_pct"`
		ClosePositionBlockBelow float64         `yaml:"close_position_block_below"`
		ClosePositionBonusAbove float64         `yaml:"close_position_bonus_above"`
		ClosePositionBonus      float64         `yaml:"close_position_bonus"`
		VolumeRatioBonusMax     float64         `yaml:"volume_ratio_bonus_max"`
		BodyGrowthBonusMax      float64         `yaml:"body_growth_bonus_max"`
		ConfidenceCeiling       float64         `yaml:"confidence_ceiling"`
		MinConfidenceByHour     map[int]float64 `yaml:"min_confidence_by_hour"`
	} `yaml:"scorer"`

	Filters struct {
		Combination struct {
			Enabled       bool       `yaml:"enabled"`
			GainBounds    []float64  `yaml:"gain_bounds"`
			DeclineBounds []float64  `yaml:"decline_bounds"`
			SupportBounds []int      `yaml:"support_bounds"`
			Denylist      [][]string `yaml:"denylist"`
		} `yaml:"combination"`
		ClosePosition struct {
			Enabled bool    `yaml:"enabled"`
			Min     float64 `yaml:"min"`
		} `yaml:"close_position"`
		Confidence struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"confidence"`
		ML struct {
			Enabled   bool    `yaml:"enabled"`
			Threshold float64 `yaml:"threshold"`
		} `yaml:"ml"`
	} `yaml:"filters"`

	Replay struct {
		EntryFillFraction   float64 `yaml:"entry_fill_fraction"`
		EntryTimeoutMinutes int     `yaml:"entry_timeout_minutes"`
		TakeProfitPct       float64 `yaml:"take_profit_pct"`
		StopLossPct         float64 `yaml:"stop_loss_pct"`
		CooldownMinutes     int     `yaml:"cooldown_minutes"`
		TechnicalExitSMA    int     `yaml:"technical_exit_sma"`
		Workers             int     `yaml:"workers"`
		DBPath              string  `yaml:"db_path"`
	} `yaml:"replay"`

	Schedule struct {
		Timezone        string `yaml:"timezone"`
		Open            string `yaml:"open"`
		Close           string `yaml:"close"`
		EodLiquidation  string `yaml:"eod_liquidation"`
		EntryCutoffHour int    `yaml:"entry_cutoff_hour"`
	} `yaml:"schedule"`

	ML struct {
		Endpoint       string `yaml:"endpoint"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"ml"`

	Engine struct {
		DailyEntryLimit int `yaml:"daily_entry_limit"`
	} `yaml:"engine"`

	Qty struct {
		DefaultBuy int            `yaml:"default_buy"`
		PerSymbol  map[string]int `yaml:"per_symbol"`
	} `yaml:"qty"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.DataSource != "STATIC" && c.DataSource != "LIVE" {
		return fmt.Errorf("invalid data_source '%s': must be 'STATIC' or 'LIVE'", c.DataSource)
	}
	if len(c.UniverseStatic) == 0 {
		return errors.New("universe_static cannot be empty")
	}
	if c.Aggregation.WidthMinutes <= 0 {
		return fmt.Errorf("aggregation.width_minutes must be positive, got %d", c.Aggregation.WidthMinutes)
	}
	if c.Pattern.MinUptrendGainPct <= 0 {
		return fmt.Errorf("pattern.min_uptrend_gain_pct must be positive, got %.2f", c.Pattern.MinUptrendGainPct)
	}
	if c.Pattern.MinDeclinePct <= 0 {
		return fmt.Errorf("pattern.min_decline_pct must be positive, got %.2f", c.Pattern.MinDeclinePct)
	}
	if c.Pattern.SupportLengthMin < 1 || c.Pattern.SupportLengthMax < c.Pattern.SupportLengthMin {
		return fmt.Errorf("pattern.support_length bounds invalid: [%d,%d]",
			c.Pattern.SupportLengthMin, c.Pattern.SupportLengthMax)
	}
	if c.Scorer.ClosePositionBlockBelow < 0 || c.Scorer.ClosePositionBlockBelow > 1 {
		return fmt.Errorf("scorer.close_position_block_below must be in [0,1], got %.2f", c.Scorer.ClosePositionBlockBelow)
	}
	if c.Scorer.ClosePositionBonusAbove < c.Scorer.ClosePositionBlockBelow || c.Scorer.ClosePositionBonusAbove > 1 {
		return fmt.Errorf("scorer.close_position_bonus_above must be in [block_below,1], got %.2f", c.Scorer.ClosePositionBonusAbove)
	}
	if c.Scorer.ConfidenceCeiling <= 0 || c.Scorer.ConfidenceCeiling > 100 {
		return fmt.Errorf("scorer.confidence_ceiling must be in (0,100], got %.2f", c.Scorer.ConfidenceCeiling)
	}
	if len(c.Filters.Combination.GainBounds) != 2 || len(c.Filters.Combination.DeclineBounds) != 2 {
		return errors.New("filters.combination gain_bounds and decline_bounds must each list two ascending values")
	}
	if len(c.Filters.Combination.SupportBounds) != 2 {
		return errors.New("filters.combination support_bounds must list two ascending values")
	}
	for _, combo := range c.Filters.Combination.Denylist {
		if len(combo) != 3 {
			return fmt.Errorf("filters.combination.denylist entries need 3 buckets, got %v", combo)
		}
	}
	if c.Filters.ML.Enabled && (c.Filters.ML.Threshold <= 0 || c.Filters.ML.Threshold >= 1) {
		return fmt.Errorf("filters.ml.threshold must be in (0,1), got %.2f", c.Filters.ML.Threshold)
	}
	if c.Replay.EntryFillFraction <= 0 || c.Replay.EntryFillFraction > 1 {
		return fmt.Errorf("replay.entry_fill_fraction must be in (0,1], got %.2f", c.Replay.EntryFillFraction)
	}
	if c.Replay.TakeProfitPct <= 0 || c.Replay.StopLossPct <= 0 {
		return errors.New("replay.take_profit_pct and replay.stop_loss_pct must be positive")
	}
	if c.Schedule.EntryCutoffHour < 0 || c.Schedule.EntryCutoffHour > 23 {
		return fmt.Errorf("schedule.entry_cutoff_hour must be an hour of day, got %d", c.Schedule.EntryCutoffHour)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.PollSeconds == 0 {
		c.PollSeconds = 5
	}
	if c.DataSource == "" {
		c.DataSource = "STATIC"
	}
	if c.Exchange == "" {
		c.Exchange = "KRX"
	}
	if c.Aggregation.WidthMinutes == 0 {
		c.Aggregation.WidthMinutes = 3
	}
	if c.Pattern.WindowBars == 0 {
		c.Pattern.WindowBars = 35
	}
	if c.Pattern.MinBars == 0 {
		c.Pattern.MinBars = 5
	}
	if c.Pattern.MinUptrendGainPct == 0 {
		c.Pattern.MinUptrendGainPct = 3.0
	}
	if c.Pattern.MinDeclinePct == 0 {
		c.Pattern.MinDeclinePct = 0.5
	}
	if c.Pattern.SupportLengthMin == 0 {
		c.Pattern.SupportLengthMin = 1
	}
	if c.Pattern.SupportLengthMax == 0 {
		c.Pattern.SupportLengthMax = 8
	}
	if c.Pattern.SupportVolumeCapRatio == 0 {
		c.Pattern.SupportVolumeCapRatio = 0.5
	}
	if c.Pattern.SupportVolumeSoftRatio == 0 {
		c.Pattern.SupportVolumeSoftRatio = 0.3
	}
	if c.Pattern.SupportVolatilityMax == 0 {
		c.Pattern.SupportVolatilityMax = 0.015
	}
	if c.Pattern.SupportPullbackMinPct == 0 {
		c.Pattern.SupportPullbackMinPct = 1.0
	}
	if c.Pattern.DeclineVolumeCapRatio == 0 {
		c.Pattern.DeclineVolumeCapRatio = 0.6
	}
	if c.Pattern.BreakoutVolumeRatioMin == 0 {
		c.Pattern.BreakoutVolumeRatioMin = 1.5
	}
	if c.Pattern.BreakoutBodyRatioMin == 0 {
		c.Pattern.BreakoutBodyRatioMin = 1.1
	}
	if c.Pattern.BreakoutVolumeCapRatio == 0 {
		c.Pattern.BreakoutVolumeCapRatio = 0.5
	}
	if c.Scorer.BaselineConfidence == 0 {
		c.Scorer.BaselineConfidence = 50
	}
	if c.Scorer.DayOpenMinGainPct == 0 {
		c.Scorer.DayOpenMinGainPct = 0.5
	}
	if c.Scorer.ClosePositionBlockBelow == 0 {
		c.Scorer.ClosePositionBlockBelow = 0.55
	}
	if c.Scorer.ClosePositionBonusAbove == 0 {
		c.Scorer.ClosePositionBonusAbove = 0.75
	}
	if c.Scorer.ClosePositionBonus == 0 {
		c.Scorer.ClosePositionBonus = 10
	}
	if c.Scorer.VolumeRatioBonusMax == 0 {
		c.Scorer.VolumeRatioBonusMax = 10
	}
	if c.Scorer.BodyGrowthBonusMax == 0 {
		c.Scorer.BodyGrowthBonusMax = 10
	}
	if c.Scorer.ConfidenceCeiling == 0 {
		c.Scorer.ConfidenceCeiling = 95
	}
	if len(c.Scorer.MinConfidenceByHour) == 0 {
		c.Scorer.MinConfidenceByHour = map[int]float64{
			9: 70, 10: 65, 11: 65, 12: 70, 13: 70, 14: 75,
		}
	}
	if len(c.Filters.Combination.GainBounds) == 0 {
		c.Filters.Combination.GainBounds = []float64{4.0, 6.0}
	}
	if len(c.Filters.Combination.DeclineBounds) == 0 {
		c.Filters.Combination.DeclineBounds = []float64{1.5, 2.5}
	}
	if len(c.Filters.Combination.SupportBounds) == 0 {
		c.Filters.Combination.SupportBounds = []int{2, 4}
	}
	if len(c.Filters.Combination.Denylist) == 0 {
		c.Filters.Combination.Denylist = [][]string{
			{"weak", "deep", "short"},
			{"weak", "medium", "short"},
			{"medium", "medium", "medium"},
			{"medium", "medium", "short"},
		}
	}
	if c.Filters.ClosePosition.Min == 0 {
		c.Filters.ClosePosition.Min = 0.55
	}
	if c.Filters.ML.Threshold == 0 {
		c.Filters.ML.Threshold = 0.55
	}
	if c.Replay.EntryFillFraction == 0 {
		c.Replay.EntryFillFraction = 0.8
	}
	if c.Replay.EntryTimeoutMinutes == 0 {
		c.Replay.EntryTimeoutMinutes = 5
	}
	if c.Replay.TakeProfitPct == 0 {
		c.Replay.TakeProfitPct = 2.0
	}
	if c.Replay.StopLossPct == 0 {
		c.Replay.StopLossPct = 1.5
	}
	if c.Replay.CooldownMinutes == 0 {
		c.Replay.CooldownMinutes = 30
	}
	if c.Replay.TechnicalExitSMA == 0 {
		c.Replay.TechnicalExitSMA = 5
	}
	if c.Replay.Workers == 0 {
		c.Replay.Workers = 4
	}
	if c.Replay.DBPath == "" {
		c.Replay.DBPath = "data/candidates.db"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Seoul"
	}
	if c.Schedule.Open == "" {
		c.Schedule.Open = "09:00"
	}
	if c.Schedule.Close == "" {
		c.Schedule.Close = "15:30"
	}
	if c.Schedule.EodLiquidation == "" {
		c.Schedule.EodLiquidation = "15:10"
	}
	if c.Schedule.EntryCutoffHour == 0 {
		c.Schedule.EntryCutoffHour = 14
	}
	if c.ML.Endpoint == "" {
		c.ML.Endpoint = "http://127.0.0.1:8500/predict"
	}
	if c.ML.TimeoutSeconds == 0 {
		c.ML.TimeoutSeconds = 2
	}
	if c.Engine.DailyEntryLimit == 0 {
		c.Engine.DailyEntryLimit = 3
	}
	if c.Qty.DefaultBuy == 0 {
		c.Qty.DefaultBuy = 1
	}
}
