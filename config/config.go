package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Bybit    BybitConfig    `mapstructure:"bybit"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// EngineConfig configures the market-structure engine.
type EngineConfig struct {
	Instrument    string `mapstructure:"instrument"`     // e.g. "GBP/USD.SIM"
	HistoryFile   string `mapstructure:"history_file"`   // where the history document is written on shutdown
	RunID         string `mapstructure:"run_id"`         // key for history snapshots stored in postgres
	FVGWindow     int    `mapstructure:"fvg_window"`     // number of recent hourly bars scanned for gaps
	SessionSource string `mapstructure:"session_source"` // "minute" or "hour": which bars feed session extremes
	BarCapacity   int    `mapstructure:"bar_capacity"`   // bars kept per bar type
}

const (
	SessionSourceMinute = "minute"
	SessionSourceHour   = "hour"
)

// Validate rejects settings the engine cannot run with.
func (c EngineConfig) Validate() error {
	if c.Instrument == "" {
		return fmt.Errorf("engine.instrument is required")
	}
	if c.FVGWindow < 3 {
		return fmt.Errorf("engine.fvg_window must be at least 3, got %d", c.FVGWindow)
	}
	if c.BarCapacity > 0 && c.BarCapacity < c.FVGWindow {
		return fmt.Errorf("engine.bar_capacity %d cannot hold fvg_window %d bars", c.BarCapacity, c.FVGWindow)
	}
	switch c.SessionSource {
	case SessionSourceMinute, SessionSourceHour:
	default:
		return fmt.Errorf("engine.session_source must be %q or %q, got %q",
			SessionSourceMinute, SessionSourceHour, c.SessionSource)
	}
	return nil
}

// FeedConfig configures offline replay.
type FeedConfig struct {
	Source  string `mapstructure:"source"`   // "csv" or "postgres"
	CSVPath string `mapstructure:"csv_path"` // DAT_ASCII 1-minute file
	Start   string `mapstructure:"start"`    // inclusive, RFC3339 or YYYY-MM-DD (optional)
	End     string `mapstructure:"end"`      // exclusive, RFC3339 or YYYY-MM-DD (optional)
}

// Bounds parses Start and End; unset bounds are returned as zero times.
func (c FeedConfig) Bounds() (time.Time, time.Time, error) {
	start, err := parseBound(c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("feed.start: %w", err)
	}
	end, err := parseBound(c.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("feed.end: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("feed.start must be before feed.end")
	}
	return start, end, nil
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

type BybitConfig struct {
	REST     RESTConfig    `mapstructure:"rest"`
	WS       WSConfig      `mapstructure:"ws"`
	Category string        `mapstructure:"category"` // e.g. "linear"
	Symbol   string        `mapstructure:"symbol"`   // e.g. "BTCUSDT"
	Backfill time.Duration `mapstructure:"backfill"` // history fetched over REST before streaming
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.instrument", "GBP/USD.SIM")
	v.SetDefault("engine.history_file", "history.json")
	v.SetDefault("engine.run_id", "default")
	v.SetDefault("engine.fvg_window", 5)
	v.SetDefault("engine.session_source", SessionSourceMinute)
	v.SetDefault("engine.bar_capacity", 512)

	v.SetDefault("feed.source", "csv")

	v.SetDefault("bybit.rest.base_url", "https://api.bybit.com")
	v.SetDefault("bybit.rest.timeout", 10*time.Second)
	v.SetDefault("bybit.ws.url", "wss://stream.bybit.com/v5/public/linear")
	v.SetDefault("bybit.ws.timeout", 10*time.Second)
	v.SetDefault("bybit.category", "linear")
	v.SetDefault("bybit.symbol", "BTCUSDT")
	v.SetDefault("bybit.backfill", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.ssm_prefix", "/marketstructure/db/")
}

// Load loads application configuration using Viper.
// It reads from path, or config.yaml in the usual locations when path is empty,
// and overrides with environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")

		ex, _ := os.Executable()
		if strings.Contains(ex, "go-build") {
			pwd, _ := os.Getwd()
			v.AddConfigPath(filepath.Join(pwd, "../../config"))
		} else {
			v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		}
		v.AddConfigPath(".")
	}

	// Support environment variables with dot notation (e.g., ENGINE_INSTRUMENT)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
