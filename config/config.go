package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

var (
	BackoffMaxElapsedTime time.Duration                = 5 * time.Minute
	RequestTimeout        time.Duration                = 30 * time.Second
	GlobalConfigCallback  ConfigCallback[GlobalConfig] = ConfigCallback[GlobalConfig]{}
	CfgFlag                                            = flag.String("config", "config.toml", "Configuration file (toml format)")
)

func init() {
	GlobalConfigCallback.AddCallback(func(config GlobalConfig) {
		tCfg := config.TimeoutConfig()

		if tCfg.BackoffMaxElapsedTimeSeconds != nil {
			BackoffMaxElapsedTime = time.Duration(*tCfg.BackoffMaxElapsedTimeSeconds) * time.Second
		}

		if tCfg.RequestTimeoutMillis > 0 {
			RequestTimeout = time.Duration(tCfg.RequestTimeoutMillis) * time.Millisecond
		}
	})
}

type GlobalConfig interface {
	LoggerConfig() LoggerConfig
	TimeoutConfig() TimeoutConfig
}

type Config struct {
	DB        DBConfig               `toml:"db"`
	Logger    LoggerConfig           `toml:"logger"`
	Scheduler SchedulerConfig        `toml:"scheduler"`
	Pipeline  PipelineConfig         `toml:"pipeline"`
	Sources   SourcesConfig          `toml:"sources"`
	Drift     map[string]DriftConfig `toml:"drift"`
	Timeout   TimeoutConfig          `toml:"timeout"`
}

type LoggerConfig struct {
	Level   string `toml:"level"` // valid values are: DEBUG, INFO, WARN, ERROR, DPANIC, PANIC, FATAL (zap)
	File    string `toml:"file"`
	Console bool   `toml:"console"`
}

type DBConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	Database         string `toml:"database"`
	Username         string `toml:"username"`
	Password         string `toml:"password"`
	LogQueries       bool   `toml:"log_queries"`
	DropTableAtStart bool   `toml:"drop_table_at_start"`
	RawRetentionDays int    `toml:"raw_retention_days"` // 0 keeps audit rows forever
}

type SchedulerConfig struct {
	IntervalSeconds int  `toml:"interval_seconds"` // 0 runs a single cycle and exits
	RunAtStart      bool `toml:"run_at_start"`
}

type PipelineConfig struct {
	Parallel       bool `toml:"parallel"`
	ForceFull      bool `toml:"force_full"`
	PreloadResolve bool `toml:"preload_resolver_cache"`
}

type SourcesConfig struct {
	CoinGecko   APISourceConfig `toml:"coingecko"`
	CoinPaprika APISourceConfig `toml:"coinpaprika"`
	CSV         CSVSourceConfig `toml:"csv"`
}

type APISourceConfig struct {
	Enabled              bool   `toml:"enabled"`
	APIKey               string `toml:"api_key"`
	MaxRetries           int    `toml:"max_retries"`
	RetryBaseDelayMillis int    `toml:"retry_base_delay_millis"`
}

type CSVSourceConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// DriftConfig tunes drift detection per source, keyed by source tag in the
// config file. Zero thresholds fall back to the detector defaults.
type DriftConfig struct {
	NullThreshold       float64 `toml:"null_threshold"`
	FuzzyMatchThreshold float64 `toml:"fuzzy_match_threshold"`
	AbortOnCritical     bool    `toml:"abort_on_critical"`
}

type TimeoutConfig struct {
	BackoffMaxElapsedTimeSeconds *int `toml:"backoff_max_elapsed_time_seconds"`
	RequestTimeoutMillis         int  `toml:"request_timeout_millis"`
}

func BuildConfig() (*Config, error) {
	cfgFileName := *CfgFlag

	cfg := &Config{}
	err := parseConfigFile(cfg, cfgFileName)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

func parseConfigFile(cfg *Config, fileName string) error {
	content, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("error opening config file: %w", err)
	}

	_, err = toml.Decode(string(content), cfg)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Scheduler.IntervalSeconds < 0 {
		cfg.Scheduler.IntervalSeconds = 0
	}

	if cfg.Sources.CoinGecko.MaxRetries == 0 {
		cfg.Sources.CoinGecko.MaxRetries = 3
	}
	if cfg.Sources.CoinGecko.RetryBaseDelayMillis == 0 {
		cfg.Sources.CoinGecko.RetryBaseDelayMillis = 2000
	}

	if cfg.Sources.CoinPaprika.MaxRetries == 0 {
		cfg.Sources.CoinPaprika.MaxRetries = 3
	}
	if cfg.Sources.CoinPaprika.RetryBaseDelayMillis == 0 {
		cfg.Sources.CoinPaprika.RetryBaseDelayMillis = 1000
	}

	if cfg.Sources.CSV.Path == "" {
		cfg.Sources.CSV.Path = "data/crypto_data.csv"
	}
}

func (c Config) LoggerConfig() LoggerConfig {
	return c.Logger
}

func (c Config) TimeoutConfig() TimeoutConfig {
	return c.Timeout
}
