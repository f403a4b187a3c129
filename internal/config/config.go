package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/siteresolve/internal/facility"
	"github.com/sells-group/siteresolve/internal/sitematch"
)

// Config holds the full application configuration.
type Config struct {
	// BrandSites is a path or http(s)/ftp URL of the brand site list.
	BrandSites string `yaml:"brand_sites" mapstructure:"brand_sites"`
	// FacilitiesWithPossibleWeb is the scraper output the filter reads.
	FacilitiesWithPossibleWeb string `yaml:"facilities_with_possible_web" mapstructure:"facilities_with_possible_web"`
	// FacilitiesWithFilteredWeb is where the filter writes its result.
	FacilitiesWithFilteredWeb string `yaml:"facilities_with_filtered_web" mapstructure:"facilities_with_filtered_web"`

	Resolve    ResolveConfig    `yaml:"resolve" mapstructure:"resolve"`
	Filter     FilterConfig     `yaml:"filter" mapstructure:"filter"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ResolveConfig selects the candidate selection mode.
type ResolveConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode"`
}

// FilterConfig configures the batch filter.
type FilterConfig struct {
	Columns      facility.Columns `yaml:"columns" mapstructure:"columns"`
	Concurrency  int              `yaml:"concurrency" mapstructure:"concurrency"`
	InputFormat  string           `yaml:"input_format" mapstructure:"input_format"`
	OutputFormat string           `yaml:"output_format" mapstructure:"output_format"`
}

// StoreConfig configures run history persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetchConfig configures downloads of remote brand lists and tables.
type FetchConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxBatchSize   int      `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RequestTimeout int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// MonitoringConfig configures run health alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinMatchRate         float64 `yaml:"min_match_rate" mapstructure:"min_match_rate"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	// File, when set, receives a copy of every log line.
	File string `yaml:"file" mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITERESOLVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("brand_sites", "brand_sites.txt")
	v.SetDefault("facilities_with_possible_web", "facilities_with_possible_web.csv")
	v.SetDefault("facilities_with_filtered_web", "facilities_with_filtered_web.csv")
	v.SetDefault("resolve.mode", string(sitematch.ModeLastMatch))
	cols := facility.DefaultColumns()
	v.SetDefault("filter.columns.name", cols.Name)
	v.SetDefault("filter.columns.candidates", cols.Candidates)
	v.SetDefault("filter.columns.website", cols.Website)
	v.SetDefault("filter.columns.brand", cols.Brand)
	v.SetDefault("filter.concurrency", 8)
	v.SetDefault("filter.input_format", string(facility.FormatAuto))
	v.SetDefault("filter.output_format", string(facility.FormatAuto))
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "siteresolve.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "siteresolve/1.0")
	v.SetDefault("fetch.requests_per_second", 5.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_batch_size", 1000)
	v.SetDefault("server.max_body_bytes", 4<<20)
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_match_rate", 0.2)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate rejects settings the named command cannot act on. mode is one of
// "filter", "resolve", "brands", "runs" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	if _, err := sitematch.ParseMode(c.Resolve.Mode); err != nil {
		errs = append(errs, err.Error())
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be json or console", c.Log.Format))
	}
	errs = append(errs, c.validateStore()...)

	switch mode {
	case "filter":
		errs = append(errs, c.validateFilter()...)
	case "resolve", "brands":
	case "runs":
		if c.Store.Driver == "none" {
			errs = append(errs, "runs requires store.driver sqlite or postgres")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.MaxBatchSize <= 0 {
			errs = append(errs, "server.max_batch_size must be > 0")
		}
		if c.Monitoring.Enabled && c.Store.Driver == "none" {
			errs = append(errs, "monitoring requires a store")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "none":
		return nil
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for driver " + c.Store.Driver}
		}
		return nil
	default:
		return []string{fmt.Sprintf("store.driver %q must be sqlite, postgres or none", c.Store.Driver)}
	}
}

func (c *Config) validateFilter() []string {
	var errs []string
	if _, err := facility.ParseFormat(c.Filter.InputFormat); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := facility.ParseFormat(c.Filter.OutputFormat); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Filter.Concurrency < 1 || c.Filter.Concurrency > 256 {
		errs = append(errs, "filter.concurrency must be between 1 and 256")
	}
	cols := c.Filter.Columns
	if cols.Name == "" || cols.Candidates == "" || cols.Website == "" || cols.Brand == "" {
		errs = append(errs, "filter.columns must all be set")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	if cfg.File != "" {
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, cfg.File)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
