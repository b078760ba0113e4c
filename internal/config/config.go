// Package config loads hillwatch settings from YAML, .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/hillwatch/internal/bill"
	"github.com/JakeFAU/hillwatch/internal/congress"
	"github.com/JakeFAU/hillwatch/internal/phase"
	"github.com/JakeFAU/hillwatch/internal/store"
)

// EnvPrefix namespaces every environment override, e.g. HILLWATCH_PIPELINE_WORKERS.
const EnvPrefix = "HILLWATCH"

// LegacyAPIKeyEnv is also consulted for the API key.
const LegacyAPIKeyEnv = "CONGRESS_API_KEY"

// maxPageSize is the largest page the list endpoint accepts.
const maxPageSize = 250

// ErrMissingAPIKey is returned by RequireAPIKey when no key was configured.
var ErrMissingAPIKey = errors.New("api.key is not set (use HILLWATCH_API_KEY or CONGRESS_API_KEY)")

// Config is the root configuration tree.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Store       StoreConfig       `mapstructure:"store"`
	Annotations AnnotationsConfig `mapstructure:"annotations"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	DB          DBConfig          `mapstructure:"db"`
}

// APIConfig addresses the upstream legislative API.
type APIConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Key        string `mapstructure:"key"`
	Congress   int    `mapstructure:"congress"`
	WebBaseURL string `mapstructure:"web_base_url"`
}

// HTTPConfig controls per-request timeouts and retries.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMS int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMS     int `mapstructure:"backoff_max_ms"`
}

// PipelineConfig tunes the phases.
type PipelineConfig struct {
	Workers       int      `mapstructure:"workers"`
	QPS           float64  `mapstructure:"qps"`
	PageSize      int      `mapstructure:"page_size"`
	PageDelayMS   int      `mapstructure:"page_delay_ms"`
	BillTypes     []string `mapstructure:"bill_types"`
	ProgressEvery int      `mapstructure:"progress_every"`
	// Limit caps detail/committees records per run; zero means no cap.
	Limit int `mapstructure:"limit"`
}

// StoreConfig locates the dataset file.
type StoreConfig struct {
	Path          string `mapstructure:"path"`
	SaveAttempts  int    `mapstructure:"save_attempts"`
	SaveBackoffMS int    `mapstructure:"save_backoff_ms"`
}

// AnnotationsConfig carries the annotation schema inputs.
type AnnotationsConfig struct {
	ExpertOptions []string `mapstructure:"expert_options"`
}

// LoggingConfig selects the zap preset and level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the /metrics listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DBConfig enables Postgres run history when DSN is set.
type DBConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := v.BindEnv("api.key", EnvPrefix+"_API_KEY", LegacyAPIKeyEnv); err != nil {
		return Config{}, fmt.Errorf("bind api key env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadEnvFiles loads .env.local then .env. Variables already set win, and
// missing files are ignored.
func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", congress.DefaultBaseURL)
	v.SetDefault("api.key", "")
	v.SetDefault("api.congress", 119)
	v.SetDefault("api.web_base_url", bill.DefaultWebBase)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_attempts", congress.DefaultMaxAttempts)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 16000)
	v.SetDefault("pipeline.workers", 6)
	v.SetDefault("pipeline.qps", 2.0)
	v.SetDefault("pipeline.page_size", phase.DefaultPageSize)
	v.SetDefault("pipeline.page_delay_ms", 200)
	v.SetDefault("pipeline.bill_types", phase.DefaultBillTypes)
	v.SetDefault("pipeline.progress_every", 25)
	v.SetDefault("pipeline.limit", 0)
	v.SetDefault("store.path", "data/bills_119.json")
	v.SetDefault("store.save_attempts", 3)
	v.SetDefault("store.save_backoff_ms", 100)
	v.SetDefault("annotations.expert_options", bill.DefaultExpertOptions)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "phase_runs")
}

func (c *Config) normalize() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	c.API.WebBaseURL = strings.TrimRight(strings.TrimSpace(c.API.WebBaseURL), "/")
	c.API.Key = strings.TrimSpace(c.API.Key)
	types := make([]string, 0, len(c.Pipeline.BillTypes))
	for _, t := range c.Pipeline.BillTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			types = append(types, t)
		}
	}
	c.Pipeline.BillTypes = types
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.API.Congress <= 0 {
		return fmt.Errorf("api.congress must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffInitialMS <= 0 {
		return fmt.Errorf("http.backoff_initial_ms must be > 0")
	}
	if c.HTTP.BackoffMaxMS < c.HTTP.BackoffInitialMS {
		return fmt.Errorf("http.backoff_max_ms must be >= http.backoff_initial_ms")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.QPS <= 0 {
		return fmt.Errorf("pipeline.qps must be > 0")
	}
	if c.Pipeline.PageSize <= 0 || c.Pipeline.PageSize > maxPageSize {
		return fmt.Errorf("pipeline.page_size must be between 1 and %d", maxPageSize)
	}
	if c.Pipeline.Limit < 0 {
		return fmt.Errorf("pipeline.limit must be >= 0")
	}
	if c.Pipeline.PageDelayMS < 0 {
		return fmt.Errorf("pipeline.page_delay_ms must be >= 0")
	}
	for _, t := range c.Pipeline.BillTypes {
		if !bill.KnownType(t) {
			return fmt.Errorf("pipeline.bill_types: unknown bill type %q", t)
		}
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must be set")
	}
	if c.Store.SaveAttempts <= 0 {
		return fmt.Errorf("store.save_attempts must be > 0")
	}
	if c.DB.DSN != "" && c.DB.Table == "" {
		return fmt.Errorf("db.table must be set when db.dsn is set")
	}
	return nil
}

// RequireAPIKey reports ErrMissingAPIKey when no key is configured. Only
// commands that call the API need one.
func (c Config) RequireAPIKey() error {
	if c.API.Key == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// RequestTimeout converts http.timeout_seconds.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CongressConfig maps the API and HTTP sections onto the client config.
func (c Config) CongressConfig() congress.Config {
	return congress.Config{
		BaseURL:  c.API.BaseURL,
		APIKey:   c.API.Key,
		Congress: c.API.Congress,
		Timeout:  c.RequestTimeout(),
		Retry: congress.RetryPolicy{
			MaxAttempts: c.HTTP.MaxAttempts,
			BaseDelay:   time.Duration(c.HTTP.BackoffInitialMS) * time.Millisecond,
			MaxDelay:    time.Duration(c.HTTP.BackoffMaxMS) * time.Millisecond,
		},
	}
}

// StoreConfig maps the store section onto the file store config.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Path:         c.Store.Path,
		SaveAttempts: c.Store.SaveAttempts,
		SaveBackoff:  time.Duration(c.Store.SaveBackoffMS) * time.Millisecond,
	}
}

// PhaseConfig maps the pipeline section onto the phase runner config.
func (c Config) PhaseConfig() phase.Config {
	return phase.Config{
		Workers:   c.Pipeline.Workers,
		PageSize:  c.Pipeline.PageSize,
		PageDelay: time.Duration(c.Pipeline.PageDelayMS) * time.Millisecond,
		BillTypes: append([]string(nil), c.Pipeline.BillTypes...),
		Limit:     c.Pipeline.Limit,
	}
}

// Builder returns the record builder for the configured congress.
func (c Config) Builder() bill.Builder {
	return bill.NewBuilder(c.API.Congress, c.API.BaseURL, c.API.WebBaseURL)
}

// Schema returns the annotation schema for the configured expert options.
func (c Config) Schema() bill.Schema {
	return bill.NewSchema(c.Annotations.ExpertOptions)
}
