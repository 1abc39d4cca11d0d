// Package config loads jobnik settings from a JSON file and JOBNIK_*
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MapColonies/jobnik/pkg/storage"
)

// Duration is a time.Duration that reads and writes as "1m30s" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the full jobnik configuration.
type Config struct {
	Database DatabaseConfig `json:"database"`
	Manager  ManagerConfig  `json:"manager"`
	Worker   WorkerConfig   `json:"worker"`
	Notifier NotifierConfig `json:"notifier"`
	Janitor  JanitorConfig  `json:"janitor"`
	Metrics  MetricsConfig  `json:"metrics"`
	Log      LogConfig      `json:"log"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"` // sqlite or postgres
	DSN    string `json:"dsn"`
	// Pool names a storage pool preset. The fields below override it.
	Pool            string   `json:"pool"`
	MaxOpenConns    int      `json:"max_open_conns"`
	MaxIdleConns    int      `json:"max_idle_conns"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `json:"conn_max_idle_time"`
}

// PoolOptions translates the pool settings for storage.Open. Zero values
// leave the driver's defaults in place.
func (d DatabaseConfig) PoolOptions() ([]storage.PoolOption, error) {
	var opts []storage.PoolOption
	if d.Pool != "" {
		preset, err := storage.PoolPreset(d.Pool)
		if err != nil {
			return nil, err
		}
		opts = append(opts, storage.WithPoolConfig(preset))
	}
	if d.MaxOpenConns > 0 {
		opts = append(opts, storage.MaxOpenConns(d.MaxOpenConns))
	}
	if d.MaxIdleConns > 0 {
		opts = append(opts, storage.MaxIdleConns(d.MaxIdleConns))
	}
	if d.ConnMaxLifetime > 0 {
		opts = append(opts, storage.ConnMaxLifetime(time.Duration(d.ConnMaxLifetime)))
	}
	if d.ConnMaxIdleTime > 0 {
		opts = append(opts, storage.ConnMaxIdleTime(time.Duration(d.ConnMaxIdleTime)))
	}
	return opts, nil
}

type ManagerConfig struct {
	DefaultMaxAttempts int `json:"default_max_attempts"`
}

type WorkerConfig struct {
	Types        []string `json:"types"`
	Concurrency  int      `json:"concurrency"`
	PollInterval Duration `json:"poll_interval"`
}

// NotifierConfig selects how consumers learn about new work.
type NotifierConfig struct {
	Kind    string `json:"kind"` // none, redis or amqp
	URL     string `json:"url"`
	Channel string `json:"channel"` // Redis channel or AMQP exchange
}

type JanitorConfig struct {
	Schedule  string   `json:"schedule"` // cron expression
	Retention Duration `json:"retention"`
}

type MetricsConfig struct {
	Addr      string `json:"addr"`
	Namespace string `json:"namespace"`
}

type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or text
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "jobnik.db?_busy_timeout=5000",
		},
		Manager: ManagerConfig{DefaultMaxAttempts: 3},
		Worker: WorkerConfig{
			Concurrency:  10,
			PollInterval: Duration(time.Second),
		},
		Notifier: NotifierConfig{Kind: "none"},
		Janitor: JanitorConfig{
			Schedule:  "@hourly",
			Retention: Duration(7 * 24 * time.Hour),
		},
		Metrics: MetricsConfig{Addr: ":9090", Namespace: "jobnik"},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("jobnik: read config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("jobnik: parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from JOBNIK_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	str("JOBNIK_DB_DRIVER", &c.Database.Driver)
	str("JOBNIK_DB_DSN", &c.Database.DSN)
	num("JOBNIK_DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	num("JOBNIK_DB_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	str("JOBNIK_DB_POOL", &c.Database.Pool)
	dur("JOBNIK_DB_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetime)
	dur("JOBNIK_DB_CONN_MAX_IDLE_TIME", &c.Database.ConnMaxIdleTime)
	num("JOBNIK_DEFAULT_MAX_ATTEMPTS", &c.Manager.DefaultMaxAttempts)
	if v, ok := lookup("JOBNIK_WORKER_TYPES"); ok {
		c.Worker.Types = splitList(v)
	}
	num("JOBNIK_WORKER_CONCURRENCY", &c.Worker.Concurrency)
	dur("JOBNIK_WORKER_POLL_INTERVAL", &c.Worker.PollInterval)
	str("JOBNIK_NOTIFIER", &c.Notifier.Kind)
	str("JOBNIK_NOTIFIER_URL", &c.Notifier.URL)
	str("JOBNIK_NOTIFIER_CHANNEL", &c.Notifier.Channel)
	str("JOBNIK_JANITOR_SCHEDULE", &c.Janitor.Schedule)
	dur("JOBNIK_JANITOR_RETENTION", &c.Janitor.Retention)
	str("JOBNIK_METRICS_ADDR", &c.Metrics.Addr)
	str("JOBNIK_METRICS_NAMESPACE", &c.Metrics.Namespace)
	str("JOBNIK_LOG_LEVEL", &c.Log.Level)
	str("JOBNIK_LOG_FORMAT", &c.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("jobnik: environment: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("jobnik: unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("jobnik: database dsn is required")
	}
	if c.Database.Pool != "" {
		if _, err := storage.PoolPreset(c.Database.Pool); err != nil {
			return err
		}
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 ||
		c.Database.ConnMaxLifetime < 0 || c.Database.ConnMaxIdleTime < 0 {
		return errors.New("jobnik: database pool settings must not be negative")
	}
	switch c.Notifier.Kind {
	case "", "none":
	case "redis", "amqp":
		if c.Notifier.URL == "" {
			return fmt.Errorf("jobnik: %s notifier requires a url", c.Notifier.Kind)
		}
	default:
		return fmt.Errorf("jobnik: unknown notifier %q", c.Notifier.Kind)
	}
	if c.Worker.PollInterval <= 0 {
		return errors.New("jobnik: worker poll interval must be positive")
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("jobnik: unknown log format %q", c.Log.Format)
	}
	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("jobnik: log level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the configured slog handler writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
