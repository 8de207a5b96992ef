// Package config loads deferredctl configuration from deferred.yaml,
// DEFERRED_* environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/security"
	"github.com/jdziat/simple-deferred-calls/pkg/storage"
)

// EnvPrefix prefixes every environment override, e.g. DEFERRED_STORAGE_DSN.
const EnvPrefix = "DEFERRED"

// Submitter backends.
const (
	SubmitterQueue   = "queue"
	SubmitterSidekiq = "sidekiq"
)

// Config is the full deferredctl configuration.
type Config struct {
	Submitter string        `mapstructure:"submitter"`
	Storage   StorageConfig `mapstructure:"storage"`
	Redis     RedisConfig   `mapstructure:"redis"`
	Codec     CodecConfig   `mapstructure:"codec"`
	Worker    WorkerConfig  `mapstructure:"worker"`
	Logging   LoggingConfig `mapstructure:"logging"`
	Metrics   MetricsConfig `mapstructure:"metrics"`
}

// StorageConfig selects the job database.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Pool   string `mapstructure:"pool"`
}

// RedisConfig is used when Submitter is "sidekiq".
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Namespace string `mapstructure:"namespace"`
	Queue     string `mapstructure:"queue"`
}

// CodecConfig restricts the kinds a payload may contain. Empty means all.
type CodecConfig struct {
	AllowedKinds []string `mapstructure:"allowed_kinds"`
}

// WorkerConfig configures `deferredctl work`.
type WorkerConfig struct {
	Queues       []string      `mapstructure:"queues"`
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus endpoint served by the worker.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration. An empty path searches for deferred.yaml in
// the working directory and /etc/deferred; a missing file is not an error
// unless path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("deferred")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/deferred")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads KEY=value pairs into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("submitter", SubmitterQueue)

	v.SetDefault("storage.driver", storage.DriverSQLite)
	v.SetDefault("storage.dsn", "deferred.db")
	v.SetDefault("storage.pool", "default")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.namespace", "")
	v.SetDefault("redis.queue", "default")

	v.SetDefault("codec.allowed_kinds", []string{})

	v.SetDefault("worker.queues", []string{"default"})
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.poll_interval", 100*time.Millisecond)
	v.SetDefault("worker.reap_interval", time.Minute)
	v.SetDefault("worker.stale_after", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration for values the binary cannot run with.
func (c *Config) Validate() error {
	switch c.Submitter {
	case SubmitterQueue, SubmitterSidekiq:
	default:
		return fmt.Errorf("submitter must be %q or %q, got %q", SubmitterQueue, SubmitterSidekiq, c.Submitter)
	}
	if c.Storage.DSN == "" {
		return errors.New("storage.dsn is required")
	}
	if _, err := storage.PoolPreset(c.Storage.Pool); err != nil {
		return fmt.Errorf("storage.pool: %w", err)
	}
	if c.Submitter == SubmitterSidekiq {
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the sidekiq submitter")
		}
		if err := security.ValidateQueueName(c.Redis.Queue); err != nil {
			return fmt.Errorf("redis.queue: %w", err)
		}
	}
	if _, err := c.AllowList(); err != nil {
		return fmt.Errorf("codec.allowed_kinds: %w", err)
	}
	if len(c.Worker.Queues) == 0 {
		return errors.New("worker.queues must name at least one queue")
	}
	for _, q := range c.Worker.Queues {
		if err := security.ValidateQueueName(q); err != nil {
			return fmt.Errorf("worker.queues: %w", err)
		}
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Worker.PollInterval <= 0 {
		return errors.New("worker.poll_interval must be positive")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

// AllowList returns the codec allow-list. An empty list allows every kind.
func (c *Config) AllowList() (codec.AllowList, error) {
	if len(c.Codec.AllowedKinds) == 0 {
		return codec.DefaultAllowList(), nil
	}
	return codec.ParseKinds(c.Codec.AllowedKinds)
}

// Logger builds a slog.Logger writing to w.
func (l LoggingConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
