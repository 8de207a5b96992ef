package storage

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
)

// PoolConfig sizes the database/sql pool behind a GormStorage. Zero
// MaxOpenConns and zero durations mean unlimited.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig is used when no pool options are given.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// HighConcurrencyPoolConfig suits many workers replaying deferred calls at once.
func HighConcurrencyPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    100,
		MaxIdleConns:    25,
		ConnMaxLifetime: 10 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
	}
}

// LowLatencyPoolConfig keeps most connections warm.
func LowLatencyPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    50,
		MaxIdleConns:    40,
		ConnMaxLifetime: 15 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// ResourceConstrainedPoolConfig is for databases with tight connection limits.
func ResourceConstrainedPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 3 * time.Minute,
		ConnMaxIdleTime: 30 * time.Second,
	}
}

var poolPresets = map[string]func() PoolConfig{
	"default":          DefaultPoolConfig,
	"high-concurrency": HighConcurrencyPoolConfig,
	"low-latency":      LowLatencyPoolConfig,
	"constrained":      ResourceConstrainedPoolConfig,
}

// PoolPresetNames lists the names PoolPreset accepts, sorted.
func PoolPresetNames() []string {
	return slices.Sorted(maps.Keys(poolPresets))
}

// PoolPreset returns the named pool configuration; an empty name is
// "default".
func PoolPreset(name string) (PoolConfig, error) {
	if name == "" {
		name = "default"
	}
	preset, ok := poolPresets[name]
	if !ok {
		return PoolConfig{}, fmt.Errorf("deferred: unknown pool preset %q (want one of %s)",
			name, strings.Join(PoolPresetNames(), ", "))
	}
	return preset(), nil
}

// PoolOption adjusts a PoolConfig.
type PoolOption interface {
	applyPool(*PoolConfig)
}

type poolOptionFunc func(*PoolConfig)

func (f poolOptionFunc) applyPool(c *PoolConfig) { f(c) }

func MaxOpenConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.MaxOpenConns = n })
}

func MaxIdleConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.MaxIdleConns = n })
}

func ConnMaxLifetime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.ConnMaxLifetime = d })
}

func ConnMaxIdleTime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { c.ConnMaxIdleTime = d })
}

// WithPoolConfig replaces the whole configuration, typically with a preset.
// Options after it still apply on top.
func WithPoolConfig(cfg PoolConfig) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) { *c = cfg })
}

// ConfigurePool applies DefaultPoolConfig and opts to db's pool. The idle
// pool never exceeds a bounded open limit.
func ConfigurePool(db *gorm.DB, opts ...PoolOption) error {
	cfg := DefaultPoolConfig()
	for _, opt := range opts {
		opt.applyPool(&cfg)
	}
	if cfg.MaxOpenConns > 0 && cfg.MaxIdleConns > cfg.MaxOpenConns {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("deferred: get *sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return nil
}

// NewGormStorageWithPool configures db's pool and wraps it.
func NewGormStorageWithPool(db *gorm.DB, opts ...PoolOption) (*GormStorage, error) {
	if err := ConfigurePool(db, opts...); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}
