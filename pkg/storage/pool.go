package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PoolConfig holds database/sql connection pool settings.
type PoolConfig struct {
	// MaxOpenConns caps open connections. Zero means unlimited.
	MaxOpenConns int
	// MaxIdleConns caps connections kept idle in the pool.
	MaxIdleConns int
	// ConnMaxLifetime recycles connections older than this. Zero keeps them forever.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime closes connections idle longer than this. Zero keeps them forever.
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig suits a manager process with a handful of consumers
// talking to PostgreSQL.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// HighConcurrencyPoolConfig suits many consumers dequeuing at once.
func HighConcurrencyPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    100,
		MaxIdleConns:    25,
		ConnMaxLifetime: 10 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
	}
}

// LowLatencyPoolConfig keeps most connections warm so a dequeue rarely dials.
func LowLatencyPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    50,
		MaxIdleConns:    40,
		ConnMaxLifetime: 15 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// ResourceConstrainedPoolConfig suits databases with tight connection limits.
func ResourceConstrainedPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 3 * time.Minute,
		ConnMaxIdleTime: 30 * time.Second,
	}
}

// SQLitePoolConfig uses a single connection that is never recycled. It
// serialises writers and keeps in-memory databases alive.
func SQLitePoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

// Pool preset names accepted by PoolPreset.
const (
	PoolDefault             = "default"
	PoolHighConcurrency     = "high-concurrency"
	PoolLowLatency          = "low-latency"
	PoolResourceConstrained = "resource-constrained"
	PoolSQLite              = "sqlite"
)

// PoolPreset returns the preset registered under name.
func PoolPreset(name string) (PoolConfig, error) {
	switch name {
	case PoolDefault:
		return DefaultPoolConfig(), nil
	case PoolHighConcurrency:
		return HighConcurrencyPoolConfig(), nil
	case PoolLowLatency:
		return LowLatencyPoolConfig(), nil
	case PoolResourceConstrained:
		return ResourceConstrainedPoolConfig(), nil
	case PoolSQLite:
		return SQLitePoolConfig(), nil
	default:
		return PoolConfig{}, fmt.Errorf("jobnik: unknown pool preset %q", name)
	}
}

// PoolOption configures connection pool settings.
type PoolOption interface {
	applyPool(*PoolConfig)
}

type poolOptionFunc func(*PoolConfig)

func (f poolOptionFunc) applyPool(c *PoolConfig) { f(c) }

// WithPoolConfig replaces every setting with cfg, typically a preset.
func WithPoolConfig(cfg PoolConfig) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		*c = cfg
	})
}

// MaxOpenConns sets the maximum number of open connections.
func MaxOpenConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.MaxOpenConns = n
	})
}

// MaxIdleConns sets the maximum number of idle connections.
func MaxIdleConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.MaxIdleConns = n
	})
}

// ConnMaxLifetime sets the maximum connection lifetime.
func ConnMaxLifetime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.ConnMaxLifetime = d
	})
}

// ConnMaxIdleTime sets the maximum idle time for connections.
func ConnMaxIdleTime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.ConnMaxIdleTime = d
	})
}

// ConfigurePool applies pool settings, starting from DefaultPoolConfig, to
// the *sql.DB behind db.
func ConfigurePool(db *gorm.DB, opts ...PoolOption) error {
	config := DefaultPoolConfig()
	for _, opt := range opts {
		opt.applyPool(&config)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("jobnik: get underlying *sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return nil
}

// NewGormStorageWithPool configures the pool and wraps db.
//
//	store, err := storage.NewGormStorageWithPool(db,
//	    storage.WithPoolConfig(storage.HighConcurrencyPoolConfig()),
//	    storage.MaxOpenConns(60),
//	)
func NewGormStorageWithPool(db *gorm.DB, opts ...PoolOption) (*GormStorage, error) {
	if err := ConfigurePool(db, opts...); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}
