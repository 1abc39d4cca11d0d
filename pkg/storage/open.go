package storage

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported driver names for Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the named driver and returns pooled storage. SQLite
// connections start from SQLitePoolConfig; later opts override it. A nil
// gormCfg silences GORM's own logger.
func Open(driver, dsn string, gormCfg *gorm.Config, opts ...PoolOption) (*GormStorage, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "sqlite3":
		dialector = sqlite.Open(dsn)
		opts = append([]PoolOption{WithPoolConfig(SQLitePoolConfig())}, opts...)
	case DriverPostgres, "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("jobnik: unsupported database driver %q", driver)
	}

	if gormCfg == nil {
		gormCfg = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("jobnik: open %s: %w", driver, err)
	}
	return NewGormStorageWithPool(db, opts...)
}
