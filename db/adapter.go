// Package db opens the relational database behind the relation store.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kasuganosora/socialgraph/config"
	dbmysql "github.com/kasuganosora/socialgraph/db/mysql"
	dbsqlite "github.com/kasuganosora/socialgraph/db/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ModeSQLite       = "sqlite"
	ModeSQLiteMemory = "sqlite_memory"
	ModeMySQL        = "mysql"
)

// Open returns a *gorm.DB for the configured mode. SQL errors and queries
// slower than cfg.SlowQuery are logged through log.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: NewGormLogger(log, cfg.SlowQuery)}
	switch cfg.Mode {
	case ModeSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("db: create %s: %w", dir, err)
			}
		}
		return dbsqlite.Open(cfg.SQLitePath, gcfg)
	case ModeSQLiteMemory:
		return dbsqlite.OpenMemory(gcfg)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, gcfg, dbmysql.Pool{
			MaxOpen: cfg.MySQLMaxOpen,
			MaxIdle: cfg.MySQLMaxIdle,
			MaxLife: cfg.MySQLMaxLife,
		})
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
