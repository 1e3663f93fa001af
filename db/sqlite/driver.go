package sqlite

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open creates a GORM *DB backed by a SQLite file.
// SQLite allows one writer at a time, so the pool is pinned to a single
// connection and transactions queue behind each other instead of failing
// with SQLITE_BUSY.
func Open(path string, cfg *gorm.Config) (*gorm.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return open(path+sep+"_busy_timeout=5000", cfg)
}

// OpenMemory creates a private in-memory database. Each call gets its own
// named shared-cache database so parallel tests never see each other.
func OpenMemory(cfg *gorm.Config) (*gorm.DB, error) {
	return open("file:"+uuid.NewString()+"?mode=memory&cache=shared", cfg)
}

func open(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
