// package database opens the store that keeps the telegram session.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// IsPostgres reports whether dsn points to a postgresql server.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Dialector returns the GORM dialector for dsn: postgresql for postgres
// URLs, otherwise a sqlite file at that path.
func Dialector(dsn string) gorm.Dialector {
	if IsPostgres(dsn) {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// Prepare creates the parent directory of a sqlite file.
func Prepare(dsn string) error {
	if dsn == "" {
		return fmt.Errorf("empty session store path")
	}
	if IsPostgres(dsn) || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return nil
}

// Open opens the session store.
func Open(dsn string) (*gorm.DB, error) {
	if err := Prepare(dsn); err != nil {
		return nil, err
	}

	db, err := gorm.Open(Dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return db, nil
}
