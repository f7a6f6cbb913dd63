package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var AppDB *sql.DB

// DriverFor picks the database/sql driver for a connection URL.
// postgres:// and postgresql:// go to lib/pq, everything else is a sqlite DSN.
func DriverFor(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open opens and pings a database, creating the parent directory of a sqlite file if needed.
func Open(url string) (*sql.DB, string, error) {
	driver := DriverFor(url)
	if driver == DriverSQLite {
		if err := ensureSQLiteDir(url); err != nil {
			return nil, driver, err
		}
	}

	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, driver, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows one writer; serialising avoids SQLITE_BUSY under concurrent bots
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, driver, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, driver, nil
}

// InitAppDB connects the bot records database.
func InitAppDB(url string) error {
	db, driver, err := Open(url)
	if err != nil {
		return fmt.Errorf("app db: %w", err)
	}
	AppDB = db
	log.Info().Str("driver", driver).Msg("App DB connected")
	return nil
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite dir %s: %w", dir, err)
	}
	return nil
}
