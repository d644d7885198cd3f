package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"zapgate/internal/platform/config"
)

const driver = "sqlite3"

// NewDB opens the SQLite store. Foreign keys and a busy timeout are always
// enabled so concurrent writers queue instead of failing with SQLITE_BUSY.
func NewDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, DSN(cfg.URL))
	if err != nil {
		return nil, err
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// DSN appends the connection pragmas the store relies on, keeping any
// query parameters already present in url.
func DSN(url string) string {
	params := "_foreign_keys=on&_busy_timeout=5000"
	if strings.HasPrefix(url, "file:") && !strings.Contains(url, "mode=memory") {
		params += "&_journal_mode=WAL"
	}
	if strings.Contains(url, "?") {
		return url + "&" + params
	}
	return url + "?" + params
}

func DriverName() string {
	return driver
}
