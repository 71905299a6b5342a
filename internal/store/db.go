package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect captures the few places where PostgreSQL and SQLite SQL differ.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	}
	return 0, fmt.Errorf("unsupported database driver %q", driver)
}

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// lockSuffix is appended to ledger reads inside a mutation. SQLite holds the
// database write lock for the whole transaction, so it needs nothing.
func (d Dialect) lockSuffix() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

func Open(ctx context.Context, driver, databaseURL string) (*sqlx.DB, Dialect, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, 0, err
	}
	if dialect == SQLite {
		databaseURL = sqliteDSN(databaseURL)
	}
	db, err := sqlx.Open(driver, databaseURL)
	if err != nil {
		return nil, 0, fmt.Errorf("open db: %w", err)
	}

	switch dialect {
	case Postgres:
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	case SQLite:
		// One connection: writers serialize and in-memory databases survive.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, 0, fmt.Errorf("ping db: %w", err)
	}
	return db, dialect, nil
}

// sqlitePragmas go into the DSN; the driver applies them on every new
// connection.
var sqlitePragmas = []struct{ key, value string }{
	{"_foreign_keys", "on"},
	{"_busy_timeout", "5000"},
	{"_journal_mode", "WAL"},
}

func sqliteDSN(dsn string) string {
	var b strings.Builder
	b.WriteString(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, pragma := range sqlitePragmas {
		if strings.Contains(dsn, pragma.key+"=") {
			continue
		}
		b.WriteString(sep + pragma.key + "=" + pragma.value)
		sep = "&"
	}
	return b.String()
}
