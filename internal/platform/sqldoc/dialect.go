package sqldoc

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	// Register the pgx database/sql driver as "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	// Register the pure Go SQLite driver as "sqlite".
	_ "modernc.org/sqlite"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	// Name is the goose dialect name.
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// migrationsDir is the embedded directory holding this dialect's schema.
	migrationsDir string
	// numbered placeholders ($1) instead of question marks
	numbered bool
	// single connection, needed for in-memory databases
	singleConn bool
}

// Supported dialects.
var (
	Postgres = Dialect{Name: "postgres", Driver: "pgx", migrationsDir: "migrations/postgres", numbered: true}
	SQLite   = Dialect{Name: "sqlite3", Driver: "sqlite", migrationsDir: "migrations/sqlite", singleConn: true}
)

// DialectFor returns the dialect for a configured storage driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported SQL driver %q", driver)
	}
}

// rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open opens and pings a database for d, configuring the connection pool.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if d.singleConn {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
