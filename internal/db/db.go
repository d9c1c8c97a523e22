// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/belayhq/belay/internal/config"
	"github.com/belayhq/belay/internal/db/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	*sql.DB
	Queries *store.Queries
}

// New opens a SQLite database for the given data source name, forces the
// pragmas admission correctness depends on (foreign keys, immediate write
// transactions, busy timeout), applies embedded migrations, and returns a
// DB with the query layer bound to the connection.
func New(dataSourceName string) (*DB, error) {
	dataSourceName = ensurePragmasDSN(dataSourceName)
	sqlDB, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := runMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return &DB{
		DB:      sqlDB,
		Queries: store.New(sqlDB),
	}, nil
}

// NewFromConfig creates a new DB instance from cfg, creating the database
// directory if needed. Only the sqlite driver is supported.
func NewFromConfig(cfg *config.Config) (*DB, error) {
	if cfg.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Filename), 0755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}
	return New(cfg.Database.Filename)
}

// ensurePragmasDSN appends the connection parameters the booking engine
// relies on, keeping any the caller already set:
//   - _fk=1 enables foreign key enforcement
//   - _txlock=immediate makes BeginTx take the write lock up front, so two
//     concurrent admissions serialize instead of both reading the same
//     booking count
//   - _busy_timeout makes the losing connection wait instead of failing
func ensurePragmasDSN(dataSourceName string) string {
	defaults := []string{"_fk=1", "_txlock=immediate", "_busy_timeout=5000"}
	for _, param := range defaults {
		key := param[:strings.Index(param, "=")+1]
		if strings.Contains(dataSourceName, key) {
			continue
		}
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&" + param
		} else {
			dataSourceName += "?" + param
		}
	}
	return dataSourceName
}

// runMigrations applies the embedded SQL migrations from migrationsFS to the
// provided database. A "no change" result is not treated as an error.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not create source: %w", err)
	}

	m, err := migrate.NewWithInstance(
		"iofs", source,
		"sqlite3", driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

// WithTx creates a new DB instance with the given transaction
func (db *DB) WithTx(tx *sql.Tx) *DB {
	return &DB{
		DB:      db.DB,
		Queries: db.Queries.WithTx(tx),
	}
}

// BeginTx starts a transaction
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	return tx, nil
}

// RunInTx runs the given function in a transaction
func (db *DB) RunInTx(ctx context.Context, fn func(*DB) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	txDB := db.WithTx(tx)
	if err := fn(txDB); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error rolling back: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing: %w", err)
	}

	return nil
}
