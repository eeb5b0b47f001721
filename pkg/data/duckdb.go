package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Supported database/sql drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// Each statement runs on its own; the schema is portable between DuckDB and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS mangas (
		id          VARCHAR PRIMARY KEY,
		source      VARCHAR NOT NULL,
		remote_id   VARCHAR NOT NULL,
		name        VARCHAR NOT NULL DEFAULT '',
		description VARCHAR NOT NULL DEFAULT '',
		cover_url   VARCHAR NOT NULL DEFAULT '',
		status      VARCHAR NOT NULL DEFAULT '',
		created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (source, remote_id)
	)`,
	`CREATE TABLE IF NOT EXISTS chapters (
		id        VARCHAR PRIMARY KEY,
		manga_id  VARCHAR NOT NULL,
		read_link VARCHAR NOT NULL,
		position  INTEGER NOT NULL DEFAULT 0,
		title     VARCHAR NOT NULL DEFAULT '',
		language  VARCHAR NOT NULL DEFAULT '',
		volume    VARCHAR NOT NULL DEFAULT '',
		number    VARCHAR NOT NULL DEFAULT '',
		UNIQUE (manga_id, read_link)
	)`,
	`CREATE TABLE IF NOT EXISTS pages (
		id         VARCHAR PRIMARY KEY,
		chapter_id VARCHAR NOT NULL,
		manga_id   VARCHAR NOT NULL,
		position   INTEGER NOT NULL,
		url        VARCHAR NOT NULL DEFAULT '',
		path       VARCHAR NOT NULL DEFAULT '',
		UNIQUE (chapter_id, position)
	)`,
}

// Open opens (creating if needed) a library database and applies the schema.
func Open(driver, path string) (*sql.DB, error) {
	switch driver {
	case DriverDuckDB, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported library driver %q", driver)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; the runner and status updates share it.
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return db, nil
}

// Repository persists jobs, chapters and pages and serves the library views.
type Repository struct {
	db     *sql.DB
	driver string
}

// NewRepository wraps an already opened database.
func NewRepository(db *sql.DB, driver string) *Repository {
	return &Repository{db: db, driver: driver}
}

// OpenRepository opens the database at path and wraps it.
func OpenRepository(driver, path string) (*Repository, error) {
	db, err := Open(driver, path)
	if err != nil {
		return nil, err
	}
	return NewRepository(db, driver), nil
}

func (r *Repository) Driver() string {
	return r.driver
}

func (r *Repository) Close() error {
	return r.db.Close()
}
