package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stamped into PRAGMA user_version.
//
//	1: runs, tasks
const schemaVersion = 1

// connParams are applied by the driver to every connection: WAL so
// `alan journal` can read a database a run is still writing, a busy
// timeout for that reader, and enforced run/task references.
const connParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"

// Journal is a SQLite-backed execution journal.
type Journal struct {
	db *sql.DB
}

// Open opens the journal at path, creating and migrating it as needed.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?"+connParams)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// one writer; the recorder runs on the loop goroutine anyway
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database. Closing a zero Journal is a no-op.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// migrate brings the schema up to schemaVersion in one transaction. A
// journal written by a newer alan is refused rather than modified.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case version > schemaVersion:
		return fmt.Errorf("schema version %d is newer than supported version %d", version, schemaVersion)
	case version == schemaVersion:
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return tx.Commit()
}

// pragma reads a PRAGMA value as text.
func (j *Journal) pragma(name string) (string, error) {
	var value string
	err := j.db.QueryRow("PRAGMA " + name).Scan(&value)
	return value, err
}
