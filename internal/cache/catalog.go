package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// CatalogSchemaVersion is the current catalogue schema version.
const CatalogSchemaVersion = 1

const catalogSchemaV1 = `
CREATE TABLE IF NOT EXISTS entries (
    name TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    system TEXT NOT NULL,
    algorithm TEXT NOT NULL DEFAULT '',
    key TEXT NOT NULL,
    fingerprint TEXT NOT NULL DEFAULT '',
    checksum TEXT NOT NULL,
    size INTEGER NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_system ON entries(system);
CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// Entry describes one cached blob.
type Entry struct {
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	System      string    `json:"system"`
	Algorithm   string    `json:"algorithm,omitempty"`
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Checksum    string    `json:"checksum"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter selects catalogue entries. Zero fields match everything.
type Filter struct {
	System string
	Kind   Kind
}

// Catalog indexes the blobs of a cache directory in SQLite so they can be
// listed and invalidated by system or kind. Blob files remain the source of
// truth for lookups.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (creating if needed) the catalogue database at path.
func OpenCatalog(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initCatalogSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func initCatalogSchema(ctx context.Context, db *sql.DB) error {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()
		if _, err := tx.ExecContext(ctx, catalogSchemaV1); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
			CatalogSchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return tx.Commit()
	}
	if version > CatalogSchemaVersion {
		return fmt.Errorf("catalog schema version %d is newer than supported %d", version, CatalogSchemaVersion)
	}
	return nil
}

// Put inserts or replaces an entry.
func (c *Catalog) Put(ctx context.Context, e Entry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO entries
			(name, kind, system, algorithm, key, fingerprint, checksum, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Name, string(e.Kind), e.System, e.Algorithm, e.Key, e.Fingerprint,
		e.Checksum, e.Size, e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record catalog entry %s: %w", e.Name, err)
	}
	return nil
}

// Get returns the entry for name, or nil if it is not catalogued.
func (c *Catalog) Get(ctx context.Context, name string) (*Entry, error) {
	rows, err := c.query(ctx, `WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// List returns the entries matching f ordered by name.
func (c *Catalog) List(ctx context.Context, f Filter) ([]Entry, error) {
	var conds []string
	var args []any
	if f.System != "" {
		conds = append(conds, "system = ?")
		args = append(args, f.System)
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return c.query(ctx, where, args...)
}

func (c *Catalog) query(ctx context.Context, where string, args ...any) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT name, kind, system, algorithm, key, fingerprint, checksum, size, created_at
		FROM entries `+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind, created string
		if err := rows.Scan(&e.Name, &kind, &e.System, &e.Algorithm, &e.Key,
			&e.Fingerprint, &e.Checksum, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		e.Kind = Kind(kind)
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes an entry. Deleting an unknown name is not an error.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete catalog entry %s: %w", name, err)
	}
	return nil
}

// Reset removes every entry.
func (c *Catalog) Reset(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("failed to reset catalog: %w", err)
	}
	return nil
}

// ValidateIntegrity runs PRAGMA integrity_check on the catalogue.
func (c *Catalog) ValidateIntegrity(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity_check failed: %s", result)
		}
	}
	return rows.Err()
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
