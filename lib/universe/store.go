package universe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const Schema = `
CREATE TABLE IF NOT EXISTS work_units (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT ''
);
`

// Store is the work-unit catalog. Backed by a local sqlite file for
// single-machine runs or a remote libsql database when several shard
// processes on different machines want to share one catalog.
type Store struct {
	db *sql.DB
}

// Open picks the driver from the DSN: libsql/turso URLs go to the libsql
// driver, everything else is treated as a local sqlite path.
func Open(dsn string) (Store, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "libsql://") ||
		strings.HasPrefix(dsn, "wss://") ||
		strings.HasPrefix(dsn, "https://") {
		driver = "libsql"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return Store{}, fmt.Errorf("open catalog %s: %w", dsn, err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return Store{}, fmt.Errorf("init catalog schema: %w", err)
	}
	return Store{db: db}, nil
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

func (s Store) Close() error {
	return s.db.Close()
}

// Import upserts units into the catalog in one transaction.
func (s Store) Import(ctx context.Context, units []WorkUnit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO work_units (id, name, role) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range units {
		if u.ID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, u.ID, u.Name, u.Role); err != nil {
			return fmt.Errorf("import unit %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// List returns all units, ordered by id for stable iteration across runs.
func (s Store) List(ctx context.Context) ([]WorkUnit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, role FROM work_units ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []WorkUnit
	for rows.Next() {
		var u WorkUnit
		if err := rows.Scan(&u.ID, &u.Name, &u.Role); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
