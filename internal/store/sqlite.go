package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite keeps records in a single generic table.
type SQLite struct{ sql *sql.DB }

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	d.SetMaxOpenConns(1)
	if _, err := d.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	db := &SQLite{sql: d}
	if err := db.migrate(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

func (d *SQLite) migrate(ctx context.Context) error {
	_, err := d.sql.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS records (
	  tbl TEXT NOT NULL,
	  key TEXT NOT NULL,
	  payload BLOB NOT NULL,
	  last_updated INTEGER NOT NULL,
	  PRIMARY KEY (tbl, key)
	);
	`)
	return err
}

func (d *SQLite) Upsert(ctx context.Context, table, key string, rec Record) error {
	_, err := d.sql.ExecContext(ctx, `
	INSERT INTO records(tbl, key, payload, last_updated) VALUES(?,?,?,?)
	ON CONFLICT(tbl, key) DO UPDATE SET payload=excluded.payload, last_updated=excluded.last_updated`,
		table, key, rec.Payload, rec.LastUpdated.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", table, key, err)
	}
	return nil
}

func (d *SQLite) SelectByKey(ctx context.Context, table, key string) (Record, bool, error) {
	var (
		payload []byte
		ms      int64
	)
	err := d.sql.QueryRowContext(ctx, `SELECT payload, last_updated FROM records WHERE tbl=? AND key=?`, table, key).Scan(&payload, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("select %s/%s: %w", table, key, err)
	}
	return Record{Payload: payload, LastUpdated: time.UnixMilli(ms).UTC()}, true, nil
}

func (d *SQLite) Ping(ctx context.Context) error { return d.sql.PingContext(ctx) }

func (d *SQLite) Close() error { return d.sql.Close() }
