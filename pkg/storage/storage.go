package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/drg911/htb-pro-card/pkg/profile"
	_ "modernc.org/sqlite"
)

// DB is the durable last-known-good store.
type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS last_known_good (
  cache_key    TEXT PRIMARY KEY,
  profile_json TEXT NOT NULL,
  stored_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lkg_stored ON last_known_good(stored_at);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// SaveLastKnownGood upserts the slot for key unless a newer success is
// already stored.
func (d *DB) SaveLastKnownGood(ctx context.Context, key string, p profile.Profile, at time.Time) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, `
INSERT INTO last_known_good(cache_key, profile_json, stored_at) VALUES(?,?,?)
ON CONFLICT(cache_key) DO UPDATE SET profile_json = excluded.profile_json, stored_at = excluded.stored_at
WHERE excluded.stored_at >= last_known_good.stored_at`, key, string(data), at.UnixNano())
	return err
}

func (d *DB) LastKnownGood(ctx context.Context, key string) (profile.Profile, bool, error) {
	var data string
	err := d.sql.QueryRowContext(ctx, "SELECT profile_json FROM last_known_good WHERE cache_key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, false, nil
	}
	if err != nil {
		return profile.Profile{}, false, err
	}
	var p profile.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return profile.Profile{}, false, fmt.Errorf("decode last-known-good %s: %w", key, err)
	}
	return p, true, nil
}

// Slot describes one stored last-known-good row.
type Slot struct {
	Key      string
	Name     string
	StoredAt time.Time
}

// ListSlots returns stored slots, newest first.
func (d *DB) ListSlots(ctx context.Context) ([]Slot, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT cache_key, profile_json, stored_at FROM last_known_good ORDER BY stored_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		var (
			key, data string
			at        int64
		)
		if err := rows.Scan(&key, &data, &at); err != nil {
			return nil, err
		}
		var p profile.Profile
		_ = json.Unmarshal([]byte(data), &p)
		out = append(out, Slot{Key: key, Name: p.Name, StoredAt: time.Unix(0, at).UTC()})
	}
	return out, rows.Err()
}

// DeleteLastKnownGood removes one slot, or every slot when key is empty.
// It returns the number of rows removed.
func (d *DB) DeleteLastKnownGood(ctx context.Context, key string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if key == "" {
		res, err = d.sql.ExecContext(ctx, "DELETE FROM last_known_good")
	} else {
		res, err = d.sql.ExecContext(ctx, "DELETE FROM last_known_good WHERE cache_key = ?", key)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
