package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AcquireLock takes the named lease for ttl. It succeeds when nobody holds
// an unexpired lease or when holder already holds it, in which case the
// lease is extended. Callers that must not nest use a fresh holder per
// acquisition.
func (db *DB) AcquireLock(name, holder string, ttl time.Duration) (bool, error) {
	now := db.now()
	result, err := db.conn.Exec(
		`INSERT INTO locks (name, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE locks.expires_at <= ? OR locks.holder = excluded.holder`,
		name, holder, formatTime(now.Add(ttl)), formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", name, err)
	}
	return n > 0, nil
}

// ReleaseLock drops the lease if holder still owns it.
func (db *DB) ReleaseLock(name, holder string) error {
	if _, err := db.conn.Exec("DELETE FROM locks WHERE name = ? AND holder = ?", name, holder); err != nil {
		return fmt.Errorf("releasing lock %s: %w", name, err)
	}
	return nil
}

// LockHolder returns the current holder of an unexpired lease, or "".
func (db *DB) LockHolder(name string) (string, error) {
	var holder string
	err := db.conn.QueryRow(
		"SELECT holder FROM locks WHERE name = ? AND expires_at > ?",
		name, formatTime(db.now()),
	).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading lock %s: %w", name, err)
	}
	return holder, nil
}
