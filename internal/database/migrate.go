package database

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// schemaVersion reads the applied migration version from PRAGMA user_version.
func schemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// pending returns the migrations newer than version, in order.
func pending(version int) []Migration {
	var out []Migration
	for _, m := range migrations {
		if m.Version > version {
			out = append(out, m)
		}
	}
	return out
}

// migrate applies every pending migration. Each step runs in its own
// transaction; user_version is bumped after commit because modernc sqlite
// ignores the pragma inside a transaction. Migrations use IF NOT EXISTS so
// a crash between commit and bump only repeats harmless DDL.
func migrate(conn *sql.DB) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	for _, m := range pending(current) {
		if err := apply(conn, m); err != nil {
			return err
		}
		log.Debug().Int("version", m.Version).Str("description", m.Description).Msg("Migration applied")
	}
	return nil
}

func apply(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: committing: %w", m.Version, err)
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("migration %d: setting version: %w", m.Version, err)
	}
	return nil
}
