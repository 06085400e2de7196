package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS owners (
		owner_id   TEXT PRIMARY KEY,
		push_token TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS budget_settings (
		owner_id                   TEXT PRIMARY KEY,
		daily_limit                TEXT,
		weekly_limit               TEXT,
		monthly_limit              TEXT,
		alert_threshold_pct        REAL NOT NULL DEFAULT 80.0,
		notifications_enabled      INTEGER NOT NULL DEFAULT 1,
		warranty_reminders_enabled INTEGER NOT NULL DEFAULT 0,
		reminder_days              TEXT NOT NULL DEFAULT '[]',
		timezone                   TEXT NOT NULL DEFAULT '',
		updated_at                 DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS spend_records (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		amount      TEXT,
		occurred_at DATETIME NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_spend_owner_time ON spend_records(owner_id, occurred_at);

	CREATE TABLE IF NOT EXISTS budget_alerts (
		id               TEXT PRIMARY KEY,
		owner_id         TEXT NOT NULL,
		budget_kind      TEXT NOT NULL CHECK(budget_kind IN ('daily', 'weekly', 'monthly')),
		triggering_total TEXT NOT NULL,
		sent_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(owner_id, budget_kind, triggering_total)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id                    TEXT PRIMARY KEY,
		owner_id              TEXT NOT NULL,
		title                 TEXT NOT NULL DEFAULT '',
		folder_name           TEXT NOT NULL DEFAULT '',
		expiry_date           DATETIME,
		reminders_sent        TEXT NOT NULL DEFAULT '[]',
		last_reminder_sent_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);

	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	// Ensure migration tracking table exists
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
