package storage

import "fmt"

type migration struct {
	Version     int
	Description string
	SQL         string
}

var sqliteMigrations = []migration{
	{
		Version:     1,
		Description: "supply_snapshots: aggregate voting power per period",
		SQL: `
CREATE TABLE supply_snapshots (
    period        INTEGER PRIMARY KEY,
    period_start  INTEGER NOT NULL,
    total_power   TEXT NOT NULL,
    total_exact   TEXT NOT NULL,
    slope         TEXT NOT NULL,
    locks         INTEGER NOT NULL,
    created_at    INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "command_journal: audit log of executed commands",
		SQL: `
CREATE TABLE command_journal (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    period      INTEGER NOT NULL,
    action      TEXT NOT NULL,
    sender      TEXT NOT NULL,
    payload     TEXT NOT NULL,
    error       TEXT,
    created_at  INTEGER NOT NULL
);
CREATE INDEX idx_command_journal_period ON command_journal(period);
`,
	},
	{
		Version:     3,
		Description: "alerts: supply change alerts",
		SQL: `
CREATE TABLE alerts (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    period         INTEGER NOT NULL UNIQUE,
    change_pct     TEXT NOT NULL,
    threshold_pct  TEXT NOT NULL,
    direction      TEXT NOT NULL,
    channels       TEXT NOT NULL,
    created_at     INTEGER NOT NULL
);
`,
	},
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range sqliteMigrations {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the current schema version.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
