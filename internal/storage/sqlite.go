package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded repository used when no Postgres is configured.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Repository = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database file and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return initSQLite(db, path, "PRAGMA journal_mode=WAL")
}

// OpenMemory opens an in-memory database for tests.
func OpenMemory() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// every pooled connection would see its own empty database
	db.SetMaxOpenConns(1)
	return initSQLite(db, ":memory:")
}

func initSQLite(db *sql.DB, path string, extra ...string) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, path: path}
	pragmas := append([]string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}, extra...)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

const sqliteSnapshotColumns = `period, period_start, total_power, total_exact, slope, locks, created_at`

// UpsertSnapshot persists or replaces the snapshot of a period.
func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snap SupplySnapshot) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO supply_snapshots (`+sqliteSnapshotColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (period) DO UPDATE SET
            period_start = excluded.period_start,
            total_power  = excluded.total_power,
            total_exact  = excluded.total_exact,
            slope        = excluded.slope,
            locks        = excluded.locks`,
		int64(snap.Period),
		snap.PeriodStart.Unix(),
		snap.TotalPower.String(),
		snap.TotalExact,
		snap.Slope.String(),
		snap.Locks,
		nowOr(snap.CreatedAt).Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshotBefore returns the newest snapshot older than period.
func (s *SQLiteStore) LatestSnapshotBefore(ctx context.Context, period uint64) (SupplySnapshot, bool, error) {
	snaps, err := s.querySnapshots(ctx, `SELECT `+sqliteSnapshotColumns+` FROM supply_snapshots
        WHERE period < ? ORDER BY period DESC LIMIT 1`, int64(period))
	if err != nil || len(snaps) == 0 {
		return SupplySnapshot{}, false, err
	}
	return snaps[0], true, nil
}

// ListSnapshotsBetween lists snapshots with from <= period < to.
func (s *SQLiteStore) ListSnapshotsBetween(ctx context.Context, from, to uint64) ([]SupplySnapshot, error) {
	return s.querySnapshots(ctx, `SELECT `+sqliteSnapshotColumns+` FROM supply_snapshots
        WHERE period >= ? AND period < ? ORDER BY period`, int64(from), int64(to))
}

// ListRecentSnapshots lists the most recent snapshots, newest first.
func (s *SQLiteStore) ListRecentSnapshots(ctx context.Context, limit int) ([]SupplySnapshot, error) {
	return s.querySnapshots(ctx, `SELECT `+sqliteSnapshotColumns+` FROM supply_snapshots
        ORDER BY period DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) querySnapshots(ctx context.Context, query string, args ...any) ([]SupplySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []SupplySnapshot
	for rows.Next() {
		var (
			snap               SupplySnapshot
			period             int64
			start, created     int64
			powerStr, slopeStr string
		)
		if err := rows.Scan(&period, &start, &powerStr, &snap.TotalExact, &slopeStr, &snap.Locks, &created); err != nil {
			return nil, err
		}
		snap.Period = uint64(period)
		snap.PeriodStart = time.Unix(start, 0).UTC()
		snap.CreatedAt = time.Unix(created, 0).UTC()
		if err := parseDecimals(&snap, powerStr, slopeStr); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// AppendJournal records an executed command.
func (s *SQLiteStore) AppendJournal(ctx context.Context, entry JournalEntry) (int64, error) {
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	var errMsg sql.NullString
	if entry.Error != nil {
		errMsg = sql.NullString{String: *entry.Error, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO command_journal (period, action, sender, payload, error, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		int64(entry.Period), entry.Action, entry.Sender, string(payload), errMsg, nowOr(entry.CreatedAt).Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("append journal: %w", err)
	}
	return res.LastInsertId()
}

// ListRecentJournal lists the latest journal entries, newest first.
func (s *SQLiteStore) ListRecentJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, period, action, sender, payload, error, created_at
        FROM command_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			entry           JournalEntry
			period, created int64
			payload         string
			errMsg          sql.NullString
		)
		if err := rows.Scan(&entry.ID, &period, &entry.Action, &entry.Sender, &payload, &errMsg, &created); err != nil {
			return nil, err
		}
		entry.Period = uint64(period)
		entry.Payload = json.RawMessage(payload)
		entry.CreatedAt = time.Unix(created, 0).UTC()
		if errMsg.Valid {
			msg := errMsg.String
			entry.Error = &msg
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// InsertAlert persists an alert emission, replacing any alert of the same period.
func (s *SQLiteStore) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	created := nowOr(alert.CreatedAt)
	_, err := s.db.ExecContext(ctx, `INSERT INTO alerts (period, change_pct, threshold_pct, direction, channels, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (period) DO UPDATE SET
            change_pct    = excluded.change_pct,
            threshold_pct = excluded.threshold_pct,
            direction     = excluded.direction,
            channels      = excluded.channels`,
		int64(alert.Period), alert.ChangePct.String(), alert.ThresholdPct.String(),
		alert.Direction, strings.Join(alert.Channels, ","), created.Unix(),
	)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	alerts, err := s.queryAlerts(ctx, `SELECT id, period, change_pct, threshold_pct, direction, channels, created_at
        FROM alerts WHERE period = ?`, int64(alert.Period))
	if err != nil {
		return AlertRecord{}, err
	}
	if len(alerts) == 0 {
		return AlertRecord{}, fmt.Errorf("insert alert: row for period %d not found", alert.Period)
	}
	return alerts[0], nil
}

// ListRecentAlerts lists most recent alerts.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	return s.queryAlerts(ctx, `SELECT id, period, change_pct, threshold_pct, direction, channels, created_at
        FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// DeleteAlertsBefore deletes historical alerts.
func (s *SQLiteStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, olderThan.Unix()); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryAlerts(ctx context.Context, query string, args ...any) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var (
			rec                     AlertRecord
			period, created         int64
			changeStr, thresholdStr string
			channels                string
		)
		if err := rows.Scan(&rec.ID, &period, &changeStr, &thresholdStr, &rec.Direction, &channels, &created); err != nil {
			return nil, err
		}
		rec.Period = uint64(period)
		rec.CreatedAt = time.Unix(created, 0).UTC()
		if channels != "" {
			rec.Channels = strings.Split(channels, ",")
		}
		if rec.ChangePct, err = decimal.NewFromString(changeStr); err != nil {
			return nil, fmt.Errorf("parse change pct: %w", err)
		}
		if rec.ThresholdPct, err = decimal.NewFromString(thresholdStr); err != nil {
			return nil, fmt.Errorf("parse threshold pct: %w", err)
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
