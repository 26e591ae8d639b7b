package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS supply_snapshots (
    period        BIGINT PRIMARY KEY,
    period_start  TIMESTAMPTZ NOT NULL,
    total_power   NUMERIC NOT NULL,
    total_exact   TEXT NOT NULL,
    slope         NUMERIC NOT NULL,
    locks         INTEGER NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS command_journal (
    id          BIGSERIAL PRIMARY KEY,
    period      BIGINT NOT NULL,
    action      TEXT NOT NULL,
    sender      TEXT NOT NULL,
    payload     JSONB NOT NULL,
    error       TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS alerts (
    id             BIGSERIAL PRIMARY KEY,
    period         BIGINT NOT NULL UNIQUE,
    change_pct     NUMERIC NOT NULL,
    threshold_pct  NUMERIC NOT NULL,
    direction      TEXT NOT NULL,
    channels       TEXT[] NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);`

	upsertSnapshotSQL = `INSERT INTO supply_snapshots (
        period,
        period_start,
        total_power,
        total_exact,
        slope,
        locks
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (period) DO UPDATE
    SET
        period_start = EXCLUDED.period_start,
        total_power  = EXCLUDED.total_power,
        total_exact  = EXCLUDED.total_exact,
        slope        = EXCLUDED.slope,
        locks        = EXCLUDED.locks;`

	snapshotColumns = `period, period_start, total_power::text, total_exact, slope::text, locks, created_at`

	latestSnapshotBeforeSQL = `SELECT ` + snapshotColumns + `
    FROM supply_snapshots
    WHERE period < $1
    ORDER BY period DESC
    LIMIT 1;`

	listSnapshotsBetweenSQL = `SELECT ` + snapshotColumns + `
    FROM supply_snapshots
    WHERE period >= $1
      AND period < $2
    ORDER BY period;`

	listRecentSnapshotsSQL = `SELECT ` + snapshotColumns + `
    FROM supply_snapshots
    ORDER BY period DESC
    LIMIT $1;`

	appendJournalSQL = `INSERT INTO command_journal (
        period,
        action,
        sender,
        payload,
        error
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id;`

	listRecentJournalSQL = `SELECT id, period, action, sender, payload, error, created_at
    FROM command_journal
    ORDER BY id DESC
    LIMIT $1;`

	insertAlertSQL = `INSERT INTO alerts (
        period,
        change_pct,
        threshold_pct,
        direction,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (period) DO UPDATE
    SET change_pct    = EXCLUDED.change_pct,
        threshold_pct = EXCLUDED.threshold_pct,
        direction     = EXCLUDED.direction,
        channels      = EXCLUDED.channels
    RETURNING id, period, change_pct::text, threshold_pct::text, direction, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        period,
        change_pct::text,
        threshold_pct::text,
        direction,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store is the PostgreSQL repository.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ Repository     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the side tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertSnapshot persists or replaces the snapshot of a period.
func (s *Store) UpsertSnapshot(ctx context.Context, snap SupplySnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertSnapshotSQL,
		int64(snap.Period),
		snap.PeriodStart,
		snap.TotalPower.String(),
		snap.TotalExact,
		snap.Slope.String(),
		snap.Locks,
	)
	if execErr != nil {
		return fmt.Errorf("upsert snapshot: %w", execErr)
	}
	return nil
}

// LatestSnapshotBefore returns the newest snapshot older than period.
func (s *Store) LatestSnapshotBefore(ctx context.Context, period uint64) (SupplySnapshot, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return SupplySnapshot{}, false, err
	}
	rows, err := pool.Query(ctx, latestSnapshotBeforeSQL, int64(period))
	if err != nil {
		return SupplySnapshot{}, false, fmt.Errorf("latest snapshot: %w", err)
	}
	snaps, err := collectSnapshots(rows, 1)
	if err != nil || len(snaps) == 0 {
		return SupplySnapshot{}, false, err
	}
	return snaps[0], true, nil
}

// ListSnapshotsBetween lists snapshots with from <= period < to.
func (s *Store) ListSnapshotsBetween(ctx context.Context, from, to uint64) ([]SupplySnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listSnapshotsBetweenSQL, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("list snapshots between: %w", err)
	}
	return collectSnapshots(rows, 0)
}

// ListRecentSnapshots lists the most recent snapshots, newest first.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]SupplySnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", err)
	}
	return collectSnapshots(rows, limit)
}

func collectSnapshots(rows pgx.Rows, capacity int) ([]SupplySnapshot, error) {
	defer rows.Close()

	snaps := make([]SupplySnapshot, 0, capacity)
	for rows.Next() {
		var (
			period            int64
			powerStr, slopeStr string
			snap              SupplySnapshot
		)
		if err := rows.Scan(&period, &snap.PeriodStart, &powerStr, &snap.TotalExact, &slopeStr, &snap.Locks, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snap.Period = uint64(period)
		if err := parseDecimals(&snap, powerStr, slopeStr); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}

func parseDecimals(snap *SupplySnapshot, power, slope string) error {
	var err error
	snap.TotalPower, err = decimal.NewFromString(power)
	if err != nil {
		return fmt.Errorf("parse total power: %w", err)
	}
	snap.Slope, err = decimal.NewFromString(slope)
	if err != nil {
		return fmt.Errorf("parse slope: %w", err)
	}
	return nil
}

// AppendJournal records an executed command.
func (s *Store) AppendJournal(ctx context.Context, entry JournalEntry) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var errMsg interface{}
	if entry.Error != nil {
		errMsg = *entry.Error
	}
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	var id int64
	if err := pool.QueryRow(ctx, appendJournalSQL,
		int64(entry.Period),
		entry.Action,
		entry.Sender,
		[]byte(payload),
		errMsg,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("append journal: %w", err)
	}
	return id, nil
}

// ListRecentJournal lists the latest journal entries, newest first.
func (s *Store) ListRecentJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentJournalSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent journal: %w", err)
	}
	defer rows.Close()

	entries := make([]JournalEntry, 0, limit)
	for rows.Next() {
		var (
			entry   JournalEntry
			period  int64
			payload []byte
			errMsg  sql.NullString
		)
		if err := rows.Scan(&entry.ID, &period, &entry.Action, &entry.Sender, &payload, &errMsg, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Period = uint64(period)
		entry.Payload = json.RawMessage(payload)
		if errMsg.Valid {
			msg := errMsg.String
			entry.Error = &msg
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		int64(alert.Period),
		alert.ChangePct.String(),
		alert.ThresholdPct.String(),
		alert.Direction,
		alert.Channels,
	)

	rec, err := scanAlert(row)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec                    AlertRecord
		period                 int64
		changeStr, thresholdStr string
	)
	if err := row.Scan(&rec.ID, &period, &changeStr, &thresholdStr, &rec.Direction, &rec.Channels, &rec.CreatedAt); err != nil {
		return AlertRecord{}, err
	}
	rec.Period = uint64(period)

	var convErr error
	rec.ChangePct, convErr = decimal.NewFromString(changeStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse change pct: %w", convErr)
	}
	rec.ThresholdPct, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold pct: %w", convErr)
	}
	return rec, nil
}
