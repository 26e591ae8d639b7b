package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"voting-escrow/internal/alerting"
	"voting-escrow/internal/escrow"
	"voting-escrow/internal/kvstore"
	"voting-escrow/internal/storage"
)

// Snapshot builds the supply snapshot of period p without touching the ledger.
func (s *Service) Snapshot(ctx context.Context, p escrow.Period) (storage.SupplySnapshot, error) {
	var (
		pt    escrow.Point
		locks int
	)
	err := kvstore.ViewLedger(s.kv, func(r *kvstore.LedgerReader) error {
		var err error
		pt, err = s.ledger.GlobalPointAt(r, p)
		if err != nil {
			return err
		}
		return r.ForEachLock(func(_ common.Address, lock escrow.Lock) error {
			if lock.Start <= p && p < lock.End {
				locks++
			}
			return nil
		})
	})
	if err != nil {
		return storage.SupplySnapshot{}, fmt.Errorf("build snapshot for period %d: %w", p, err)
	}

	return storage.SupplySnapshot{
		Period:      uint64(p),
		PeriodStart: s.ledger.Clock().Start(p),
		TotalPower:  decimal.NewFromBigInt(escrow.Floor(pt.Power), 0),
		TotalExact:  pt.Power.RatString(),
		Slope:       ratToDecimal(pt.Slope, 18),
		Locks:       locks,
		CreatedAt:   s.now(),
	}, nil
}

// ProcessPeriod runs the maintenance job of one period: checkpoint the global
// chain, persist a supply snapshot and alert on large supply moves.
func (s *Service) ProcessPeriod(ctx context.Context, period escrow.Period, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Uint64("period", uint64(period)).Msg("skip period because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executePeriod(ctx, period, bucket)
}

func (s *Service) executePeriod(ctx context.Context, period escrow.Period, bucket time.Time) error {
	env := escrow.Env{Time: bucket}
	if s.ledger.Clock().Period(bucket) != period {
		env.Time = s.ledger.Clock().Start(period)
	}
	if _, err := s.ExecuteAt(ctx, env, escrow.Checkpoint{}); err != nil {
		// past periods are already folded in; only their snapshot is missing
		if !errors.Is(err, escrow.ErrStalePeriod) {
			return fmt.Errorf("checkpoint period %d: %w", period, err)
		}
	}

	return s.RecordSnapshot(ctx, period)
}

// RecordSnapshot persists the snapshot of period and compares it with the
// previous one. The ledger itself is not advanced.
func (s *Service) RecordSnapshot(ctx context.Context, period escrow.Period) error {
	snap, err := s.Snapshot(ctx, period)
	if err != nil {
		return err
	}

	if s.snapshots == nil {
		s.logger.Info().Uint64("period", uint64(period)).Str("total_power", snap.TotalPower.String()).Msg("period processed")
		return nil
	}

	prev, hasPrev, err := s.snapshots.LatestSnapshotBefore(ctx, uint64(period))
	if err != nil {
		return fmt.Errorf("load previous snapshot: %w", err)
	}
	if err := s.snapshots.UpsertSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	s.logger.Info().Uint64("period", uint64(period)).
		Str("total_power", snap.TotalPower.String()).
		Str("slope", snap.Slope.String()).
		Int("locks", snap.Locks).
		Msg("snapshot recorded")

	if !hasPrev || prev.TotalPower.IsZero() {
		return nil
	}
	s.maybeAlert(ctx, prev, snap)
	return nil
}

func (s *Service) maybeAlert(ctx context.Context, prev, cur storage.SupplySnapshot) {
	if !s.alertsOn || s.notifier == nil || s.threshold.IsZero() {
		return
	}
	change := ChangePct(prev.TotalPower, cur.TotalPower)
	if !change.Abs().GreaterThan(s.threshold) {
		return
	}
	if s.coolingDown(ctx) {
		s.logger.Debug().Uint64("period", cur.Period).Msg("alert suppressed by cooldown")
		return
	}

	direction := classifyChange(change)
	note := alerting.Notification{
		Kind:          alerting.KindSupplyChange,
		Period:        cur.Period,
		PeriodStart:   cur.PeriodStart,
		PreviousPower: prev.TotalPower,
		CurrentPower:  cur.TotalPower,
		ChangePct:     change,
		ThresholdPct:  s.threshold,
		Direction:     direction,
		Channels:      s.channels,
	}
	if s.alerts != nil {
		record := storage.AlertRecord{
			Period:       cur.Period,
			ChangePct:    change,
			ThresholdPct: s.threshold,
			Direction:    direction,
			Channels:     s.channels,
			CreatedAt:    s.now(),
		}
		if _, err := s.alerts.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Uint64("period", cur.Period).Msg("failed to persist alert record")
		}
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Uint64("period", cur.Period).Msg("failed to dispatch alert")
	}
}

func (s *Service) coolingDown(ctx context.Context) bool {
	if s.cooldown <= 0 || s.alerts == nil {
		return false
	}
	recent, err := s.alerts.ListRecentAlerts(ctx, 1)
	if err != nil || len(recent) == 0 {
		return false
	}
	return s.now().Sub(recent[0].CreatedAt) < s.cooldown
}

// ChangePct is the percentage move from prev to cur.
func ChangePct(prev, cur decimal.Decimal) decimal.Decimal {
	if prev.IsZero() {
		return decimal.Zero
	}
	return cur.Sub(prev).DivRound(prev, 8).Mul(decimal.NewFromInt(100))
}

func classifyChange(d decimal.Decimal) string {
	switch d.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
