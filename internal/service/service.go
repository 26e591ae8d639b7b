package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
	"github.com/shopspring/decimal"

	"voting-escrow/internal/alerting"
	"voting-escrow/internal/escrow"
	"voting-escrow/internal/kvstore"
	"voting-escrow/internal/scheduler"
	"voting-escrow/internal/storage"
)

// Executor carries out token transfers requested by ledger commands.
type Executor interface {
	Transfer(ctx context.Context, transfer escrow.Transfer) error
}

// Options wire the optional collaborators of a Service.
type Options struct {
	Scheduler *scheduler.Scheduler
	Executor  Executor
	Journal   storage.JournalStore
	Snapshots storage.SnapshotStore
	Alerts    storage.AlertStore
	Notifier  alerting.Notifier

	AlertsEnabled bool
	ThresholdPct  float64
	Cooldown      time.Duration
	Channels      []string
	LockKey       int64

	// Now overrides the wall clock.
	Now func() time.Time
}

// Service serialises ledger commands and runs the period maintenance loop.
type Service struct {
	mu     *deadlock.Mutex
	ledger *escrow.Ledger
	kv     kvstore.KV

	scheduler *scheduler.Scheduler
	executor  Executor
	journal   storage.JournalStore
	snapshots storage.SnapshotStore
	alerts    storage.AlertStore
	notifier  alerting.Notifier
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger

	threshold decimal.Decimal
	cooldown  time.Duration
	channels  []string
	alertsOn  bool
	lockKey   int64
	now       func() time.Time
}

// New constructs the ledger service.
func New(ledger *escrow.Ledger, kv kvstore.KV, opts Options, logger zerolog.Logger) *Service {
	threshold := decimal.Zero
	if opts.AlertsEnabled && opts.ThresholdPct > 0 {
		threshold = decimal.NewFromFloat(opts.ThresholdPct)
	}

	var locker storage.AdvisoryLocker
	if l, ok := opts.Snapshots.(storage.AdvisoryLocker); ok {
		locker = l
	}

	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	logger = logger.With().Str("component", "service").Logger()
	executor := opts.Executor
	if executor == nil {
		executor = NewLogExecutor(logger)
	}

	return &Service{
		mu:        &deadlock.Mutex{},
		ledger:    ledger,
		kv:        kv,
		scheduler: opts.Scheduler,
		executor:  executor,
		journal:   opts.Journal,
		snapshots: opts.Snapshots,
		alerts:    opts.Alerts,
		notifier:  opts.Notifier,
		locker:    locker,
		logger:    logger,
		threshold: threshold,
		cooldown:  opts.Cooldown,
		channels:  opts.Channels,
		alertsOn:  opts.AlertsEnabled,
		lockKey:   opts.LockKey,
		now:       now,
	}
}

// Ledger returns the underlying engine.
func (s *Service) Ledger() *escrow.Ledger {
	return s.ledger
}

// Now returns the service's notion of the current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Run begins the period maintenance loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessPeriod)
}

// Instantiate writes genesis state unless it already exists.
func (s *Service) Instantiate(ctx context.Context, owner, guardian common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := kvstore.UpdateLedger(s.kv, func(st *kvstore.LedgerStore) error {
		ok, err := s.ledger.Instantiated(st)
		if err != nil || ok {
			return err
		}
		return s.ledger.Instantiate(st, owner, guardian, s.now())
	})
	if err != nil {
		return fmt.Errorf("instantiate ledger: %w", err)
	}
	return nil
}

// Execute runs cmd for sender at the current time.
func (s *Service) Execute(ctx context.Context, sender common.Address, cmd escrow.Command) (escrow.Effects, error) {
	return s.ExecuteAt(ctx, escrow.Env{Time: s.now(), Sender: sender}, cmd)
}

// ExecuteAt runs cmd in env. The command either commits entirely or leaves
// the ledger untouched; either way it is journaled.
func (s *Service) ExecuteAt(ctx context.Context, env escrow.Env, cmd escrow.Command) (escrow.Effects, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eff escrow.Effects
	err := kvstore.UpdateLedger(s.kv, func(st *kvstore.LedgerStore) error {
		var err error
		eff, err = s.ledger.Execute(st, env, cmd)
		return err
	})

	s.record(ctx, env, cmd, err)
	if err != nil {
		s.logger.Debug().Err(err).Str("action", escrow.ActionName(cmd)).Str("sender", env.Sender.Hex()).Msg("command rejected")
		return escrow.Effects{}, err
	}

	s.logger.Info().Str("action", eff.Action).Str("sender", env.Sender.Hex()).Msg("command executed")

	for _, t := range eff.Transfers {
		if err := s.executor.Transfer(ctx, t); err != nil {
			// the ledger already committed; the transfer must be retried by the host
			s.logger.Error().Err(err).Str("to", t.To.Hex()).Str("amount", t.Amount.String()).Msg("transfer failed")
			return eff, fmt.Errorf("transfer to %s: %w", t.To.Hex(), err)
		}
	}

	if _, ok := cmd.(escrow.UpdateBlacklist); ok {
		s.notifyBlacklist(ctx, env, eff)
	}
	return eff, nil
}

func (s *Service) record(ctx context.Context, env escrow.Env, cmd escrow.Command, execErr error) {
	if s.journal == nil {
		return
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		payload = []byte("{}")
	}
	entry := storage.JournalEntry{
		Period:    uint64(s.ledger.Clock().Period(env.Time)),
		Action:    escrow.ActionName(cmd),
		Sender:    env.Sender.Hex(),
		Payload:   payload,
		CreatedAt: env.Time.UTC(),
	}
	if execErr != nil {
		msg := execErr.Error()
		entry.Error = &msg
	}
	if _, err := s.journal.AppendJournal(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("action", entry.Action).Msg("failed to append journal")
	}
}

func (s *Service) notifyBlacklist(ctx context.Context, env escrow.Env, eff escrow.Effects) {
	if !s.alertsOn || s.notifier == nil {
		return
	}
	note := alerting.Notification{
		Kind:     alerting.KindBlacklist,
		Period:   uint64(s.ledger.Clock().Period(env.Time)),
		Channels: s.channels,
	}
	if v, ok := eff.Attr("added_addresses"); ok {
		note.Appended = splitList(v)
	}
	if v, ok := eff.Attr("removed_addresses"); ok {
		note.Removed = splitList(v)
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Msg("failed to dispatch blacklist alert")
	}
}

// ErrNoSnapshotStore is returned by snapshot operations without storage.
var ErrNoSnapshotStore = errors.New("snapshot store not configured")

func ratToDecimal(r *big.Rat, places int32) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(r.Num(), 0).DivRound(decimal.NewFromBigInt(r.Denom(), 0), places)
}
