package service

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"voting-escrow/internal/escrow"
	"voting-escrow/internal/kvstore"
	"voting-escrow/internal/storage"
)

// AccountLock pairs an account with its lock.
type AccountLock struct {
	Account common.Address
	Info    escrow.LockInfo
}

// CurvePoint is one sample of a voting power curve.
type CurvePoint struct {
	Period escrow.Period
	Start  time.Time
	Power  *big.Int
	Exact  *big.Rat
}

// VotingPower returns the floored power of e at t.
func (s *Service) VotingPower(ctx context.Context, e escrow.Entity, t time.Time) (*big.Int, error) {
	var out *big.Int
	err := kvstore.ViewLedger(s.kv, func(r *kvstore.LedgerReader) error {
		var err error
		if e.Global {
			out, err = s.ledger.TotalVotingPower(r, t)
		} else {
			out, err = s.ledger.VotingPower(r, e, t)
		}
		return err
	})
	return out, err
}

// VotingPowerExactAt returns the unrounded power of e in period p.
func (s *Service) VotingPowerExactAt(ctx context.Context, e escrow.Entity, p escrow.Period) (*big.Rat, error) {
	var out *big.Rat
	err := kvstore.ViewLedger(s.kv, func(r *kvstore.LedgerReader) error {
		var err error
		out, err = s.ledger.VotingPowerExactAt(r, e, p)
		return err
	})
	return out, err
}

// LockInfo returns the lock of addr.
func (s *Service) LockInfo(ctx context.Context, addr common.Address) (escrow.LockInfo, error) {
	var out escrow.LockInfo
	err := kvstore.ViewLedger(s.kv, func(r *kvstore.LedgerReader) error {
		var err error
		out, err = s.ledger.LockInfo(r, addr)
		return err
	})
	return out, err
}

// Locks lists every lock ordered by account.
func (s *Service) Locks(ctx context.Context) ([]AccountLock, error) {
	var out []AccountLock
	err := kvstore.ViewLedger(s.kv, func(r *kvstore.LedgerReader) error {
		return r.ForEachLock(func(addr common.Address, _ escrow.Lock) error {
			info, err := s.ledger.LockInfo(r, addr)
			if err != nil {
				return err
			}
			out = append(out, AccountLock{Account: addr, Info: info})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].Account.Hex(), out[j].Account.Hex()) < 0
	})
	return out, nil
}

// Blacklist lists blacklisted accounts.
func (s *Service) Blacklist(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	err := kvstore.ViewLedger(s.kv, func(r *kvstore.LedgerReader) error {
		var err error
		out, err = r.Blacklist()
		return err
	})
	return out, err
}

// Config returns the administrative state of the ledger.
func (s *Service) Config(ctx context.Context) (escrow.Config, error) {
	var (
		cfg escrow.Config
		ok  bool
	)
	err := kvstore.ViewLedger(s.kv, func(r *kvstore.LedgerReader) error {
		var err error
		cfg, ok, err = r.Config()
		return err
	})
	if err != nil {
		return escrow.Config{}, err
	}
	if !ok {
		return escrow.Config{}, escrow.ErrNotInstantiated
	}
	return cfg, nil
}

// Curve samples the power of e for every period in [from, to].
func (s *Service) Curve(ctx context.Context, e escrow.Entity, from, to escrow.Period) ([]CurvePoint, error) {
	if to < from {
		return nil, fmt.Errorf("invalid curve range [%d, %d]", from, to)
	}
	clock := s.ledger.Clock()
	out := make([]CurvePoint, 0, int(to-from)+1)
	err := kvstore.ViewLedger(s.kv, func(r *kvstore.LedgerReader) error {
		for p := from; p <= to; p++ {
			exact, err := s.ledger.VotingPowerExactAt(r, e, p)
			if err != nil {
				return err
			}
			out = append(out, CurvePoint{Period: p, Start: clock.Start(p), Power: escrow.Floor(exact), Exact: exact})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sample curve of %s: %w", e, err)
	}
	return out, nil
}

// RecentSnapshots lists stored supply snapshots, newest first.
func (s *Service) RecentSnapshots(ctx context.Context, limit int) ([]storage.SupplySnapshot, error) {
	if s.snapshots == nil {
		return nil, ErrNoSnapshotStore
	}
	return s.snapshots.ListRecentSnapshots(ctx, limit)
}

// RecentJournal lists journaled commands, newest first.
func (s *Service) RecentJournal(ctx context.Context, limit int) ([]storage.JournalEntry, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.ListRecentJournal(ctx, limit)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
