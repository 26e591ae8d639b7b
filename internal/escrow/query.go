package escrow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// VotingPower returns the floored voting power of e at time t.
func (l *Ledger) VotingPower(r Reader, e Entity, t time.Time) (*big.Int, error) {
	return l.VotingPowerAt(r, e, l.params.Clock.Period(t))
}

// VotingPowerAt returns the floored voting power of e in period p.
func (l *Ledger) VotingPowerAt(r Reader, e Entity, p Period) (*big.Int, error) {
	v, err := l.VotingPowerExactAt(r, e, p)
	if err != nil {
		return nil, err
	}
	return Floor(v), nil
}

// VotingPowerExact is VotingPower without the final rounding.
func (l *Ledger) VotingPowerExact(r Reader, e Entity, t time.Time) (*big.Rat, error) {
	return l.VotingPowerExactAt(r, e, l.params.Clock.Period(t))
}

// VotingPowerExactAt evaluates the chain of e at p. The global chain is
// replayed over pending slope changes in memory; nothing is written.
func (l *Ledger) VotingPowerExactAt(r Reader, e Entity, p Period) (*big.Rat, error) {
	pt, ok, err := r.LastPoint(e, p)
	if err != nil {
		return nil, fmt.Errorf("load point of %s: %w", e, err)
	}
	if !ok {
		return new(big.Rat), nil
	}
	if pt.Start == p {
		return new(big.Rat).Set(pt.Power), nil
	}
	if !e.Global {
		return valueAt(pt, p), nil
	}
	pt, err = catchUp(r, pt, pt.Start, p, nil)
	if err != nil {
		return nil, fmt.Errorf("replay global chain: %w", err)
	}
	return valueAt(pt, p), nil
}

// TotalVotingPower is the floored global voting power at t.
func (l *Ledger) TotalVotingPower(r Reader, t time.Time) (*big.Int, error) {
	return l.VotingPower(r, Global, t)
}

// GlobalPointAt returns the global decay line in effect at p, with pending
// slope changes applied. Used for reporting the aggregate slope.
func (l *Ledger) GlobalPointAt(r Reader, p Period) (Point, error) {
	pt, ok, err := r.LastPoint(Global, p)
	if err != nil {
		return Point{}, err
	}
	if !ok {
		return Point{Power: new(big.Rat), Slope: new(big.Rat), Start: p}, nil
	}
	pt, err = catchUp(r, pt, pt.Start, p, nil)
	if err != nil {
		return Point{}, err
	}
	return Point{Power: valueAt(pt, p), Slope: new(big.Rat).Set(pt.Slope), Start: p}, nil
}

// LockInfo returns the lock of addr.
func (l *Ledger) LockInfo(r Reader, addr common.Address) (LockInfo, error) {
	lock, ok, err := r.Lock(addr)
	if err != nil {
		return LockInfo{}, err
	}
	if !ok {
		return LockInfo{}, fmt.Errorf("%w: %s", ErrLockDoesntExist, addr.Hex())
	}
	return LockInfo{
		Amount:      new(big.Int).Set(lock.Amount),
		Start:       lock.Start,
		End:         lock.End,
		Coefficient: coefficient(periodsBetween(lock.Start, lock.End), l.params.MaxLockPeriods),
	}, nil
}

// Checkpoint folds every slope change up to the current period into the
// global chain without changing any account.
func (l *Ledger) Checkpoint(st Store, now time.Time) (Period, error) {
	if _, err := loadConfig(st); err != nil {
		return 0, err
	}
	p, err := l.period(st, now)
	if err != nil {
		return 0, err
	}
	return p, l.checkpointTotal(st, p, nil, nil, nil, nil)
}
