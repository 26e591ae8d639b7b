package escrow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Params are the immutable settings of a ledger.
type Params struct {
	Clock          Clock
	MinLockPeriods Period
	MaxLockPeriods Period
}

// DefaultParams locks for one week up to two years.
func DefaultParams() Params {
	return Params{
		Clock:          NewClock(Week),
		MinLockPeriods: 1,
		MaxLockPeriods: 104,
	}
}

// Validate checks parameter sanity.
func (p Params) Validate() error {
	if p.Clock.PeriodSeconds == 0 {
		return fmt.Errorf("period length must be positive")
	}
	if p.MinLockPeriods == 0 {
		return fmt.Errorf("min lock periods must be positive")
	}
	if p.MaxLockPeriods < p.MinLockPeriods {
		return fmt.Errorf("max lock periods (%d) below min lock periods (%d)", p.MaxLockPeriods, p.MinLockPeriods)
	}
	return nil
}

// Ledger runs vote-escrow operations against a caller-supplied Store.
type Ledger struct {
	params Params
}

// New builds a ledger with the given parameters.
func New(params Params) (*Ledger, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{params: params}, nil
}

// Params returns the ledger parameters.
func (l *Ledger) Params() Params {
	return l.params
}

// Clock returns the period clock.
func (l *Ledger) Clock() Clock {
	return l.params.Clock
}

// Instantiate writes the genesis state: administrative config, an empty
// global point and the catch-up cursor at the current period.
func (l *Ledger) Instantiate(st Store, owner, guardian common.Address, now time.Time) error {
	if _, ok, err := st.Config(); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("ledger already instantiated")
	}
	p := l.params.Clock.Period(now)
	if err := st.SaveConfig(Config{Owner: owner, Guardian: guardian}); err != nil {
		return err
	}
	if err := st.SavePoint(Global, Point{Power: new(big.Rat), Slope: new(big.Rat), Start: p}); err != nil {
		return err
	}
	return st.SaveSlopeCursor(p)
}

// Instantiated reports whether genesis state exists.
func (l *Ledger) Instantiated(r Reader) (bool, error) {
	_, ok, err := r.Config()
	return ok, err
}

// period resolves the current period and rejects time running backwards.
func (l *Ledger) period(r Reader, now time.Time) (Period, error) {
	p := l.params.Clock.Period(now)
	cursor, ok, err := r.SlopeCursor()
	if err != nil {
		return 0, err
	}
	if ok && p < cursor {
		return 0, fmt.Errorf("%w: period %d, cursor %d", ErrStalePeriod, p, cursor)
	}
	return p, nil
}

func (l *Ledger) timeLimitsCheck(periods Period) error {
	if periods < l.params.MinLockPeriods || periods > l.params.MaxLockPeriods {
		return fmt.Errorf("%w: %d periods not in [%d, %d]", ErrLockTimeLimits, periods, l.params.MinLockPeriods, l.params.MaxLockPeriods)
	}
	return nil
}

func blacklistCheck(r Reader, addrs ...common.Address) error {
	for _, addr := range addrs {
		listed, err := r.Blacklisted(addr)
		if err != nil {
			return err
		}
		if listed {
			return fmt.Errorf("%w: %s", ErrAddressBlacklisted, addr.Hex())
		}
	}
	return nil
}
