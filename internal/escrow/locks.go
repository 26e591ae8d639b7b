package escrow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CreateLock locks amount for owner during the given number of periods.
func (l *Ledger) CreateLock(st Store, owner common.Address, amount *big.Int, periods Period, now time.Time) error {
	if err := blacklistCheck(st, owner); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := l.timeLimitsCheck(periods); err != nil {
		return err
	}
	p, err := l.period(st, now)
	if err != nil {
		return err
	}
	if _, exists, err := st.Lock(owner); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s", ErrLockAlreadyExists, owner.Hex())
	}

	end := p + periods
	lock := Lock{Amount: new(big.Int).Set(amount), Start: p, End: end}
	if err := st.SaveLock(owner, lock); err != nil {
		return err
	}
	return l.checkpoint(st, owner, p, lock.Amount, &end)
}

// DepositFor adds amount to user's existing lock. sender pays the deposit.
func (l *Ledger) DepositFor(st Store, sender, user common.Address, amount *big.Int, now time.Time) error {
	if err := blacklistCheck(st, sender, user); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	p, err := l.period(st, now)
	if err != nil {
		return err
	}
	lock, ok, err := st.Lock(user)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockDoesntExist, user.Hex())
	}
	if lock.End <= p {
		return fmt.Errorf("%w: ended at period %d", ErrLockExpired, lock.End)
	}

	lock.Amount = new(big.Int).Add(lock.Amount, amount)
	if err := st.SaveLock(user, lock); err != nil {
		return err
	}
	return l.checkpoint(st, user, p, amount, nil)
}

// ExtendLockTime pushes owner's lock end out by extra periods.
func (l *Ledger) ExtendLockTime(st Store, owner common.Address, extra Period, now time.Time) error {
	if err := blacklistCheck(st, owner); err != nil {
		return err
	}
	lock, ok, err := st.Lock(owner)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockDoesntExist, owner.Hex())
	}
	if err := l.timeLimitsCheck(extra); err != nil {
		return err
	}
	p, err := l.period(st, now)
	if err != nil {
		return err
	}
	if lock.End <= p {
		return fmt.Errorf("%w: ended at period %d", ErrLockExpired, lock.End)
	}
	if err := l.timeLimitsCheck(lock.End + extra - p); err != nil {
		return err
	}

	lock.End += extra
	if err := st.SaveLock(owner, lock); err != nil {
		return err
	}
	end := lock.End
	return l.checkpoint(st, owner, p, nil, &end)
}

// Withdraw releases an expired lock and returns the amount to transfer back.
func (l *Ledger) Withdraw(st Store, owner common.Address, now time.Time) (*big.Int, error) {
	lock, ok, err := st.Lock(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockDoesntExist, owner.Hex())
	}
	p, err := l.period(st, now)
	if err != nil {
		return nil, err
	}
	if lock.End > p {
		return nil, fmt.Errorf("%w: ends at period %d", ErrLockHasNotExpired, lock.End)
	}

	if err := st.RemoveLock(owner); err != nil {
		return nil, err
	}
	// A zero point keeps any leftover slope away from a future lock of the same owner.
	if err := st.SavePoint(AccountEntity(owner), zeroPoint(p)); err != nil {
		return nil, err
	}
	return lock.Amount, nil
}
