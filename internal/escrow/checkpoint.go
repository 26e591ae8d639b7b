package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// checkpointTotal brings the global chain up to p and applies a delta on top.
func (l *Ledger) checkpointTotal(st Store, p Period, addPower, reducePower, oldSlope, newSlope *big.Rat) error {
	cursor, _, err := st.SlopeCursor()
	if err != nil {
		return err
	}
	pt, ok, err := st.LastPoint(Global, p)
	if err != nil {
		return fmt.Errorf("load global point: %w", err)
	}
	if !ok {
		pt = Point{Power: new(big.Rat), Slope: new(big.Rat), Start: p}
	}

	if cursor < p {
		pt, err = catchUp(st, pt, cursor, p, func(caught Point) error {
			return st.SavePoint(Global, caught)
		})
		if err != nil {
			return fmt.Errorf("global catch-up: %w", err)
		}
		if err := st.SaveSlopeCursor(p); err != nil {
			return err
		}
	}

	power := addRat(valueAt(pt, p), orZero(addPower))
	slope := addRat(subSat(pt.Slope, orZero(oldSlope)), orZero(newSlope))
	return st.SavePoint(Global, Point{
		Power: subSat(power, orZero(reducePower)),
		Slope: slope,
		Start: p,
	})
}

// checkpoint writes a new point for addr at p after a lock change and
// propagates the difference into the global chain. addAmount is nil for pure
// extensions and newEnd is nil when the lock's end is unchanged.
func (l *Ledger) checkpoint(st Store, addr common.Address, p Period, addAmount *big.Int, newEnd *Period) error {
	entity := AccountEntity(addr)
	last, ok, err := st.LastPoint(entity, p)
	if err != nil {
		return fmt.Errorf("load point of %s: %w", addr.Hex(), err)
	}

	var (
		next     Point
		added    = new(big.Rat)
		oldSlope = new(big.Rat)
	)
	if !ok {
		if newEnd == nil {
			return fmt.Errorf("checkpoint %s: initial point requires an end period", addr.Hex())
		}
		dt := periodsBetween(p, *newEnd)
		added = addedPower(addAmount, dt, l.params.MaxLockPeriods)
		next = Point{Power: added, Slope: slopeOf(added, dt), Start: p, End: *newEnd}
	} else {
		end := last.End
		if newEnd != nil {
			end = *newEnd
		}
		dt := periodsBetween(p, end)
		current := valueAt(last, p)
		slope := new(big.Rat)
		if dt != 0 {
			if end > last.End && isZero(addAmount) {
				lock, found, err := st.Lock(addr)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("checkpoint %s: %w", addr.Hex(), ErrLockDoesntExist)
				}
				fresh := addedPower(lock.Amount, dt, l.params.MaxLockPeriods)
				added = subSat(fresh, current)
				lock.Start = p
				if err := st.SaveLock(addr, lock); err != nil {
					return err
				}
			} else {
				added = addedPower(addAmount, dt, l.params.MaxLockPeriods)
			}
			slope = slopeOf(addRat(current, added), dt)
		}

		if err := cancelScheduledSlope(st, last.Slope, last.End); err != nil {
			return err
		}
		oldSlope = last.Slope
		next = Point{Power: addRat(current, added), Slope: slope, Start: p, End: end}
	}

	if err := scheduleSlopeChange(st, next.Slope, next.End); err != nil {
		return err
	}
	if err := st.SavePoint(entity, next); err != nil {
		return err
	}
	return l.checkpointTotal(st, p, added, nil, oldSlope, next.Slope)
}

func slopeOf(power *big.Rat, dt Period) *big.Rat {
	if dt == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).Quo(power, ratFromPeriod(dt))
}

func periodsBetween(from, to Period) Period {
	if to <= from {
		return 0
	}
	return to - from
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

func orZero(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return r
}
