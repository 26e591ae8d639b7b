package escrow

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BlacklistUpdate reports which accounts an update actually changed.
type BlacklistUpdate struct {
	Appended []common.Address
	Removed  []common.Address
}

// UpdateBlacklist adds and removes accounts from the blacklist. Appended
// accounts lose their voting power immediately; removed accounts get a fresh
// curve computed from their full lock at the current period.
func (l *Ledger) UpdateBlacklist(st Store, sender common.Address, appendAddrs, removeAddrs []common.Address, now time.Time) (BlacklistUpdate, error) {
	cfg, ok, err := st.Config()
	if err != nil {
		return BlacklistUpdate{}, err
	}
	if !ok {
		return BlacklistUpdate{}, ErrNotInstantiated
	}
	if sender != cfg.Owner && sender != cfg.Guardian {
		return BlacklistUpdate{}, ErrUnauthorized
	}

	appended, err := filterBlacklisted(st, appendAddrs, false)
	if err != nil {
		return BlacklistUpdate{}, err
	}
	removed, err := filterBlacklisted(st, removeAddrs, true)
	if err != nil {
		return BlacklistUpdate{}, err
	}
	if len(appended) == 0 && len(removed) == 0 {
		return BlacklistUpdate{}, ErrEmptyUpdate
	}

	p, err := l.period(st, now)
	if err != nil {
		return BlacklistUpdate{}, err
	}

	reducePower := new(big.Rat)
	oldSlopes := new(big.Rat)
	for _, addr := range appended {
		entity := AccountEntity(addr)
		last, found, err := st.LastPoint(entity, p)
		if err != nil {
			return BlacklistUpdate{}, err
		}
		if !found {
			continue
		}
		if err := st.SavePoint(entity, zeroPoint(p)); err != nil {
			return BlacklistUpdate{}, err
		}
		current := valueAt(last, p)
		if current.Sign() == 0 {
			continue
		}
		reducePower = addRat(reducePower, current)
		oldSlopes = addRat(oldSlopes, last.Slope)
		if err := cancelScheduledSlope(st, last.Slope, last.End); err != nil {
			return BlacklistUpdate{}, err
		}
	}

	if reducePower.Sign() != 0 || oldSlopes.Sign() != 0 {
		if err := l.checkpointTotal(st, p, nil, reducePower, oldSlopes, nil); err != nil {
			return BlacklistUpdate{}, err
		}
	}

	for _, addr := range removed {
		lock, found, err := st.Lock(addr)
		if err != nil {
			return BlacklistUpdate{}, err
		}
		if !found {
			continue
		}
		end := lock.End
		if err := l.checkpoint(st, addr, p, lock.Amount, &end); err != nil {
			return BlacklistUpdate{}, fmt.Errorf("restore %s: %w", addr.Hex(), err)
		}
	}

	for _, addr := range removed {
		if err := st.SetBlacklisted(addr, false); err != nil {
			return BlacklistUpdate{}, err
		}
	}
	for _, addr := range appended {
		if err := st.SetBlacklisted(addr, true); err != nil {
			return BlacklistUpdate{}, err
		}
	}
	return BlacklistUpdate{Appended: appended, Removed: removed}, nil
}

// filterBlacklisted keeps the distinct addresses whose blacklist status equals want.
func filterBlacklisted(r Reader, addrs []common.Address, want bool) ([]common.Address, error) {
	seen := make(map[common.Address]struct{}, len(addrs))
	out := make([]common.Address, 0, len(addrs))
	for _, addr := range addrs {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		listed, err := r.Blacklisted(addr)
		if err != nil {
			return nil, err
		}
		if listed == want {
			out = append(out, addr)
		}
	}
	return out, nil
}
