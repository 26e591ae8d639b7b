package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Reader is the read side of the persisted ledger state.
type Reader interface {
	Config() (Config, bool, error)
	Lock(addr common.Address) (Lock, bool, error)
	ForEachLock(fn func(addr common.Address, lock Lock) error) error
	// LastPoint returns the point of e with the largest Start <= p.
	LastPoint(e Entity, p Period) (Point, bool, error)
	SlopeChange(p Period) (*big.Rat, bool, error)
	// SlopeChanges returns the scheduled changes in (after, through], ascending.
	SlopeChanges(after, through Period) ([]SlopeChange, error)
	Blacklisted(addr common.Address) (bool, error)
	Blacklist() ([]common.Address, error)
	SlopeCursor() (Period, bool, error)
}

// Store is the full persisted state surface the engine mutates.
type Store interface {
	Reader
	SaveConfig(cfg Config) error
	SaveLock(addr common.Address, lock Lock) error
	RemoveLock(addr common.Address) error
	SavePoint(e Entity, pt Point) error
	SaveSlopeChange(p Period, slope *big.Rat) error
	RemoveSlopeChange(p Period) error
	SetBlacklisted(addr common.Address, blacklisted bool) error
	SaveSlopeCursor(p Period) error
}
