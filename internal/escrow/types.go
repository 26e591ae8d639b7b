package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Entity identifies a Point chain: an account or the global aggregate.
type Entity struct {
	Account common.Address
	Global  bool
}

// Global is the aggregate entity whose chain tracks total voting power.
var Global = Entity{Global: true}

// AccountEntity returns the entity of a single account.
func AccountEntity(addr common.Address) Entity {
	return Entity{Account: addr}
}

func (e Entity) String() string {
	if e.Global {
		return "global"
	}
	return e.Account.Hex()
}

// Lock is an account's deposit committed for [Start, End).
type Lock struct {
	Amount *big.Int
	Start  Period
	End    Period
}

// Point is a decay-function snapshot valid from Start onward.
// For account points End is the expiry; global points leave End at zero.
type Point struct {
	Power *big.Rat
	Slope *big.Rat
	Start Period
	End   Period
}

func zeroPoint(p Period) Point {
	return Point{Power: new(big.Rat), Slope: new(big.Rat), Start: p, End: p}
}

func (pt Point) String() string {
	return fmt.Sprintf("{power=%s slope=%s start=%d end=%d}", pt.Power.RatString(), pt.Slope.RatString(), pt.Start, pt.End)
}

// SlopeChange is a scheduled decrease of the global slope.
type SlopeChange struct {
	Period Period
	Slope  *big.Rat
}

// Config holds the ledger's administrative state.
type Config struct {
	Owner    common.Address
	Guardian common.Address
	Proposal *OwnershipProposal
}

// OwnershipProposal is a pending owner change.
type OwnershipProposal struct {
	Owner   common.Address
	Expires int64 // unix seconds
}

// LockInfo is the read view of a lock.
type LockInfo struct {
	Amount      *big.Int
	Start       Period
	End         Period
	Coefficient *big.Rat
}
