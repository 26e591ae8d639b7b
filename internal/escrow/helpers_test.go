package escrow_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"voting-escrow/internal/escrow"
	"voting-escrow/internal/kvstore"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	guardian = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000ca201")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

const genesis escrow.Period = 100

type harness struct {
	t      *testing.T
	kv     kvstore.KV
	ledger *escrow.Ledger
}

func newHarness(t *testing.T) *harness {
	return newHarnessOn(t, kvstore.EngineLevelDB)
}

func newHarnessOn(t *testing.T, engine string) *harness {
	t.Helper()
	kv, err := kvstore.Open(engine, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	ledger, err := escrow.New(escrow.DefaultParams())
	require.NoError(t, err)

	h := &harness{t: t, kv: kv, ledger: ledger}
	require.NoError(t, kvstore.UpdateLedger(kv, func(st *kvstore.LedgerStore) error {
		return ledger.Instantiate(st, owner, guardian, h.at(genesis))
	}))
	return h
}

// at returns an instant inside period p.
func (h *harness) at(p escrow.Period) time.Time {
	return h.ledger.Clock().Start(p).Add(time.Hour)
}

func (h *harness) exec(p escrow.Period, sender common.Address, cmd escrow.Command) (escrow.Effects, error) {
	var eff escrow.Effects
	err := kvstore.UpdateLedger(h.kv, func(st *kvstore.LedgerStore) error {
		var err error
		eff, err = h.ledger.Execute(st, escrow.Env{Time: h.at(p), Sender: sender}, cmd)
		return err
	})
	return eff, err
}

func (h *harness) mustExec(p escrow.Period, sender common.Address, cmd escrow.Command) escrow.Effects {
	h.t.Helper()
	eff, err := h.exec(p, sender, cmd)
	require.NoError(h.t, err)
	return eff
}

func (h *harness) exact(e escrow.Entity, p escrow.Period) *big.Rat {
	h.t.Helper()
	var v *big.Rat
	require.NoError(h.t, kvstore.ViewLedger(h.kv, func(r *kvstore.LedgerReader) error {
		var err error
		v, err = h.ledger.VotingPowerExactAt(r, e, p)
		return err
	}))
	return v
}

func (h *harness) power(e escrow.Entity, p escrow.Period) int64 {
	h.t.Helper()
	var v *big.Int
	require.NoError(h.t, kvstore.ViewLedger(h.kv, func(r *kvstore.LedgerReader) error {
		var err error
		v, err = h.ledger.VotingPowerAt(r, e, p)
		return err
	}))
	return v.Int64()
}

func (h *harness) lockInfo(addr common.Address) (escrow.LockInfo, error) {
	var info escrow.LockInfo
	err := kvstore.ViewLedger(h.kv, func(r *kvstore.LedgerReader) error {
		var err error
		info, err = h.ledger.LockInfo(r, addr)
		return err
	})
	return info, err
}

func (h *harness) slopeChange(p escrow.Period) (*big.Rat, bool) {
	h.t.Helper()
	var (
		v  *big.Rat
		ok bool
	)
	require.NoError(h.t, kvstore.ViewLedger(h.kv, func(r *kvstore.LedgerReader) error {
		var err error
		v, ok, err = r.SlopeChange(p)
		return err
	}))
	return v, ok
}

// requireConsistent checks that the global chain equals the sum of the
// given accounts exactly at p.
func (h *harness) requireConsistent(p escrow.Period, accounts ...common.Address) {
	h.t.Helper()
	sum := new(big.Rat)
	for _, a := range accounts {
		sum.Add(sum, h.exact(escrow.AccountEntity(a), p))
	}
	global := h.exact(escrow.Global, p)
	require.Equal(h.t, sum.RatString(), global.RatString(), "global vs accounts at period %d", p)
}

func acct(a common.Address) escrow.Entity {
	return escrow.AccountEntity(a)
}

func amount(v int64) *big.Int {
	return big.NewInt(v)
}
