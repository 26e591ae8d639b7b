package escrow_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"voting-escrow/internal/escrow"
	"voting-escrow/internal/kvstore"
)

func TestCreateLockDecaysLinearly(t *testing.T) {
	for _, engine := range []string{kvstore.EngineLevelDB, kvstore.EngineBadger} {
		t.Run(engine, func(t *testing.T) {
			h := newHarnessOn(t, engine)
			eff := h.mustExec(100, alice, escrow.CreateLock{Amount: amount(1000), Periods: 10})
			require.Equal(t, "create_lock", eff.Action)

			require.Equal(t, int64(0), h.power(acct(alice), 99))
			require.Equal(t, int64(96), h.power(acct(alice), 100))
			require.Equal(t, "336/5", h.exact(acct(alice), 103).RatString())
			require.Equal(t, int64(67), h.power(acct(alice), 103))
			require.Equal(t, int64(48), h.power(acct(alice), 105))
			require.Equal(t, int64(0), h.power(acct(alice), 110))
			require.Equal(t, int64(0), h.power(acct(alice), 300))

			for p := escrow.Period(99); p <= 111; p++ {
				h.requireConsistent(p, alice)
			}

			info, err := h.lockInfo(alice)
			require.NoError(t, err)
			require.Equal(t, int64(1000), info.Amount.Int64())
			require.Equal(t, escrow.Period(100), info.Start)
			require.Equal(t, escrow.Period(110), info.End)
			require.Equal(t, "5/52", info.Coefficient.RatString())

			slope, ok := h.slopeChange(110)
			require.True(t, ok)
			require.Equal(t, "48/5", slope.RatString())
		})
	}
}

func TestCreateLockValidation(t *testing.T) {
	h := newHarness(t)
	h.mustExec(100, alice, escrow.CreateLock{Amount: amount(1000), Periods: 10})

	_, err := h.exec(100, alice, escrow.CreateLock{Amount: amount(5), Periods: 3})
	require.ErrorIs(t, err, escrow.ErrLockAlreadyExists)

	_, err = h.exec(100, bob, escrow.CreateLock{Amount: amount(0), Periods: 3})
	require.ErrorIs(t, err, escrow.ErrInvalidAmount)

	_, err = h.exec(100, bob, escrow.CreateLock{Amount: amount(10), Periods: 0})
	require.ErrorIs(t, err, escrow.ErrLockTimeLimits)

	_, err = h.exec(100, bob, escrow.CreateLock{Amount: amount(10), Periods: 105})
	require.ErrorIs(t, err, escrow.ErrLockTimeLimits)

	h.mustExec(100, bob, escrow.CreateLock{Amount: amount(10), Periods: 104})
}

func TestTwoAccountsAggregate(t *testing.T) {
	h := newHarness(t)
	h.mustExec(100, alice, escrow.CreateLock{Amount: amount(1000), Periods: 10})
	h.mustExec(102, bob, escrow.CreateLock{Amount: amount(2080), Periods: 52})

	require.Equal(t, int64(1028), h.power(escrow.Global, 105))
	require.Equal(t, int64(880), h.power(escrow.Global, 110))
	require.Equal(t, int64(680), h.power(escrow.Global, 120))
	require.Equal(t, int64(0), h.power(escrow.Global, 154))

	eff := h.mustExec(112, stranger, escrow.Checkpoint{})
	v, _ := eff.Attr("period")
	require.Equal(t, "112", v)

	// history is unchanged by the catch-up
	require.Equal(t, int64(880), h.power(escrow.Global, 110))
	require.Equal(t, int64(840), h.power(escrow.Global, 112))
	require.Equal(t, int64(96), h.power(escrow.Global, 100))

	for p := escrow.Period(99); p <= 160; p++ {
		h.requireConsistent(p, alice, bob)
	}
}

func TestDepositFor(t *testing.T) {
	h := newHarness(t)
	h.mustExec(100, alice, escrow.CreateLock{Amount: amount(1000), Periods: 10})

	eff := h.mustExec(105, bob, escrow.DepositFor{User: alice, Amount: amount(520)})
	require.Equal(t, "deposit_for", eff.Action)

	require.Equal(t, int64(73), h.power(acct(alice), 105))
	require.Equal(t, "219/5", h.exact(acct(alice), 107).RatString())
	require.Equal(t, int64(43), h.power(acct(alice), 107))
	require.Equal(t, int64(0), h.power(acct(alice), 110))

	info, err := h.lockInfo(alice)
	require.NoError(t, err)
	require.Equal(t, int64(1520), info.Amount.Int64())
	require.Equal(t, escrow.Period(110), info.End)

	slope, ok := h.slopeChange(110)
	require.True(t, ok)
	require.Equal(t, "73/5", slope.RatString())

	for p := escrow.Period(100); p <= 111; p++ {
		h.requireConsistent(p, alice)
	}

	_, err = h.exec(105, bob, escrow.DepositFor{User: carol, Amount: amount(1)})
	require.ErrorIs(t, err, escrow.ErrLockDoesntExist)

	_, err = h.exec(105, bob, escrow.DepositFor{User: alice, Amount: amount(0)})
	require.ErrorIs(t, err, escrow.ErrInvalidAmount)

	_, err = h.exec(110, bob, escrow.DepositFor{User: alice, Amount: amount(1)})
	require.ErrorIs(t, err, escrow.ErrLockExpired)
}

func TestDepositForSelfIsExtendAmount(t *testing.T) {
	h := newHarness(t)
	h.mustExec(100, alice, escrow.CreateLock{Amount: amount(1000), Periods: 10})

	eff := h.mustExec(100, alice, escrow.DepositFor{Amount: amount(1040)})
	require.Equal(t, "extend_lock_amount", eff.Action)
	user, _ := eff.Attr("user")
	require.Equal(t, alice.Hex(), user)

	require.Equal(t, int64(196), h.power(acct(alice), 100))
	h.requireConsistent(100, alice)
	h.requireConsistent(104, alice)
}

func TestExtendLockTime(t *testing.T) {
	h := newHarness(t)
	h.mustExec(100, alice, escrow.CreateLock{Amount: amount(1000), Periods: 10})

	h.mustExec(105, alice, escrow.ExtendLockTime{Periods: 5})

	require.Equal(t, int64(96), h.power(acct(alice), 105))
	require.Equal(t, int64(48), h.power(acct(alice), 110))
	require.Equal(t, int64(0), h.power(acct(alice), 115))

	info, err := h.lockInfo(alice)
	require.NoError(t, err)
	require.Equal(t, escrow.Period(105), info.Start)
	require.Equal(t, escrow.Period(115), info.End)

	_, ok := h.slopeChange(110)
	require.False(t, ok, "old slope change must be cancelled")
	slope, ok := h.slopeChange(115)
	require.True(t, ok)
	require.Equal(t, "48/5", slope.RatString())

	for p := escrow.Period(100); p <= 116; p++ {
		h.requireConsistent(p, alice)
	}
}

func TestExtendLockTimeValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec(100, alice, escrow.ExtendLockTime{Periods: 5})
	require.ErrorIs(t, err, escrow.ErrLockDoesntExist)

	h.mustExec(100, alice, escrow.CreateLock{Amount: amount(1000), Periods: 10})

	_, err = h.exec(105, alice, escrow.ExtendLockTime{Periods: 0})
	require.ErrorIs(t, err, escrow.ErrLockTimeLimits)

	_, err = h.exec(105, alice, escrow.ExtendLockTime{Periods: 100})
	require.ErrorIs(t, err, escrow.ErrLockTimeLimits)

	h.mustExec(105, alice, escrow.ExtendLockTime{Periods: 99})

	_, err = h.exec(209, alice, escrow.ExtendLockTime{Periods: 1})
	require.ErrorIs(t, err, escrow.ErrLockExpired)
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t)
	h.mustExec(100, alice, escrow.CreateLock{Amount: amount(1000), Periods: 10})

	_, err := h.exec(109, alice, escrow.Withdraw{})
	require.ErrorIs(t, err, escrow.ErrLockHasNotExpired)

	_, err = h.exec(109, bob, escrow.Withdraw{})
	require.ErrorIs(t, err, escrow.ErrLockDoesntExist)

	eff := h.mustExec(110, alice, escrow.Withdraw{})
	require.Len(t, eff.Transfers, 1)
	require.Equal(t, alice, eff.Transfers[0].To)
	require.Equal(t, int64(1000), eff.Transfers[0].Amount.Int64())

	_, err = h.lockInfo(alice)
	require.ErrorIs(t, err, escrow.ErrLockDoesntExist)
	require.Equal(t, int64(0), h.power(acct(alice), 110))

	// history before the withdrawal is preserved
	require.Equal(t, int64(96), h.power(acct(alice), 100))

	h.mustExec(110, alice, escrow.CreateLock{Amount: amount(1000), Periods: 10})
	require.Equal(t, int64(96), h.power(acct(alice), 110))
	h.requireConsistent(110, alice)
	h.requireConsistent(115, alice)
}

func TestExpiryIsExact(t *testing.T) {
	h := newHarness(t)
	locks := []struct {
		who     common.Address
		amount  int64
		periods escrow.Period
	}{
		{alice, 7, 3},
		{bob, 13, 7},
		{carol, 1001, 11},
		{stranger, 999999, 104},
	}
	for _, l := range locks {
		h.mustExec(100, l.who, escrow.CreateLock{Amount: amount(l.amount), Periods: l.periods})
	}
	for p := escrow.Period(100); p <= 205; p++ {
		h.requireConsistent(p, alice, bob, carol, stranger)
	}
	require.Zero(t, h.exact(escrow.Global, 204).Sign())

	h.mustExec(204, owner, escrow.Checkpoint{})
	require.Zero(t, h.exact(escrow.Global, 204).Sign())
}

func TestStalePeriodRejected(t *testing.T) {
	h := newHarness(t)
	h.mustExec(120, alice, escrow.CreateLock{Amount: amount(1000), Periods: 10})

	_, err := h.exec(119, bob, escrow.CreateLock{Amount: amount(1000), Periods: 10})
	require.ErrorIs(t, err, escrow.ErrStalePeriod)
}

func TestExecuteRequiresInstantiation(t *testing.T) {
	kv, err := kvstore.OpenLevelDBMemory()
	require.NoError(t, err)
	defer kv.Close()
	ledger, err := escrow.New(escrow.DefaultParams())
	require.NoError(t, err)

	err = kvstore.UpdateLedger(kv, func(st *kvstore.LedgerStore) error {
		_, err := ledger.Execute(st, escrow.Env{Sender: alice}, escrow.CreateLock{Amount: big.NewInt(1), Periods: 1})
		return err
	})
	require.ErrorIs(t, err, escrow.ErrNotInstantiated)
}
