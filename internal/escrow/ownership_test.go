package escrow_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"voting-escrow/internal/escrow"
	"voting-escrow/internal/kvstore"
)

func (h *harness) config() escrow.Config {
	h.t.Helper()
	var cfg escrow.Config
	require.NoError(h.t, kvstore.ViewLedger(h.kv, func(r *kvstore.LedgerReader) error {
		var err error
		cfg, _, err = r.Config()
		return err
	}))
	return cfg
}

func TestOwnershipTransfer(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec(100, stranger, escrow.ProposeNewOwner{NewOwner: bob, ExpiresIn: time.Hour})
	require.ErrorIs(t, err, escrow.ErrUnauthorized)

	_, err = h.exec(100, owner, escrow.ProposeNewOwner{NewOwner: owner, ExpiresIn: time.Hour})
	require.ErrorIs(t, err, escrow.ErrInvalidProposal)

	_, err = h.exec(100, owner, escrow.ProposeNewOwner{NewOwner: bob, ExpiresIn: 15 * 24 * time.Hour})
	require.ErrorIs(t, err, escrow.ErrInvalidProposal)

	_, err = h.exec(100, bob, escrow.ClaimOwnership{})
	require.ErrorIs(t, err, escrow.ErrOwnershipProposalNotFound)

	h.mustExec(100, owner, escrow.ProposeNewOwner{NewOwner: bob, ExpiresIn: 24 * time.Hour})

	_, err = h.exec(100, alice, escrow.ClaimOwnership{})
	require.ErrorIs(t, err, escrow.ErrUnauthorized)

	eff := h.mustExec(100, bob, escrow.ClaimOwnership{})
	newOwner, _ := eff.Attr("new_owner")
	require.Equal(t, bob.Hex(), newOwner)

	cfg := h.config()
	require.Equal(t, bob, cfg.Owner)
	require.Nil(t, cfg.Proposal)

	// the old owner lost its rights, the guardian kept them
	_, err = h.exec(100, owner, escrow.UpdateBlacklist{Append: []common.Address{carol}})
	require.ErrorIs(t, err, escrow.ErrUnauthorized)
	h.mustExec(100, guardian, escrow.UpdateBlacklist{Append: []common.Address{carol}})
}

func TestOwnershipProposalExpiresAndDrops(t *testing.T) {
	h := newHarness(t)
	h.mustExec(100, owner, escrow.ProposeNewOwner{NewOwner: bob, ExpiresIn: 24 * time.Hour})

	_, err := h.exec(101, bob, escrow.ClaimOwnership{})
	require.ErrorIs(t, err, escrow.ErrOwnershipProposalExpired)

	_, err = h.exec(101, bob, escrow.DropOwnershipProposal{})
	require.ErrorIs(t, err, escrow.ErrUnauthorized)

	h.mustExec(101, owner, escrow.DropOwnershipProposal{})
	_, err = h.exec(101, bob, escrow.ClaimOwnership{})
	require.ErrorIs(t, err, escrow.ErrOwnershipProposalNotFound)
	require.Equal(t, owner, h.config().Owner)
}
