package escrow

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxProposalTTL bounds how long an ownership proposal stays claimable.
const MaxProposalTTL = 14 * 24 * time.Hour

// ProposeNewOwner records a pending owner change. Owner only.
func (l *Ledger) ProposeNewOwner(st Store, sender, newOwner common.Address, expiresIn time.Duration, now time.Time) error {
	cfg, err := loadConfig(st)
	if err != nil {
		return err
	}
	if sender != cfg.Owner {
		return ErrUnauthorized
	}
	if newOwner == cfg.Owner {
		return fmt.Errorf("%w: new owner cannot be the current owner", ErrInvalidProposal)
	}
	if expiresIn <= 0 || expiresIn > MaxProposalTTL {
		return fmt.Errorf("%w: expiry must be within (0, %s]", ErrInvalidProposal, MaxProposalTTL)
	}
	cfg.Proposal = &OwnershipProposal{Owner: newOwner, Expires: now.Add(expiresIn).Unix()}
	return st.SaveConfig(cfg)
}

// DropOwnershipProposal removes the pending proposal. Owner only.
func (l *Ledger) DropOwnershipProposal(st Store, sender common.Address) error {
	cfg, err := loadConfig(st)
	if err != nil {
		return err
	}
	if sender != cfg.Owner {
		return ErrUnauthorized
	}
	cfg.Proposal = nil
	return st.SaveConfig(cfg)
}

// ClaimOwnership completes a pending proposal. Proposed owner only.
func (l *Ledger) ClaimOwnership(st Store, sender common.Address, now time.Time) error {
	cfg, err := loadConfig(st)
	if err != nil {
		return err
	}
	if cfg.Proposal == nil {
		return ErrOwnershipProposalNotFound
	}
	if sender != cfg.Proposal.Owner {
		return ErrUnauthorized
	}
	if now.Unix() > cfg.Proposal.Expires {
		return ErrOwnershipProposalExpired
	}
	cfg.Owner = cfg.Proposal.Owner
	cfg.Proposal = nil
	return st.SaveConfig(cfg)
}

func loadConfig(r Reader) (Config, error) {
	cfg, ok, err := r.Config()
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, ErrNotInstantiated
	}
	return cfg, nil
}
