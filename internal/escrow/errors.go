package escrow

import "errors"

// Validation errors. Operations wrap them with context; match with errors.Is.
var (
	ErrLockAlreadyExists         = errors.New("lock already exists")
	ErrLockDoesntExist           = errors.New("lock does not exist")
	ErrLockExpired               = errors.New("the lock expired, withdraw and create new lock")
	ErrLockHasNotExpired         = errors.New("the lock time has not yet expired")
	ErrLockTimeLimits            = errors.New("lock time must be within limits")
	ErrAddressBlacklisted        = errors.New("address is blacklisted")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrEmptyUpdate               = errors.New("append and remove lists are empty")
	ErrInvalidAmount             = errors.New("amount must be greater than zero")
	ErrStalePeriod               = errors.New("period is older than the ledger cursor")
	ErrNotInstantiated           = errors.New("ledger is not instantiated")
	ErrOwnershipProposalNotFound = errors.New("ownership proposal not found")
	ErrOwnershipProposalExpired  = errors.New("ownership proposal expired")
	ErrInvalidProposal           = errors.New("invalid ownership proposal")
)
