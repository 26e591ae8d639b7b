package escrow

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Env is the execution context of a command.
type Env struct {
	Time   time.Time
	Sender common.Address
}

// Attribute is a key/value pair describing what a command did.
type Attribute struct {
	Key   string
	Value string
}

// Transfer asks the host to move amount of the deposit token to To.
type Transfer struct {
	To     common.Address
	Amount *big.Int
}

// Effects are the observable results of a successful command.
type Effects struct {
	Action     string
	Attributes []Attribute
	Transfers  []Transfer
}

func (e *Effects) add(key, value string) {
	e.Attributes = append(e.Attributes, Attribute{Key: key, Value: value})
}

// Attr returns the value of the first attribute named key.
func (e Effects) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Command is a state-changing ledger message.
type Command interface {
	action() string
}

type (
	CreateLock struct {
		Amount  *big.Int
		Periods Period
	}
	// DepositFor adds to User's lock. A zero User deposits into the sender's own lock.
	DepositFor struct {
		User   common.Address
		Amount *big.Int
	}
	ExtendLockTime struct {
		Periods Period
	}
	Withdraw        struct{}
	UpdateBlacklist struct {
		Append []common.Address
		Remove []common.Address
	}
	ProposeNewOwner struct {
		NewOwner  common.Address
		ExpiresIn time.Duration
	}
	DropOwnershipProposal struct{}
	ClaimOwnership        struct{}
	// Checkpoint advances the global chain to the current period.
	Checkpoint struct{}
)

func (CreateLock) action() string            { return "create_lock" }
func (DepositFor) action() string            { return "deposit_for" }
func (ExtendLockTime) action() string        { return "extend_lock_time" }
func (Withdraw) action() string              { return "withdraw" }
func (UpdateBlacklist) action() string       { return "update_blacklist" }
func (ProposeNewOwner) action() string       { return "propose_new_owner" }
func (DropOwnershipProposal) action() string { return "drop_ownership_proposal" }
func (ClaimOwnership) action() string        { return "claim_ownership" }
func (Checkpoint) action() string            { return "checkpoint" }

// ActionName returns the wire name of cmd.
func ActionName(cmd Command) string {
	return cmd.action()
}

// Execute applies cmd to st. On error st may hold partial writes; callers run
// Execute inside a transaction and discard it on failure.
func (l *Ledger) Execute(st Store, env Env, cmd Command) (Effects, error) {
	if ok, err := l.Instantiated(st); err != nil {
		return Effects{}, err
	} else if !ok {
		return Effects{}, ErrNotInstantiated
	}

	eff := Effects{Action: cmd.action()}
	switch c := cmd.(type) {
	case CreateLock:
		if err := l.CreateLock(st, env.Sender, c.Amount, c.Periods, env.Time); err != nil {
			return Effects{}, err
		}
		eff.add("owner", env.Sender.Hex())
		eff.add("amount", c.Amount.String())
		eff.add("periods", fmt.Sprint(c.Periods))

	case DepositFor:
		user := c.User
		if user == (common.Address{}) {
			user = env.Sender
		}
		if err := l.DepositFor(st, env.Sender, user, c.Amount, env.Time); err != nil {
			return Effects{}, err
		}
		if user == env.Sender {
			eff.Action = "extend_lock_amount"
		}
		eff.add("user", user.Hex())
		eff.add("amount", c.Amount.String())

	case ExtendLockTime:
		if err := l.ExtendLockTime(st, env.Sender, c.Periods, env.Time); err != nil {
			return Effects{}, err
		}
		eff.add("owner", env.Sender.Hex())
		eff.add("periods", fmt.Sprint(c.Periods))

	case Withdraw:
		amount, err := l.Withdraw(st, env.Sender, env.Time)
		if err != nil {
			return Effects{}, err
		}
		eff.add("owner", env.Sender.Hex())
		eff.add("amount", amount.String())
		eff.Transfers = append(eff.Transfers, Transfer{To: env.Sender, Amount: amount})

	case UpdateBlacklist:
		upd, err := l.UpdateBlacklist(st, env.Sender, c.Append, c.Remove, env.Time)
		if err != nil {
			return Effects{}, err
		}
		if len(upd.Appended) > 0 {
			eff.add("added_addresses", joinAddrs(upd.Appended))
		}
		if len(upd.Removed) > 0 {
			eff.add("removed_addresses", joinAddrs(upd.Removed))
		}

	case ProposeNewOwner:
		if err := l.ProposeNewOwner(st, env.Sender, c.NewOwner, c.ExpiresIn, env.Time); err != nil {
			return Effects{}, err
		}
		eff.add("new_owner", c.NewOwner.Hex())

	case DropOwnershipProposal:
		if err := l.DropOwnershipProposal(st, env.Sender); err != nil {
			return Effects{}, err
		}

	case ClaimOwnership:
		if err := l.ClaimOwnership(st, env.Sender, env.Time); err != nil {
			return Effects{}, err
		}
		eff.add("new_owner", env.Sender.Hex())

	case Checkpoint:
		p, err := l.Checkpoint(st, env.Time)
		if err != nil {
			return Effects{}, err
		}
		eff.add("period", fmt.Sprint(p))

	default:
		return Effects{}, fmt.Errorf("unsupported command %T", cmd)
	}
	return eff, nil
}

func joinAddrs(addrs []common.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.Hex()
	}
	return strings.Join(parts, ",")
}
