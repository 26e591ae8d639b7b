package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"voting-escrow/internal/escrow"
)

// CommandOptions identify who runs a ledger command from the CLI.
type CommandOptions struct {
	Sender string
}

// Execute runs a single ledger command against local state and prints its effects.
func (a *App) Execute(ctx context.Context, opts CommandOptions, cmd escrow.Command) error {
	sender, err := ParseAddress(opts.Sender)
	if err != nil {
		return fmt.Errorf("--sender: %w", err)
	}

	svc, closeSvc, err := a.newService(ctx, serviceOptions{})
	if err != nil {
		return err
	}
	defer closeSvc()

	eff, err := svc.Execute(ctx, sender, cmd)
	if err != nil {
		return err
	}
	printEffects(os.Stdout, eff)
	return nil
}

// Power prints the voting power of account (or the total when empty) at t.
func (a *App) Power(ctx context.Context, account string, at *time.Time) error {
	entity := escrow.Global
	if account != "" {
		addr, err := ParseAddress(account)
		if err != nil {
			return err
		}
		entity = escrow.AccountEntity(addr)
	}

	svc, closeSvc, err := a.newService(ctx, serviceOptions{readOnly: true})
	if err != nil {
		return err
	}
	defer closeSvc()

	t := svc.Now()
	if at != nil {
		t = at.UTC()
	}
	power, err := svc.VotingPower(ctx, entity, t)
	if err != nil {
		return err
	}
	period := svc.Ledger().Clock().Period(t)
	fmt.Fprintf(os.Stdout, "%s\tperiod %d\t%s\n", entity, period, power)
	return nil
}

// ParseAddress parses a 0x-prefixed hex account.
func ParseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

// ParseAddresses parses a comma separated address list.
func ParseAddresses(raw []string) ([]common.Address, error) {
	var out []common.Address
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			addr, err := ParseAddress(part)
			if err != nil {
				return nil, err
			}
			out = append(out, addr)
		}
	}
	return out, nil
}

// ParseAmount parses a positive whole token amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if !d.IsInteger() || d.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", escrow.ErrInvalidAmount, raw)
	}
	return d, nil
}

func printEffects(w io.Writer, eff escrow.Effects) {
	fmt.Fprintln(w, eff.Action)
	for _, attr := range eff.Attributes {
		fmt.Fprintf(w, "  %s=%s\n", attr.Key, attr.Value)
	}
	for _, t := range eff.Transfers {
		fmt.Fprintf(w, "  transfer %s -> %s\n", t.Amount, t.To.Hex())
	}
}

var errNoRepository = errors.New("database not configured")
