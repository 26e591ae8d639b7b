package app

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"math/rand"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"voting-escrow/internal/escrow"
	"voting-escrow/internal/kvstore"
	"voting-escrow/internal/service"
)

// SimulationReport summarises a Simulate run.
type SimulationReport struct {
	Steps    int
	Accepted int
	Rejected int
	Checks   int
	Final    *big.Rat
}

// Simulate drives random commands through a throwaway in-memory ledger and
// checks after every step that the global power equals the sum of accounts.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	report, err := a.simulate(ctx, opts)
	if err != nil {
		return err
	}
	printReport(os.Stdout, report)
	return nil
}

func (a *App) simulate(ctx context.Context, opts SimulateOptions) (SimulationReport, error) {
	if opts.Accounts <= 0 {
		opts.Accounts = 10
	}
	if opts.Steps <= 0 {
		opts.Steps = 500
	}

	ledger, err := escrow.New(a.Config.Ledger.Params())
	if err != nil {
		return SimulationReport{}, err
	}
	kv, err := kvstore.Open(a.Config.Ledger.Engine, "")
	if err != nil {
		return SimulationReport{}, err
	}
	defer kv.Close()

	clock := ledger.Clock()
	period := escrow.Period(1000)
	svc := service.New(ledger, kv, service.Options{
		Executor: discardExecutor{},
		Now:      func() time.Time { return clock.Start(period) },
	}, a.Logger)

	admin := common.BigToAddress(big.NewInt(0xad))
	if err := svc.Instantiate(ctx, admin, admin); err != nil {
		return SimulationReport{}, err
	}

	accounts := make([]common.Address, opts.Accounts)
	for i := range accounts {
		accounts[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	pick := func() common.Address { return accounts[rng.Intn(len(accounts))] }
	maxLock := int(ledger.Params().MaxLockPeriods)

	report := SimulationReport{Steps: opts.Steps}
	for step := 0; step < opts.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		period += escrow.Period(rng.Intn(3))

		sender := pick()
		var cmd escrow.Command
		switch rng.Intn(8) {
		case 0, 1:
			cmd = escrow.CreateLock{Amount: big.NewInt(1 + rng.Int63n(1_000_000)), Periods: escrow.Period(1 + rng.Intn(maxLock))}
		case 2:
			cmd = escrow.DepositFor{User: pick(), Amount: big.NewInt(1 + rng.Int63n(10_000))}
		case 3:
			cmd = escrow.ExtendLockTime{Periods: escrow.Period(1 + rng.Intn(10))}
		case 4:
			cmd = escrow.Withdraw{}
		case 5:
			sender = admin
			cmd = escrow.UpdateBlacklist{Append: []common.Address{pick()}}
		case 6:
			sender = admin
			cmd = escrow.UpdateBlacklist{Remove: []common.Address{pick()}}
		default:
			cmd = escrow.Checkpoint{}
		}

		if _, err := svc.Execute(ctx, sender, cmd); err != nil {
			report.Rejected++
		} else {
			report.Accepted++
		}

		for _, ahead := range []escrow.Period{0, 1, 13} {
			if err := checkConsistency(ctx, svc, accounts, period+ahead); err != nil {
				return report, fmt.Errorf("step %d (%s): %w", step, escrow.ActionName(cmd), err)
			}
			report.Checks++
		}
	}

	final, err := svc.VotingPowerExactAt(ctx, escrow.Global, period)
	if err != nil {
		return report, err
	}
	report.Final = final
	return report, nil
}

func checkConsistency(ctx context.Context, svc *service.Service, accounts []common.Address, p escrow.Period) error {
	sum := new(big.Rat)
	for _, acct := range accounts {
		v, err := svc.VotingPowerExactAt(ctx, escrow.AccountEntity(acct), p)
		if err != nil {
			return err
		}
		sum.Add(sum, v)
	}
	global, err := svc.VotingPowerExactAt(ctx, escrow.Global, p)
	if err != nil {
		return err
	}
	if global.Cmp(sum) != 0 {
		return fmt.Errorf("period %d: global %s != sum of accounts %s", p, global.RatString(), sum.RatString())
	}
	return nil
}

func printReport(w io.Writer, r SimulationReport) {
	fmt.Fprintf(w, "steps=%d accepted=%d rejected=%d checks=%d\n", r.Steps, r.Accepted, r.Rejected, r.Checks)
	if r.Final != nil {
		fmt.Fprintf(w, "final global power=%s\n", r.Final.FloatString(6))
	}
	fmt.Fprintln(w, "global power matched the sum of accounts at every check")
}

type discardExecutor struct{}

func (discardExecutor) Transfer(context.Context, escrow.Transfer) error { return nil }
