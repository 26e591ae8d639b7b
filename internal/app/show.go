package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"voting-escrow/internal/escrow"
	"voting-escrow/internal/service"
)

// Show prints locks, and optionally recent snapshots and journal entries.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	svc, closeSvc, err := a.newService(ctx, serviceOptions{readOnly: true})
	if err != nil {
		return err
	}
	defer closeSvc()

	return a.show(ctx, os.Stdout, svc, opts)
}

func (a *App) show(ctx context.Context, out io.Writer, svc *service.Service, opts ShowOptions) error {
	locks, err := svc.Locks(ctx)
	if err != nil {
		return err
	}
	now := svc.Now()
	if err := writeLocks(ctx, out, svc, locks, now); err != nil {
		return err
	}

	if opts.Snapshots {
		snaps, err := svc.RecentSnapshots(ctx, opts.Limit)
		if errors.Is(err, service.ErrNoSnapshotStore) {
			return errNoRepository
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Period\tStart (UTC)\tTotal Power\tSlope\tLocks")
		for _, snap := range snaps {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%d\n",
				snap.Period,
				snap.PeriodStart.UTC().Format(time.RFC3339),
				snap.TotalPower.String(),
				formatDecimal(snap.Slope, 6),
				snap.Locks,
			)
		}
		writer.Flush()
	}

	if opts.Journal {
		entries, err := svc.RecentJournal(ctx, opts.Limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tTime (UTC)\tPeriod\tAction\tSender\tError")
		for _, entry := range entries {
			errMsg := ""
			if entry.Error != nil {
				errMsg = sanitizeInline(*entry.Error)
			}
			fmt.Fprintf(writer, "%d\t%s\t%d\t%s\t%s\t%s\n",
				entry.ID,
				entry.CreatedAt.UTC().Format(time.RFC3339),
				entry.Period,
				entry.Action,
				entry.Sender,
				errMsg,
			)
		}
		writer.Flush()
	}
	return nil
}

func writeLocks(ctx context.Context, out io.Writer, svc *service.Service, locks []service.AccountLock, now time.Time) error {
	if len(locks) == 0 {
		fmt.Fprintln(out, "no locks found")
		return nil
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Account\tAmount\tStart\tEnd\tCoefficient\tVoting Power")
	for _, l := range locks {
		power, err := svc.VotingPower(ctx, escrow.AccountEntity(l.Account), now)
		if err != nil {
			return err
		}
		coeff, _ := l.Info.Coefficient.Float64()
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%.4f\t%s\n",
			l.Account.Hex(),
			l.Info.Amount.String(),
			l.Info.Start,
			l.Info.End,
			coeff,
			power.String(),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
