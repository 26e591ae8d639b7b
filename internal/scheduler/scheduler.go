package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voting-escrow/internal/escrow"
)

// TickFunc is invoked on every aligned interval with the ledger period the
// tick falls into.
type TickFunc func(ctx context.Context, period escrow.Period, bucket time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Clock escrow.Clock
	// Interval defaults to one ledger period.
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives period maintenance jobs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Clock.PeriodSeconds == 0 {
		opts.Clock = escrow.NewClock(escrow.Week)
	}
	if opts.Interval <= 0 {
		opts.Interval = opts.Clock.Length()
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Interval returns the effective tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.opts.Interval
}

// Run blocks, invoking the tick function at each aligned interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		bucket := s.bucketStart(next)
		period := s.opts.Clock.Period(bucket)
		s.logger.Info().Time("bucket", bucket).Uint64("period", uint64(period)).Msg("executing scheduled tick")

		if err := tick(ctx, period, bucket); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

// nextTick returns the next boundary after now. Aligned boundaries are
// counted from the unix epoch so that they coincide with period starts.
func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	return s.bucketStart(now).Add(s.opts.Interval)
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	iv := int64(s.opts.Interval)
	ns := t.UnixNano()
	start := ns - ns%iv
	if ns < 0 && ns%iv != 0 {
		start -= iv
	}
	return time.Unix(0, start).UTC()
}
