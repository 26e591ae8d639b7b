package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voting-escrow/internal/escrow"
)

func TestAlignedTicksMatchPeriodStarts(t *testing.T) {
	clock := escrow.NewClock(escrow.Week)
	s := New(Options{Clock: clock, AlignToStart: true}, zerolog.Nop())

	if s.Interval() != escrow.Week {
		t.Fatalf("默认间隔应为一个周期, 实际 %s", s.Interval())
	}

	now := clock.Start(2800).Add(3 * 24 * time.Hour)
	next := s.nextTick(now)
	if !next.Equal(clock.Start(2801)) {
		t.Fatalf("下一次触发应在周期 2801 起点, 实际 %s", next)
	}
	if got := clock.Period(s.bucketStart(next)); got != 2801 {
		t.Fatalf("bucket 对应周期不正确: %d", got)
	}

	exact := clock.Start(2800)
	if !s.nextTick(exact).Equal(clock.Start(2801)) {
		t.Fatal("恰在边界时应取下一个边界")
	}
}

func TestUnalignedNextTick(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	now := time.Unix(1000, 5)
	if got := s.nextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("未对齐时应为 now+interval, 实际 %s", got)
	}
	if !s.bucketStart(now).Equal(now) {
		t.Fatal("未对齐时 bucket 即触发时间")
	}
}

func TestRunInvokesTickUntilCancelled(t *testing.T) {
	s := New(Options{Clock: escrow.NewClock(time.Second), Interval: 20 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	err := s.Run(ctx, func(context.Context, escrow.Period, time.Time) error {
		if calls.Add(1) >= 3 {
			cancel()
		}
		return errors.New("tick errors are logged, not fatal")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
	if calls.Load() < 3 {
		t.Fatalf("应至少触发 3 次, 实际 %d", calls.Load())
	}
}
