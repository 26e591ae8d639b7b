package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"voting-escrow/internal/alerting"
	"voting-escrow/internal/escrow"
	"voting-escrow/internal/kvstore"
	"voting-escrow/internal/storage"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	guardian = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type recordingNotifier struct {
	notes []alerting.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return nil
}

type recordingExecutor struct {
	transfers []escrow.Transfer
	err       error
}

func (e *recordingExecutor) Transfer(_ context.Context, t escrow.Transfer) error {
	if e.err != nil {
		return e.err
	}
	e.transfers = append(e.transfers, t)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *storage.SQLiteStore
	notifier *recordingNotifier
	executor *recordingExecutor
	clock    escrow.Clock
	now      time.Time
}

func newFixture(t *testing.T, cooldown time.Duration) *fixture {
	t.Helper()
	kv, err := kvstore.Open(kvstore.EngineLevelDB, "")
	if err != nil {
		t.Fatalf("打开 kv 失败: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	repo, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("打开 sqlite 失败: %v", err)
	}
	t.Cleanup(repo.Close)

	ledger, err := escrow.New(escrow.DefaultParams())
	if err != nil {
		t.Fatalf("创建 ledger 失败: %v", err)
	}

	f := &fixture{
		repo:     repo,
		notifier: &recordingNotifier{},
		executor: &recordingExecutor{},
		clock:    ledger.Clock(),
	}
	f.at(100)
	f.svc = New(ledger, kv, Options{
		Executor:      f.executor,
		Journal:       repo,
		Snapshots:     repo,
		Alerts:        repo,
		Notifier:      f.notifier,
		AlertsEnabled: true,
		ThresholdPct:  10,
		Cooldown:      cooldown,
		Channels:      []string{"telegram"},
		Now:           func() time.Time { return f.now },
	}, zerolog.Nop())

	if err := f.svc.Instantiate(context.Background(), owner, guardian); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	return f
}

func (f *fixture) at(p escrow.Period) {
	f.now = f.clock.Start(p).Add(time.Hour)
}

func TestExecuteJournalsCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	if _, err := f.svc.Execute(ctx, alice, escrow.CreateLock{Amount: big.NewInt(1000), Periods: 10}); err != nil {
		t.Fatalf("创建锁仓失败: %v", err)
	}
	_, err := f.svc.Execute(ctx, alice, escrow.CreateLock{Amount: big.NewInt(1000), Periods: 10})
	if !errors.Is(err, escrow.ErrLockAlreadyExists) {
		t.Fatalf("重复锁仓应失败, 实际 %v", err)
	}

	entries, err := f.svc.RecentJournal(ctx, 10)
	if err != nil {
		t.Fatalf("读取日志失败: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("日志条数应为 2, 实际 %d", len(entries))
	}
	if entries[0].Error == nil || entries[1].Error != nil {
		t.Fatalf("失败命令应记录错误, 成功命令不应记录")
	}
	if entries[1].Action != "create_lock" || entries[1].Sender != alice.Hex() || entries[1].Period != 100 {
		t.Fatalf("日志内容不符: %+v", entries[1])
	}

	power, err := f.svc.VotingPower(ctx, escrow.AccountEntity(alice), f.now)
	if err != nil {
		t.Fatalf("查询投票权失败: %v", err)
	}
	if power.Int64() != 96 {
		t.Fatalf("投票权应为 96, 实际 %s", power)
	}
}

func TestExecuteRollsBackFailedCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	_, err := f.svc.Execute(ctx, alice, escrow.CreateLock{Amount: big.NewInt(1000), Periods: 200})
	if !errors.Is(err, escrow.ErrLockTimeLimits) {
		t.Fatalf("超限锁仓应失败, 实际 %v", err)
	}
	if _, err := f.svc.LockInfo(ctx, alice); !errors.Is(err, escrow.ErrLockDoesntExist) {
		t.Fatalf("失败命令不应留下锁仓, 实际 %v", err)
	}
}

func TestWithdrawHandsTransferToExecutor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	if _, err := f.svc.Execute(ctx, alice, escrow.CreateLock{Amount: big.NewInt(500), Periods: 2}); err != nil {
		t.Fatalf("创建锁仓失败: %v", err)
	}
	f.at(102)
	eff, err := f.svc.Execute(ctx, alice, escrow.Withdraw{})
	if err != nil {
		t.Fatalf("提取失败: %v", err)
	}
	if eff.Action != "withdraw" {
		t.Fatalf("动作应为 withdraw, 实际 %s", eff.Action)
	}
	if len(f.executor.transfers) != 1 {
		t.Fatalf("应产生一笔转账, 实际 %d", len(f.executor.transfers))
	}
	tr := f.executor.transfers[0]
	if tr.To != alice || tr.Amount.Int64() != 500 {
		t.Fatalf("转账内容不符: %+v", tr)
	}
}

func TestTransferFailureIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.executor.err = errors.New("bridge down")

	if _, err := f.svc.Execute(ctx, alice, escrow.CreateLock{Amount: big.NewInt(500), Periods: 1}); err != nil {
		t.Fatalf("创建锁仓失败: %v", err)
	}
	f.at(101)
	if _, err := f.svc.Execute(ctx, alice, escrow.Withdraw{}); err == nil {
		t.Fatalf("转账失败应返回错误")
	}
	if _, err := f.svc.LockInfo(ctx, alice); !errors.Is(err, escrow.ErrLockDoesntExist) {
		t.Fatalf("账本应已提交提取, 实际 %v", err)
	}
}

func TestBlacklistNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	if _, err := f.svc.Execute(ctx, owner, escrow.UpdateBlacklist{Append: []common.Address{bob}}); err != nil {
		t.Fatalf("更新黑名单失败: %v", err)
	}
	if len(f.notifier.notes) != 1 {
		t.Fatalf("应发送一条通知, 实际 %d", len(f.notifier.notes))
	}
	note := f.notifier.notes[0]
	if note.Kind != alerting.KindBlacklist || len(note.Appended) != 1 || note.Appended[0] != bob.Hex() {
		t.Fatalf("通知内容不符: %+v", note)
	}

	list, err := f.svc.Blacklist(ctx)
	if err != nil {
		t.Fatalf("读取黑名单失败: %v", err)
	}
	if len(list) != 1 || list[0] != bob {
		t.Fatalf("黑名单内容不符: %v", list)
	}
}

func TestProcessPeriodRecordsSnapshotsAndAlerts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour)

	if _, err := f.svc.Execute(ctx, alice, escrow.CreateLock{Amount: big.NewInt(1000), Periods: 10}); err != nil {
		t.Fatalf("创建锁仓失败: %v", err)
	}

	if err := f.svc.ProcessPeriod(ctx, 100, f.clock.Start(100)); err != nil {
		t.Fatalf("处理周期 100 失败: %v", err)
	}
	f.at(105)
	if err := f.svc.ProcessPeriod(ctx, 105, f.clock.Start(105)); err != nil {
		t.Fatalf("处理周期 105 失败: %v", err)
	}

	snaps, err := f.svc.RecentSnapshots(ctx, 10)
	if err != nil {
		t.Fatalf("读取快照失败: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("快照数应为 2, 实际 %d", len(snaps))
	}
	if snaps[0].Period != 105 || !snaps[0].TotalPower.Equal(decimal.NewFromInt(48)) {
		t.Fatalf("周期 105 快照不符: %+v", snaps[0])
	}
	if snaps[1].TotalExact != "96" || snaps[1].Locks != 1 {
		t.Fatalf("周期 100 快照不符: %+v", snaps[1])
	}

	if len(f.notifier.notes) != 1 {
		t.Fatalf("应触发一条告警, 实际 %d", len(f.notifier.notes))
	}
	note := f.notifier.notes[0]
	if note.Kind != alerting.KindSupplyChange || note.Direction != "down" {
		t.Fatalf("告警内容不符: %+v", note)
	}
	if !note.ChangePct.Equal(decimal.NewFromInt(-50)) {
		t.Fatalf("变化幅度应为 -50, 实际 %s", note.ChangePct)
	}

	alerts, err := f.repo.ListRecentAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("读取告警失败: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Period != 105 {
		t.Fatalf("告警记录不符: %+v", alerts)
	}

	// 38 vs 48 is another drop, but the cooldown is still running.
	f.now = f.now.Add(time.Minute)
	if err := f.svc.ProcessPeriod(ctx, 106, f.clock.Start(106)); err != nil {
		t.Fatalf("处理周期 106 失败: %v", err)
	}
	if len(f.notifier.notes) != 1 {
		t.Fatalf("冷却期内不应再告警, 实际 %d", len(f.notifier.notes))
	}
}

func TestRecordSnapshotForPastPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	if _, err := f.svc.Execute(ctx, alice, escrow.CreateLock{Amount: big.NewInt(1000), Periods: 10}); err != nil {
		t.Fatalf("创建锁仓失败: %v", err)
	}
	f.at(108)
	if err := f.svc.ProcessPeriod(ctx, 108, f.clock.Start(108)); err != nil {
		t.Fatalf("处理周期 108 失败: %v", err)
	}
	if err := f.svc.ProcessPeriod(ctx, 103, f.clock.Start(103)); err != nil {
		t.Fatalf("回填周期 103 应容忍过期周期: %v", err)
	}

	snaps, err := f.repo.ListSnapshotsBetween(ctx, 100, 110)
	if err != nil {
		t.Fatalf("读取快照失败: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Period != 103 || !snaps[0].TotalPower.Equal(decimal.NewFromInt(67)) {
		t.Fatalf("回填快照不符: %+v", snaps)
	}
}

func TestCurve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	if _, err := f.svc.Execute(ctx, alice, escrow.CreateLock{Amount: big.NewInt(1000), Periods: 10}); err != nil {
		t.Fatalf("创建锁仓失败: %v", err)
	}
	curve, err := f.svc.Curve(ctx, escrow.Global, 99, 111)
	if err != nil {
		t.Fatalf("采样曲线失败: %v", err)
	}
	if len(curve) != 13 {
		t.Fatalf("采样点应为 13, 实际 %d", len(curve))
	}
	want := map[escrow.Period]int64{99: 0, 100: 96, 103: 67, 105: 48, 110: 0, 111: 0}
	for _, pt := range curve {
		if w, ok := want[pt.Period]; ok && pt.Power.Int64() != w {
			t.Fatalf("周期 %d 投票权应为 %d, 实际 %s", pt.Period, w, pt.Power)
		}
	}
	if _, err := f.svc.Curve(ctx, escrow.Global, 5, 4); err == nil {
		t.Fatalf("反向区间应报错")
	}
}

func TestChangePct(t *testing.T) {
	got := ChangePct(decimal.NewFromInt(200), decimal.NewFromInt(230))
	if !got.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("变化幅度应为 15, 实际 %s", got)
	}
	if !ChangePct(decimal.Zero, decimal.NewFromInt(5)).IsZero() {
		t.Fatalf("前值为零时应返回 0")
	}
	if classifyChange(decimal.NewFromInt(-1)) != "down" || classifyChange(decimal.Zero) != "flat" {
		t.Fatalf("方向分类错误")
	}
}
