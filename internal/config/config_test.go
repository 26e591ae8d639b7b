package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"voting-escrow/internal/escrow"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  name: test\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.App.Name != "test" {
		t.Fatalf("app.name 不正确: %s", cfg.App.Name)
	}
	if cfg.Ledger.Period != escrow.Week || cfg.Ledger.MaxLockPeriods != 104 || cfg.Ledger.MinLockPeriods != 1 {
		t.Fatalf("ledger 默认值不正确: %+v", cfg.Ledger)
	}
	if cfg.SchedulerInterval() != escrow.Week {
		t.Fatalf("调度间隔应默认为一个周期, 实际 %s", cfg.SchedulerInterval())
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("database.driver 默认应为 sqlite, 实际 %s", cfg.Database.Driver)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`ledger:
  period: 1h
  max_lock_periods: 10
  owner: "0x00000000000000000000000000000000000000a0"
alerting:
  channels: "telegram,log"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VXLEDGER_SERVER_ADDR", ":9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Ledger.Period != time.Hour || cfg.Ledger.MaxLockPeriods != 10 {
		t.Fatalf("ledger 配置不正确: %+v", cfg.Ledger)
	}
	if cfg.Ledger.Params().Clock.PeriodSeconds != 3600 {
		t.Fatalf("周期秒数不正确: %d", cfg.Ledger.Params().Clock.PeriodSeconds)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("环境变量应覆盖 server.addr, 实际 %s", cfg.Server.Addr)
	}
	if len(cfg.Alerting.Channels) != 2 {
		t.Fatalf("channels 解析不正确: %v", cfg.Alerting.Channels)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Ledger:   LedgerConfig{Period: time.Hour, MinLockPeriods: 1, MaxLockPeriods: 104},
			Database: DatabaseConfig{Driver: "sqlite"},
			Export:   ExportConfig{MaxDataPoints: 10},
		}
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("合法配置不应报错: %v", err)
	}

	cfg = base()
	cfg.Ledger.MaxLockPeriods = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("max_lock_periods 小于 min 应报错")
	}

	cfg = base()
	cfg.Ledger.Owner = "not-an-address"
	if err := cfg.Validate(); err == nil {
		t.Fatal("非法 owner 地址应报错")
	}

	cfg = base()
	cfg.Database.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("不支持的 driver 应报错")
	}

	cfg = base()
	cfg.Alerting.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("启用 Telegram 但缺少 token 应报错")
	}
}
