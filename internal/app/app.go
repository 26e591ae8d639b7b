package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voting-escrow/internal/alerting"
	"voting-escrow/internal/config"
	"voting-escrow/internal/escrow"
	"voting-escrow/internal/kvstore"
	"voting-escrow/internal/logging"
	"voting-escrow/internal/scheduler"
	"voting-escrow/internal/server"
	"voting-escrow/internal/service"
	"voting-escrow/internal/storage"
	"voting-escrow/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	notifiers := alerting.Multi{alerting.NewLogNotifier(a.Logger)}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger))
	}
	return notifiers
}

func (a *App) openLedger() (kvstore.KV, error) {
	path := a.Config.Ledger.Path
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	kv, err := kvstore.Open(a.Config.Ledger.Engine, path)
	if err != nil {
		return nil, fmt.Errorf("open ledger state: %w", err)
	}
	return kv, nil
}

func (a *App) openStore(ctx context.Context) (storage.Repository, func(), error) {
	db := a.Config.Database
	if db.DSN == "" {
		return nil, nil, nil
	}
	if db.Driver != "postgres" && db.DSN != ":memory:" {
		if err := ensureDir(db.DSN); err != nil {
			return nil, nil, err
		}
	}
	repo, err := storage.Open(ctx, db)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

// serviceOptions controls which collaborators newService wires.
type serviceOptions struct {
	scheduler bool
	readOnly  bool
	quiet     bool
}

// newService opens ledger state and the SQL side store and builds the
// service over them. The returned closer releases both.
func (a *App) newService(ctx context.Context, opts serviceOptions) (*service.Service, func(), error) {
	ledger, err := escrow.New(a.Config.Ledger.Params())
	if err != nil {
		return nil, nil, err
	}

	kv, err := a.openLedger()
	if err != nil {
		return nil, nil, err
	}
	repo, closeRepo, err := a.openStore(ctx)
	if err != nil {
		kv.Close()
		return nil, nil, err
	}
	closer := func() {
		if closeRepo != nil {
			closeRepo()
		}
		if err := kv.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("close ledger state")
		}
	}

	svcOpts := service.Options{
		AlertsEnabled: a.Config.Alerting.Enabled,
		ThresholdPct:  a.Config.Alerting.ThresholdPct,
		Cooldown:      a.Config.Alerting.Cooldown,
		Channels:      a.Config.Alerting.Channels,
		LockKey:       a.Config.Scheduler.AdvisoryLockKey,
	}
	if !opts.quiet {
		svcOpts.Notifier = a.newNotifier()
	} else {
		svcOpts.AlertsEnabled = false
	}
	if repo == nil {
		a.Logger.Warn().Msg("database.dsn not configured; snapshots and journal disabled")
	} else {
		svcOpts.Journal = repo
		svcOpts.Snapshots = repo
		svcOpts.Alerts = repo
	}
	if opts.scheduler {
		svcOpts.Scheduler = scheduler.New(scheduler.Options{
			Clock:        ledger.Clock(),
			Interval:     a.Config.SchedulerInterval(),
			AlignToStart: a.Config.Scheduler.AlignToBucket,
			StartupDelay: a.Config.Scheduler.StartupDelay,
		}, a.Logger)
	}

	svc := service.New(ledger, kv, svcOpts, a.Logger)
	if !opts.readOnly {
		if err := a.instantiate(ctx, svc); err != nil {
			closer()
			return nil, nil, err
		}
	}
	return svc, closer, nil
}

func (a *App) instantiate(ctx context.Context, svc *service.Service) error {
	if a.Config.Ledger.Owner == "" {
		return nil
	}
	owner := common.HexToAddress(a.Config.Ledger.Owner)
	guardian := owner
	if a.Config.Ledger.Guardian != "" {
		guardian = common.HexToAddress(a.Config.Ledger.Guardian)
	}
	return svc.Instantiate(ctx, owner, guardian)
}

// Run executes the API server and the period maintenance loop.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closeSvc, err := a.newService(ctx, serviceOptions{scheduler: a.Config.Scheduler.Enabled})
	if err != nil {
		return err
	}
	defer closeSvc()

	if _, err := svc.Config(ctx); errors.Is(err, escrow.ErrNotInstantiated) {
		a.Logger.Warn().Msg("ledger not instantiated; set ledger.owner to bootstrap it")
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.Config.Server.Enabled {
		httpServer := server.New(svc, version.Version, a.Logger).HTTPServer(a.Config.Server)
		g.Go(func() error {
			a.Logger.Info().Str("addr", httpServer.Addr).Msg("starting api server")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if a.Config.Scheduler.Enabled {
		g.Go(func() error {
			a.Logger.Info().Msg("starting period scheduler")
			err := svc.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}
	a.Logger.Info().Msg("ledger service stopped")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.Config.Server.ShutdownTimeout > 0 {
		return a.Config.Server.ShutdownTimeout
	}
	return 5 * time.Second
}

// ExportOptions hold parameters for exporting a voting power curve.
type ExportOptions struct {
	Account   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit     int
	Snapshots bool
	Journal   bool
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}

// SimulateOptions configure the randomized consistency check.
type SimulateOptions struct {
	Seed     int64
	Accounts int
	Steps    int
}
