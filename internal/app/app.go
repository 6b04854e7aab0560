package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"nightbot/internal/bot"
	"nightbot/internal/config"
	"nightbot/internal/eventbus"
	"nightbot/internal/flows"
	"nightbot/internal/observability/metrics"
	"nightbot/internal/observability/ops"
	"nightbot/internal/records"
	rtsup "nightbot/internal/runtime/supervisor"
	"nightbot/internal/storage"
	"nightbot/internal/task/engine"
	"nightbot/internal/task/scheduler"
	"nightbot/internal/transport"
	"nightbot/internal/transport/telegram/adapter"
	"nightbot/internal/transport/telegram/router"
	logx "nightbot/pkg/logx"
)

// updateSource is the inbound side of the telegram adapter.
type updateSource interface {
	Start(ctx context.Context, out chan<- transport.Update) error
	Stop(ctx context.Context) error
}

type commandLoop interface {
	SetOwners(owners []int64)
	SyncMenu(ctx context.Context) error
	DispatchLoop(ctx context.Context, updates <-chan transport.Update) error
}

type reconciler interface {
	Reconcile(ctx context.Context) (flows.ReconcileResult, error)
}

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	engine  *engine.Service
	sched   *scheduler.Service
	flows   reconciler
	adapter updateSource
	cmdm    commandLoop
	metrics *metrics.Metrics

	opsMu sync.Mutex
	ops   *ops.Service

	updates chan transport.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(cfg.LogxConfig(), nil)
	cfgm.SetLogger(log)

	store, err := storage.Open(cfg.StorageConfig(), log)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	ad, err := adapter.New(cfg.AdapterConfig(), log)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	logs.SetSender(alertSender{ad: ad})

	bus := eventbus.New()
	rec := records.New(store, cfg.AppID, log)
	eng := engine.New(cfg.EngineConfig(), log, bus)
	sched := scheduler.New(cfg.SchedulerConfig(), eng, log, bus)
	fl := flows.New(rec, sched, log)
	sched.SetDispatcher(flows.NewDispatcher(rec, sched, ad, log))

	met := metrics.New(metrics.Sources{Jobs: sched, Engine: eng}, log)

	cmdm := router.NewCommandManager(log, ad, cfg.RouterConfig())
	cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)
	cmdm.Use(countUpdates(met))
	bot.New(fl, rec, log).Register(cmdm, bot.NewOps(sched, eng).Commands()...)

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.Comp("app")),
		logs:    logs,
		bus:     bus,
		store:   store,
		engine:  eng,
		sched:   sched,
		flows:   fl,
		adapter: ad,
		cmdm:    cmdm,
		metrics: met,
		updates: make(chan transport.Update, max(cfg.Router.UpdateBuffer, 256)),
	}
	if cfg.Ops.Enabled {
		a.ops = a.newOps(cfg)
	}
	a.log.Info("app configured",
		logx.String("app_id", cfg.AppID),
		logx.String("storage", cfg.Storage.Driver),
		logx.Int("owners", len(cfg.Telegram.OwnerUserIDs)),
		logx.Bool("ops", cfg.Ops.Enabled),
	)
	return a, nil
}

func (a *App) newOps(cfg *config.Config) *ops.Service {
	return ops.New(cfg.OpsConfig(), ops.Deps{
		Metrics: a.metrics.Handler(),
		Jobs:    a.sched,
		Engine:  a.engine,
		Check:   a.storeCheck,
	}, a.log)
}

// storeCheck checks the store with a read of a document that never exists.
func (a *App) storeCheck(ctx context.Context) error {
	_, err := a.store.Get(ctx, "health/ping")
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start brings the components up in dependency order. Stored schedules are
// re-registered before any update is read.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })

	a.engine.Start(c)
	a.sched.Start(c)

	res, err := a.flows.Reconcile(c)
	a.metrics.ObserveReconcile(res.Scheduled, res.Skipped)
	a.bus.Publish(eventbus.Event{Type: eventbus.ReconcileDone, Data: res})
	if err != nil {
		// Partial reconciliation still leaves a usable bot; the rest are
		// picked up on the next start.
		a.log.Error("reconcile incomplete", logx.Int("scheduled", res.Scheduled), logx.Err(err))
	}

	a.opsMu.Lock()
	if a.ops != nil {
		if err := a.ops.Start(c); err != nil {
			a.log.Warn("ops server disabled", logx.Err(err))
			a.ops = nil
		} else {
			a.ops.SetReady(true)
		}
	}
	a.opsMu.Unlock()
	a.sdNotify(daemon.SdNotifyReady)

	if err := a.adapter.Start(c, a.updates); err != nil {
		return fmt.Errorf("start telegram adapter: %w", err)
	}
	menuCtx, cancel := context.WithTimeout(c, 10*time.Second)
	if err := a.cmdm.SyncMenu(menuCtx); err != nil {
		a.log.Warn("command menu sync failed", logx.Err(err))
	}
	cancel()

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.Int("jobs", a.sched.Len()))
	return nil
}

// Stop tears down in reverse start order. Each step is bounded so one
// component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	a.opsMu.Lock()
	if a.ops != nil {
		a.ops.SetReady(false)
	}
	a.opsMu.Unlock()

	a.sup.Cancel()

	a.step(ctx, "adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "engine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "ops", 2*time.Second, func(c context.Context) error {
		a.opsMu.Lock()
		s := a.ops
		a.opsMu.Unlock()
		if s != nil {
			s.Stop(c)
		}
		return nil
	})
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped (no time left)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
		}()
	}
}
