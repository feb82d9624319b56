package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"forecastbot/internal/bot"
	"forecastbot/internal/config"
	"forecastbot/internal/engine"
	"forecastbot/internal/eventbus"
	"forecastbot/internal/forecast"
	"forecastbot/internal/runtime/supervisor"
	"forecastbot/internal/storage"
	kit "forecastbot/internal/transport"
	"forecastbot/internal/transport/telegram"
	"forecastbot/internal/transport/viber"
	"forecastbot/internal/webhook"
	logx "forecastbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor
	sd   *sdNotifier

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	messenger kit.Messenger

	guard    *engine.Guard
	dispatch *engine.Dispatcher
	sched    *engine.Scheduler
	router   *bot.Router
	hook     *webhook.Server

	stopTimeout time.Duration
	events      chan kit.Event

	stopListen context.CancelFunc
	listenDone chan struct{}
}

// New loads the config file and builds every component without starting
// any goroutines.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	m, err := newMessenger(cfg, bootLog.With(logx.String("comp", cfg.Messenger)))
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogConfig(), m)
	logSvc.SetAdminTarget(cfg.AdminID)

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("dispatch audit enabled", logx.String("driver", sc.Driver))
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	fcCfg, err := mapForecastConfig(cfg)
	if err != nil {
		return nil, err
	}
	routerCfg, err := mapRouterConfig(cfg)
	if err != nil {
		return nil, err
	}
	stopTimeout, err := config.ParseDurationOrDefault("scheduler.stop_timeout", cfg.Scheduler.StopTimeout, defaultStopTimeout)
	if err != nil {
		return nil, err
	}

	kb := bot.DefaultKeyboard()
	guard := engine.NewGuard()
	dispatch := engine.NewDispatcher(mapDispatchConfig(cfg), m, store, bus, log.With(logx.String("comp", "dispatch")))
	sched := engine.NewScheduler(schedCfg, engine.Deps{
		Guard:      guard,
		Fetcher:    forecast.New(fcCfg, nil),
		Directory:  m,
		Dispatcher: dispatch,
		Bus:        bus,
		Keyboard:   kb,
	}, log.With(logx.String("comp", "engine")))
	responder := engine.NewResponder(guard, dispatch, kb, time.UTC, log.With(logx.String("comp", "responder")))
	router := bot.New(routerCfg, responder, m, kb, log.With(logx.String("comp", "bot")))

	return &App{
		cfgm:        cfgm,
		log:         log.With(logx.String("comp", "app")),
		logs:        logSvc,
		bus:         bus,
		store:       store,
		messenger:   m,
		guard:       guard,
		dispatch:    dispatch,
		sched:       sched,
		router:      router,
		stopTimeout: stopTimeout,
		events:      make(chan kit.Event, 64),
	}, nil
}

func newMessenger(cfg *config.Config, log logx.Logger) (kit.Messenger, error) {
	switch cfg.Messenger {
	case "telegram":
		tc, err := mapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(tc, log)
		if err != nil {
			return nil, err
		}
		return ad, nil
	case "", "viber":
		vc, err := mapViberConfig(cfg)
		if err != nil {
			return nil, err
		}
		c, err := viber.New(vc, nil, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown messenger %q", cfg.Messenger)
	}
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.sd = newSDNotifier(a.log.With(logx.String("comp", "systemd")))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := a.sched.ValidateSchedule(cfg.Scheduler.Schedule); err != nil {
			return err
		}
		if _, err := mapRouterConfig(cfg); err != nil {
			return err
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	cfg := a.cfgm.Get()
	a.hook = webhook.New(mapWebhookConfig(cfg), webhook.Deps{
		Parse:   viber.ParseCallback,
		Handler: a.router,
		Guard:   a.guard,
		Audit:   a.store,
		Sup:     a.sup,
	}, a.log.With(logx.String("comp", "webhook")))
	if err := a.hook.Start(a.sup); err != nil {
		return err
	}

	if l, ok := a.messenger.(kit.Listener); ok {
		a.startListener(l)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sched.SetOnTick(a.sd.Watchdog)
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sd.Ready()
	a.log.Info("app started", logx.String("messenger", a.messenger.Name()))
	return nil
}

// startListener runs a polling messenger under its own cancel so Stop can
// end it before the shared context goes away.
func (a *App) startListener(l kit.Listener) {
	lctx, cancel := context.WithCancel(a.sup.Context())
	done := make(chan struct{})
	a.stopListen, a.listenDone = cancel, done
	a.sup.Go("messenger.listen", func(context.Context) error {
		defer close(done)
		return l.Listen(lctx, a.events)
	})
	a.sup.Go0("messenger.events", a.routeEvents)
}

func (a *App) stopMessenger(ctx context.Context) error {
	if a.stopListen == nil {
		return nil
	}
	a.stopListen()
	select {
	case <-a.listenDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// routeEvents hands events pulled by a polling messenger to the router, one
// goroutine per event like webhook deliveries.
func (a *App) routeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.events:
			a.sup.Go0("event."+string(ev.Kind), func(c context.Context) {
				_ = a.router.Handle(c, ev)
			})
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	applied := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			next = cfg
		}
		// keep only the newest of a burst
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					next = newer
				}
			default:
				break drain
			}
		}

		change := config.Summarize(applied, next)
		if change.Empty() {
			a.log.Debug("config reload received, but no effective changes detected")
			continue
		}
		a.sd.Reloading()
		a.apply(next)
		applied = next
		a.sd.Ready()

		fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Attrs...)
		a.log.Info("config applied", fields...)
		if len(change.Restart) > 0 {
			a.log.Warn("restart required for some changes", logx.String("sections", strings.Join(change.Restart, ",")))
		}
	}
}

func (a *App) apply(cfg *config.Config) {
	a.logs.SetAdminTarget(cfg.AdminID)
	a.logs.Apply(cfg.LogConfig())

	if sc, err := mapSchedulerConfig(cfg); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else if err := a.sched.Apply(sc); err != nil {
		a.log.Warn("scheduler config rejected; keeping previous", logx.Err(err))
	}

	a.dispatch.Apply(mapDispatchConfig(cfg))

	if rc, err := mapRouterConfig(cfg); err != nil {
		a.log.Warn("invalid reply config; keeping previous", logx.Err(err))
	} else {
		a.router.Apply(rc)
	}
}

// Stop shuts components down in order, each step bounded so one stuck
// component cannot stall the rest. The scheduler goes first so an in-flight
// tick can finish before the shared context is canceled.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	a.step(ctx, "scheduler", a.stopTimeout+time.Second, func(c context.Context) error {
		sc, cancel := context.WithTimeout(c, a.stopTimeout)
		defer cancel()
		a.sched.Stop(sc)
		return nil
	})
	a.step(ctx, "messenger", 3*time.Second, a.stopMessenger)
	a.sup.Cancel()
	a.step(ctx, "webhook", 3*time.Second, func(c context.Context) error {
		if a.hook == nil {
			return nil
		}
		return a.hook.Stop(c)
	})
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		// never extend the caller's deadline
		if rem := time.Until(dl); rem < limit {
			limit = rem
		}
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
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
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("limit", limit))
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
