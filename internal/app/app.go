package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"vocabremind/internal/config"
	"vocabremind/internal/delivery"
	"vocabremind/internal/delivery/telegram"
	"vocabremind/internal/dispatch"
	"vocabremind/internal/eventbus"
	"vocabremind/internal/httpapi"
	"vocabremind/internal/metrics"
	"vocabremind/internal/reminder/handler"
	"vocabremind/internal/reminder/service"
	"vocabremind/internal/runtime/supervisor"
	"vocabremind/internal/storage"
	"vocabremind/internal/task/engine"
	"vocabremind/internal/task/scheduler"
	"vocabremind/internal/vocabulary"
	logx "vocabremind/pkg/logx"
)

// App wires every component and owns their lifecycle.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store         storage.Store
	storageDriver string

	engine   *engine.Service
	sched    *scheduler.Registry
	dispatch *dispatch.Dispatcher
	service  *service.Service
	api      *handler.Handler
	metrics  *metrics.Metrics

	http    *httpapi.Server
	handler swapHandler

	started time.Time
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))

	sender, err := newSender(cfg, root)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if as, ok := sender.(logx.AlertSender); ok {
		logSvc.SetAlertSender(as)
	}

	sc := mapStorageConfig(cfg)
	store, err := storage.Open(ctx, sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	driver := strings.ToLower(sc.Driver)
	if driver == "" {
		driver = "memory"
	}
	log.Info("storage opened", logx.String("driver", driver))

	var words []vocabulary.Entry
	if p := strings.TrimSpace(cfg.Vocabulary.Path); p != "" {
		words, err = vocabulary.Load(p)
		if err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("load vocabulary: %w", err)
		}
		log.Info("vocabulary loaded", logx.String("path", p), logx.Int("words", len(words)))
	}

	bus := eventbus.New()
	eng := engine.New(engCfg, root.With(logx.String("comp", "taskengine")), bus)
	disp := dispatch.New(mapDispatchConfig(cfg), sender, vocabulary.NewSelector(),
		root.With(logx.String("comp", "dispatch")), bus)
	sched := scheduler.New(mapSchedulerConfig(cfg), eng, disp,
		root.With(logx.String("comp", "scheduler")), bus)
	svc := service.New(store, sched, words, root.With(logx.String("comp", "reminders")))

	a := &App{
		cfgm:          cfgm,
		log:           log,
		logs:          logSvc,
		bus:           bus,
		store:         store,
		storageDriver: driver,
		engine:        eng,
		sched:         sched,
		dispatch:      disp,
		service:       svc,
		api:           handler.New(svc, root.With(logx.String("comp", "api"))),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(sched.Len)
	}
	a.handler.Store(a.router(cfg))
	a.http = httpapi.New(mapHTTPConfig(cfg), &a.handler, root)
	return a, nil
}

func newSender(cfg *config.Config, log logx.Logger) (delivery.Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Delivery.Driver)) {
	case "telegram":
		s, err := telegram.New(telegram.Config{
			Token:       cfg.Delivery.Telegram.Token,
			HTTPTimeout: config.DurationOr(cfg.Delivery.Timeout, 0),
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram delivery: %w", err)
		}
		return s, nil
	default:
		return delivery.LogSender{Log: log.With(logx.String("comp", "delivery"))}, nil
	}
}

func (a *App) router(cfg *config.Config) http.Handler {
	rt := httpapi.Routes{
		API:    a.api,
		Health: a.health,
		Token:  strings.TrimSpace(cfg.HTTP.Token),
		Pprof:  cfg.HTTP.Pprof,

		CORSOrigins: cfg.HTTP.CORSOrigins,
	}
	if a.metrics != nil {
		rt.Metrics = a.metrics.Handler()
	}
	return httpapi.NewRouter(rt, a.log.With(logx.String("comp", "http")))
}

// Done is closed when the app context ends (fatal error or Stop).
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

// Start runs the engine, restores persisted reminders, then opens the HTTP
// surface and the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := mapTaskEngineConfig(cfg)
		return err
	})

	if a.metrics != nil {
		a.sup.Go("metrics.consume", func(c context.Context) error {
			return a.metrics.Consume(c, a.bus)
		})
	}
	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	}
	a.sched.Start(a.sup.Context())

	if _, err := a.service.Restore(ctx); err != nil {
		return err
	}

	a.http.Start(a.sup.Context())

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
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a reloaded config into the live components. Sections
// that cannot change at runtime are reported.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(next))
	a.dispatch.Apply(mapDispatchConfig(next))

	// Engine before scheduler so firings never land on a stopped queue.
	if engCfg, err := mapTaskEngineConfig(next); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, engCfg)
	}
	a.sched.Apply(mapSchedulerConfig(next))

	a.handler.Store(a.router(next))
	a.http.Reconfigure(ctx, mapHTTPConfig(next))

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart to apply",
			logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in dependency order, bounding each step so
// one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.step(ctx, "http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "storage", 2*time.Second, func(c context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs fn with a timeout that never extends the caller's deadline. A
// step that overruns is logged and left to finish in the background.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
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
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}

// swapHandler lets a config reload replace the router without restarting
// the listener.
type swapHandler struct {
	h atomic.Pointer[http.Handler]
}

func (s *swapHandler) Store(h http.Handler) { s.h.Store(&h) }

func (s *swapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := s.h.Load()
	if p == nil {
		http.NotFound(w, r)
		return
	}
	(*p).ServeHTTP(w, r)
}
