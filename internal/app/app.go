// Package app builds the translator's object graph once at startup and owns
// its lifecycle.
package app

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/redis/go-redis/v9"

	"slacktranslator/internal/config"
	"slacktranslator/internal/eventbus"
	redisx "slacktranslator/internal/infra/redis"
	"slacktranslator/internal/job"
	"slacktranslator/internal/memo"
	"slacktranslator/internal/observability/pprof"
	rtsup "slacktranslator/internal/runtime/supervisor"
	"slacktranslator/internal/slack"
	"slacktranslator/internal/storage"
	"slacktranslator/internal/translate"
	"slacktranslator/internal/transport/web"
	"slacktranslator/internal/worker"
	logx "slacktranslator/pkg/logx"
)

type App struct {
	settings *config.Settings
	cfgm     *config.Manager
	sup      *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	tally *eventbus.Counter
	store storage.Store

	rdb   *redis.Client
	cache *redisx.Cache
	queue *redisx.Queue
	memo  *memo.Memoizer

	breaker    *translate.Breaker
	exec       *job.Executor
	history    *job.History
	dispatcher *job.Dispatcher

	pool   *worker.Pool
	reaper *worker.Reaper
	web    *web.Server
	pprof  *pprof.Service
}

// New reads the environment and the optional tunables file and wires every
// component. Any *config.Error returned here is fatal.
func New(ctx context.Context, cfgPath string) (*App, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	engine, err := translate.ParseEngine(settings.Engine)
	if err != nil {
		return nil, err
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The chat sink needs a logger itself, so it is attached after the
	// logging service exists.
	logSvc, root := logx.New(mapLoggingConfig(cfg, settings.Debug), nil)
	log := root.With(logx.String("comp", "app"))

	trOpts, slackOpts, err := mapOutbound(cfg, settings)
	if err != nil {
		return nil, err
	}
	diag := slack.NewDiagnostics(slackOpts, root.With(logx.String("comp", "diagnostics")))
	if settings.SlackAPIToken != "" {
		logSvc.SetSink(diag)
	} else {
		log.Warn("SLACK_API_TOKEN is empty; profile lookups and diagnostics will fail")
	}
	if settings.SlackWebhookURL == "" {
		log.Warn("SLACK_WEBHOOK_URL is empty; deliveries will fail")
	}

	provider, err := translate.New(engine, trOpts)
	if err != nil {
		return nil, err
	}

	rdb, err := redisx.Open(ctx, settings.RedisURL)
	if err != nil {
		return nil, err
	}
	prefix := cfg.Cache.Prefix
	cache := redisx.NewCache(rdb, root.With(logx.String("comp", "cache")))
	queue := redisx.NewQueue(rdb, prefix, root.With(logx.String("comp", "queue")))
	m := memo.New(cache, prefix, root.With(logx.String("comp", "memo")))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = rdb.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "journal")))
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		store = st
		log.Info("journal enabled", logx.String("driver", sc.Driver))
	}

	profiles := slack.NewProfileResolver(slackOpts, m, root.With(logx.String("comp", "profile")))
	webhook := slack.NewWebhook(slackOpts, root.With(logx.String("comp", "webhook")))

	breaker := translate.Guarded(provider, trOpts.Breaker)
	exec := job.NewExecutor(translate.Cached(breaker, m), profiles, webhook, diag, bus, root.With(logx.String("comp", "executor")))
	history := job.NewHistory(cfg.Worker.HistorySize)
	exec.Observe(history.Observe)
	if store != nil {
		exec.Observe(job.JournalObserver(store, root.With(logx.String("comp", "journal"))))
	}

	runner := job.NewRunner(settings.Async, exec, queue)
	dispatcher := job.NewDispatcher(runner, diag, bus, root.With(logx.String("comp", "dispatcher")))

	a := &App{
		settings:   settings,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		tally:      eventbus.NewCounter(),
		store:      store,
		rdb:        rdb,
		cache:      cache,
		queue:      queue,
		memo:       m,
		breaker:    breaker,
		exec:       exec,
		history:    history,
		dispatcher: dispatcher,
	}

	if settings.Async {
		wc, visibility, err := mapWorkerConfig(cfg)
		if err != nil {
			a.closeResources()
			return nil, err
		}
		a.pool = worker.NewPool(queue, exec, diag, wc, root.With(logx.String("comp", "worker")))
		a.reaper = worker.NewReaper(queue, cfg.Worker.ReapSchedule, visibility, bus, root.With(logx.String("comp", "reaper")))
	}

	hc, err := mapHTTPConfig(cfg, settings)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.web = web.New(hc, web.Deps{
		Dispatcher: dispatcher,
		Cache:      cache,
		Debug:      a.debugSections(),
	}, root.With(logx.String("comp", "http")))

	a.pprof = pprof.New(mapPprofConfig(cfg, settings.Debug), root.With(logx.String("comp", "pprof")))

	log.Info("app configured", logx.String("settings", settings.String()), logx.String("engine", provider.Name()))
	return a, nil
}

func (a *App) debugSections() map[string]web.Section {
	sections := map[string]web.Section{
		"mode": func(context.Context) (any, error) { return a.dispatcher.Mode(), nil },
		"history": func(context.Context) (any, error) {
			return a.history.Snapshot(), nil
		},
		"memo":    func(context.Context) (any, error) { return a.memo.Stats(), nil },
		"events":  func(context.Context) (any, error) { return a.tally.Snapshot(), nil },
		"breaker": func(context.Context) (any, error) { return a.breaker.Stats(), nil },
		"tasks": func(context.Context) (any, error) {
			if a.sup == nil {
				return nil, nil
			}
			return a.sup.Snapshot(), nil
		},
		"queue": func(ctx context.Context) (any, error) {
			return a.queue.Stats(ctx)
		},
	}
	if a.pool != nil {
		sections["workers"] = func(context.Context) (any, error) { return a.pool.Stats(), nil }
	}
	if a.store != nil {
		sections["journal"] = func(ctx context.Context) (any, error) {
			return a.store.Recent(ctx, 50)
		}
	}
	return sections
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := a.mapAll(cfg); err != nil {
			return err
		}
		return nil
	})

	if a.pool != nil {
		a.pool.Start(a.sup.Context())
	}
	if a.reaper != nil {
		if err := a.reaper.Start(a.sup.Context()); err != nil {
			return config.Errorf("worker.reap_schedule", "%v", err)
		}
	}
	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	a.sup.Go("http.serve", a.web.Run)

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
				a.tally.Record(e)
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
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
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	if a.cfgm.Path() != "" {
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started", logx.String("mode", a.dispatcher.Mode()))
	return nil
}

// mapAll checks that cfg maps onto every component, without applying it.
func (a *App) mapAll(cfg *config.Config) (logx.Config, error) {
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return logx.Config{}, err
	}
	if _, _, err := mapWorkerConfig(cfg); err != nil {
		return logx.Config{}, err
	}
	if _, err := mapHTTPConfig(cfg, a.settings); err != nil {
		return logx.Config{}, err
	}
	if _, _, err := mapOutbound(cfg, a.settings); err != nil {
		return logx.Config{}, err
	}
	return mapLoggingConfig(cfg, a.settings.Debug), nil
}

// applyConfig applies the logging section live. Every other section is read
// once at startup.
func (a *App) applyConfig(prev, next *config.Config) {
	lc, err := a.mapAll(next)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}
	a.logs.Apply(lc)

	changed := changedSections(prev, next)
	var restart []string
	for _, s := range changed {
		if s != "logging" {
			restart = append(restart, s)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	if len(changed) > 0 {
		a.log.Info("config reloaded", logx.String("changed", strings.Join(changed, ",")))
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

func changedSections(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var out []string
	pairs := []struct {
		name string
		a, b any
	}{
		{"logging", prev.Logging, next.Logging},
		{"http", prev.HTTP, next.HTTP},
		{"worker", prev.Worker, next.Worker},
		{"cache", prev.Cache, next.Cache},
		{"outbound", prev.Outbound, next.Outbound},
		{"journal", prev.Journal, next.Journal},
		{"pprof", prev.Pprof, next.Pprof},
	}
	for _, p := range pairs {
		if !reflect.DeepEqual(p.a, p.b) {
			out = append(out, p.name)
		}
	}
	return out
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel first so the ingress stops accepting and consumers stop claiming.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	if a.reaper != nil {
		step("reaper", 5*time.Second, func(context.Context) error { a.reaper.Stop(); return nil })
	}
	if a.pool != nil {
		// Pool.Stop bounds itself with worker.stop_timeout.
		step("workers", time.Hour, a.pool.Stop)
	}
	step("pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("supervisor", 20*time.Second, a.sup.Wait)

	a.closeResources()
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
