package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskloop/internal/config"
	"taskloop/internal/observability/diag"
	"taskloop/internal/runtime/supervisor"
	"taskloop/pkg/logx"
	"taskloop/pkg/sched"
	"taskloop/pkg/sched/async"
	"taskloop/pkg/sched/eventloop"
	"taskloop/pkg/systemd"
)

// Engine is a scheduler whose loop the app drives and stops.
type Engine interface {
	sched.Loop
	TryStop() bool
}

type engine struct {
	name string
	kind string
	Engine
	// s is the concrete scheduler; jobs type-switch on it.
	s        sched.Scheduler
	snapshot func() any
	stats    func() []logx.Field
}

// App runs every configured scheduler on its own supervised goroutine.
type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service
	sup  *supervisor.Supervisor

	engines []*engine
	stop    sync.Once
}

// New loads and validates the config file at cfgPath. The file is watched
// once the app starts; logging changes apply live.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return build(cfg, cfgm)
}

// NewFromConfig builds an app from an in-memory config without file watching.
func NewFromConfig(cfg *config.Config) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return build(cfg, nil)
}

func build(cfg *config.Config, cfgm *config.Manager) (*App, error) {
	logs, log := logx.New(cfg.Logging.Logx())
	a := &App{cfgm: cfgm, cfg: cfg, log: log.With(logx.String("comp", "app")), logs: logs}

	for _, sc := range cfg.Schedulers {
		e, err := newEngine(sc, log)
		if err != nil {
			_ = logs.Close()
			return nil, err
		}
		for _, jc := range sc.Jobs {
			jlog := log.With(logx.String("sched", sc.Name), logx.String("job", jc.Name), logx.String("kind", jc.Kind))
			if err := seed(e.s, jc, jlog); err != nil {
				_ = logs.Close()
				return nil, fmt.Errorf("scheduler %s: %w", sc.Name, err)
			}
		}
		a.engines = append(a.engines, e)
	}
	return a, nil
}

func newEngine(sc config.SchedulerConfig, log logx.Logger) (*engine, error) {
	late, err := config.ParseDurationOrDefault("late_threshold", sc.LateThreshold, time.Second)
	if err != nil {
		return nil, fmt.Errorf("scheduler %s: %w", sc.Name, err)
	}

	switch kind := sc.EngineOrDefault(); kind {
	case config.EngineEventLoop:
		s := eventloop.New(sc.Name, eventloop.WithLogger(log), eventloop.WithLateThreshold(late))
		return &engine{name: sc.Name, kind: kind, Engine: s, s: s,
			snapshot: func() any { return s.Snapshot() },
			stats: func() []logx.Field {
				snap := s.Snapshot()
				return []logx.Field{logx.Uint64("executed", snap.Executed), logx.Uint64("promoted", snap.Promoted)}
			},
		}, nil
	case config.EngineAsync:
		s := async.New(sc.Name, async.WithLogger(log), async.WithLateThreshold(late))
		return &engine{name: sc.Name, kind: kind, Engine: s, s: s,
			snapshot: func() any { return s.Snapshot() },
			stats: func() []logx.Field {
				return []logx.Field{logx.Uint64("executed", s.Snapshot().Executed)}
			},
		}, nil
	default:
		return nil, fmt.Errorf("scheduler %s: unknown engine %q", sc.Name, kind)
	}
}

func (a *App) Logger() logx.Logger { return a.log }

// Names lists the configured schedulers in config order.
func (a *App) Names() []string {
	out := make([]string, 0, len(a.engines))
	for _, e := range a.engines {
		out = append(out, e.name)
	}
	return out
}

// Schedulers reports every engine with its current snapshot.
func (a *App) Schedulers() []diag.Scheduler {
	out := make([]diag.Scheduler, 0, len(a.engines))
	for _, e := range a.engines {
		out = append(out, diag.Scheduler{Name: e.name, Engine: e.kind, Snapshot: e.snapshot()})
	}
	return out
}

// Start launches every engine loop. The app shuts down when ctx is done,
// when any loop panics, or when every loop has stopped on its own.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	for _, e := range a.engines {
		e := e
		a.sup.Go("sched."+e.name, func(context.Context) error {
			e.StartLoop()
			a.log.Info("scheduler exited", append([]logx.Field{logx.String("sched", e.name), logx.String("engine", e.kind)}, e.stats()...)...)
			return nil
		})
	}

	a.sup.Go0("engines.wait", func(ctx context.Context) {
		for _, e := range a.engines {
			select {
			case <-ctx.Done():
				return
			case <-e.Done():
			}
		}
		a.log.Info("all schedulers stopped")
		a.sup.Cancel()
	})

	a.sup.Go0("engines.shutdown", func(ctx context.Context) {
		<-ctx.Done()
		a.stopEngines()
	})

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		sub := a.cfgm.Subscribe(8)
		a.sup.Go("config.watch", a.cfgm.Watch)
		a.sup.Go0("config.reload", func(ctx context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(ctx, sub)
		})
	}

	if dc := a.cfg.Diag; dc.Enabled {
		srv := diag.New(dc.Server(), diag.Sources{
			Schedulers: a.Schedulers,
			Supervisor: a.sup.Snapshot,
		}, a.log.With(logx.String("comp", "diag")))
		a.sup.Go("diag.http", srv.Serve)
	}

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}
	a.status(fmt.Sprintf("running %d schedulers", len(a.engines)))
	a.log.Info("app started", logx.Int("schedulers", len(a.engines)))
	return nil
}

// Wait blocks until the app has shut down or ctx is done. It returns the
// first goroutine failure, such as a task panic.
func (a *App) Wait(ctx context.Context) error {
	if a.sup == nil {
		return errors.New("app not started")
	}
	return a.sup.Wait(ctx)
}

// Stop requests every engine to stop and waits for the loops to return.
func (a *App) Stop(ctx context.Context) error {
	defer func() { _ = a.logs.Close() }()
	if a.sup == nil {
		a.stopEngines()
		return nil
	}
	return a.sup.Stop(ctx)
}

func (a *App) stopEngines() {
	a.stop.Do(func() {
		if _, err := systemd.Stopping(); err != nil {
			a.log.Debug("systemd notify failed", logx.Err(err))
		}
		n := 0
		for _, e := range a.engines {
			if e.TryStop() {
				n++
				a.log.Debug("scheduler stop requested", logx.String("sched", e.name))
			}
		}
		a.status(fmt.Sprintf("stopping %d schedulers", n))
	})
}

func (a *App) status(msg string) {
	if _, err := systemd.Status(msg); err != nil {
		a.log.Debug("systemd status failed", logx.Err(err))
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			a.apply(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) apply(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
	for _, s := range sections {
		switch s {
		case "logging":
			if err := a.logs.Apply(newCfg.Logging.Logx()); err != nil {
				a.log.Warn("log file unavailable; continuing on console", logx.Err(err))
			}
		case "schedulers":
			a.log.Warn("scheduler config changed; restart required for changes to take effect")
		}
	}
}
