package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"remindd/internal/config"
	"remindd/internal/engine"
	"remindd/internal/eventbus"
	"remindd/internal/present"
	"remindd/internal/source"
	"remindd/internal/store"
	logx "remindd/pkg/logx"
)

// App wires the config manager, logging service, store, engine, calendar
// source and presenter together and owns their lifecycles.
type App struct {
	cfgPath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	st   store.Store

	eng *engine.Engine
	src *source.Service
	tg  *present.Telegram // nil when delivery is log-only

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Store (optional).
	var st store.Store
	if cfg.Storage != nil {
		sc, err := mapStorageConfig(cfg.Storage)
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		st, err = store.Open(sc, log.With(logx.String("comp", "store")))
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		if st != nil {
			log.Info("reminder store enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		st:      st,
	}

	// Presenter selection: Telegram when configured and enabled, otherwise
	// the structured log.
	var pres engine.Presenter
	if tg := cfg.Telegram; tg != nil && tg.Enabled {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", tg.PollTimeout, 10*time.Second)
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		tgp, err := present.NewTelegram(present.TelegramConfig{
			Token:       tg.Token,
			ChatID:      tg.ChatID,
			ThreadID:    tg.ThreadID,
			PollTimeout: pollTimeout,
		}, func() { a.eng.DismissActive() }, log.With(logx.String("comp", "telegram")))
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		a.tg = tgp
		pres = tgp
	} else {
		pres = present.NewLog(log.With(logx.String("comp", "present")))
	}

	a.eng = engine.New(engCfg, st, pres, bus, log.With(logx.String("comp", "engine")))

	srcCfg, err := mapSourceConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	a.src = source.NewService(srcCfg, a.eng.OnEventsUpdated, log.With(logx.String("comp", "source")))

	return a, nil
}

// Engine exposes the reminder engine for status surfaces.
func (a *App) Engine() *engine.Engine { return a.eng }

func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.running = true
	a.cancel = cancel
	a.runMu.Unlock()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if a.tg != nil {
		a.tg.Start(runCtx)
	}
	a.eng.Start(runCtx)
	if err := a.src.Start(runCtx); err != nil {
		a.eng.Stop(ctx)
		if a.tg != nil {
			a.tg.Stop(ctx)
		}
		cancel()
		return err
	}

	// Debug visibility into reminder lifecycle events.
	events, unsub := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	}()

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("app started")
	return nil
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
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			for _, s := range sections {
				switch s {
				case "storage", "telegram":
					a.log.Warn("config section changed; restart required for changes to take effect",
						logx.String("section", s))
				}
			}

			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})

			if engCfg, err := mapEngineConfig(newCfg); err != nil {
				a.log.Warn("invalid engine config; keeping previous", logx.Err(err))
			} else {
				a.eng.Apply(engCfg)
			}

			if srcCfg, err := mapSourceConfig(newCfg); err != nil {
				a.log.Warn("invalid calendar config; keeping previous", logx.Err(err))
			} else if err := a.src.Apply(srcCfg); err != nil {
				a.log.Warn("calendar config apply failed; keeping previous", logx.Err(err))
			}

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	cancel := a.cancel
	a.cancel = nil
	a.runMu.Unlock()

	a.log.Info("stopping")
	cancel()

	// Bounded shutdown steps so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var stepCancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, stepCancel = context.WithTimeout(ctx, max)
			defer stepCancel()
		}

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
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("source", 2*time.Second, func(c context.Context) error { a.src.Stop(c); return nil })
	step("engine", 2*time.Second, func(c context.Context) error { a.eng.Stop(c); return nil })
	if a.tg != nil {
		step("telegram", 2*time.Second, func(c context.Context) error { a.tg.Stop(c); return nil })
	}
	step("store", time.Second, func(context.Context) error {
		if a.st != nil {
			return a.st.Close()
		}
		return nil
	})
	step("background", 2*time.Second, func(c context.Context) error {
		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	scan, err := config.ParseDurationField("engine.scan_interval", cfg.Engine.ScanInterval)
	if err != nil {
		return engine.Config{}, err
	}
	display, err := config.ParseDurationField("engine.display_timeout", cfg.Engine.DisplayTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		ScanInterval:     scan,
		DisplayTimeout:   display,
		ImportanceMarker: strings.TrimSpace(cfg.Engine.ImportanceMarker),
	}, nil
}

func mapSourceConfig(cfg *config.Config) (source.Config, error) {
	timeout, err := config.ParseDurationField("calendar.request_timeout", cfg.Calendar.RequestTimeout)
	if err != nil {
		return source.Config{}, err
	}
	window, err := config.ParseDurationField("calendar.window", cfg.Calendar.Window)
	if err != nil {
		return source.Config{}, err
	}
	return source.Config{
		URL:            strings.TrimSpace(cfg.Calendar.URL),
		Refresh:        strings.TrimSpace(cfg.Calendar.Refresh),
		CacheDir:       strings.TrimSpace(cfg.Calendar.CacheDir),
		RequestTimeout: timeout,
		Window:         window,
	}, nil
}

func mapStorageConfig(sc *config.StorageConfig) (store.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, nil
}
