package engine

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"remindd/internal/eventbus"
	"remindd/internal/model"
	"remindd/internal/store"
	logx "remindd/pkg/logx"
)

// New builds an engine. store and bus may be nil; a nil store degrades to
// "no dedup across restarts" per the error design, a nil presenter means
// reminders are only observable on the bus.
func New(cfg Config, st store.Store, pres Presenter, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		log:        log,
		bus:        bus,
		store:      st,
		pres:       pres,
		cfg:        cfg.withDefaults(),
		cmds:       make(chan command, 16),
		dispatched: map[string]struct{}{},
		persisted:  map[string]struct{}{},
		storeErrs:  rate.NewLimiter(rate.Every(10*time.Second), 3),
	}
}

// Apply updates the engine config. The scan ticker is retuned by the run
// loop; the new display timeout affects the next promotion.
func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
	e.post(command{kind: cmdApply})
}

func (e *Engine) config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Start rehydrates pending reminders from the store, runs one immediate
// due pass, and launches the actor loop. Calling Start on a running engine
// is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.loopDone = make(chan struct{})
	e.runCtx, e.runCancel = context.WithCancel(ctx)
	runCtx := e.runCtx
	stopCh := e.stopCh
	done := e.loopDone
	e.mu.Unlock()

	now := time.Now()
	e.cleanupStore(runCtx, now)
	e.rehydrate(runCtx, now)
	e.duePass(runCtx, now)

	go func() {
		defer close(done)
		e.run(runCtx, stopCh)
	}()
	e.log.Info("engine started",
		logx.Duration("scan_interval", e.config().ScanInterval),
		logx.Duration("display_timeout", e.config().DisplayTimeout))
}

// Stop halts scanning and tears down both timers. In-flight store calls
// complete against a cancelled context and their results are discarded.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopCh := e.stopCh
	cancel := e.runCancel
	done := e.loopDone
	e.stopCh = nil
	e.runCancel = nil
	e.runCtx = nil
	e.loopDone = nil
	e.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	select {
	case <-done:
	case <-ctx.Done():
	}

	e.smu.Lock()
	if e.dismiss != nil {
		e.dismiss.Stop()
		e.dismiss = nil
	}
	e.smu.Unlock()
	e.log.Info("engine stopped")
}

// OnEventsUpdated hands the engine a fresh event list. The list replaces
// the previous one; a missed pass and a due pass run against it. Safe to
// call from any goroutine; never blocks.
func (e *Engine) OnEventsUpdated(events []model.Event) {
	list := append([]model.Event(nil), events...)
	e.post(command{kind: cmdEvents, events: list})
}

// Tick requests an out-of-band due pass.
func (e *Engine) Tick() {
	e.post(command{kind: cmdTick})
}

// DismissActive clears the currently displayed reminder, if any, and
// promotes the next waiting one.
func (e *Engine) DismissActive() {
	e.post(command{kind: cmdDismiss})
}

func (e *Engine) post(c command) {
	select {
	case e.cmds <- c:
	default:
		// Queue full: drop one stale command so the newest state wins.
		select {
		case <-e.cmds:
		default:
		}
		select {
		case e.cmds <- c:
		default:
			e.log.Warn("engine command dropped", logx.Int("queue_cap", cap(e.cmds)))
		}
	}
}

// Snapshot returns a copy of the engine's current state.
func (e *Engine) Snapshot() Snapshot {
	e.smu.Lock()
	defer e.smu.Unlock()
	var act *Active
	if e.active != nil {
		cp := *e.active
		act = &cp
	}
	return Snapshot{
		Events:     len(e.events),
		Queued:     len(e.queue),
		Dispatched: len(e.dispatched),
		Active:     act,
	}
}

func (e *Engine) run(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(e.config().ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			e.cleanupStore(ctx, now)
			e.duePass(ctx, now)
		case <-e.dismissC():
			e.clearActive(ctx, time.Now(), "timeout")
		case cmd := <-e.cmds:
			now := time.Now()
			switch cmd.kind {
			case cmdEvents:
				e.setEvents(ctx, cmd.events, now)
			case cmdTick:
				e.duePass(ctx, now)
			case cmdDismiss:
				e.clearActive(ctx, now, "dismissed")
			case cmdApply:
				ticker.Reset(e.config().ScanInterval)
			}
		}
	}
}

func (e *Engine) dismissC() <-chan time.Time {
	e.smu.Lock()
	defer e.smu.Unlock()
	if e.dismiss == nil {
		return nil
	}
	return e.dismiss.C
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

// ---- store access (degrading) ----
//
// Every store failure degrades to "record absent / operation no-op": the
// engine keeps scanning with weaker dedup guarantees instead of crashing.

func (e *Engine) saveRecord(ctx context.Context, rec store.Record) {
	if e.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	if err := e.store.Save(sctx, rec); err != nil {
		e.storeDegraded("save", err)
	}
}

func (e *Engine) isDismissed(ctx context.Context, id string) bool {
	if e.store == nil {
		return false
	}
	sctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	dismissed, err := e.store.IsDismissed(sctx, id)
	if err != nil {
		e.storeDegraded("exists", err)
		return false
	}
	return dismissed
}

func (e *Engine) markShown(ctx context.Context, id string) {
	if e.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	if err := e.store.MarkShown(sctx, id); err != nil {
		e.storeDegraded("mark_shown", err)
	}
}

func (e *Engine) markDismissed(ctx context.Context, id string) {
	if e.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	if err := e.store.MarkDismissed(sctx, id); err != nil {
		e.storeDegraded("mark_dismissed", err)
	}
}

func (e *Engine) cleanupStore(ctx context.Context, now time.Time) {
	if e.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()
	n, err := e.store.Cleanup(sctx, now)
	if err != nil {
		e.storeDegraded("cleanup", err)
		return
	}
	if n > 0 {
		e.log.Info("expired reminders purged", logx.Int("count", n))
	}
}

func (e *Engine) storeDegraded(op string, err error) {
	if e.storeErrs.Allow() {
		e.log.Warn("reminder store unavailable; continuing without dedup",
			logx.String("op", op), logx.Err(err))
	}
}
