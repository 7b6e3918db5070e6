package engine

import (
	"context"
	"time"

	"remindd/internal/model"
	logx "remindd/pkg/logx"
)

type timing int

const (
	timingFuture timing = iota
	timingDue
	timingMissed
)

// classify buckets a reminder by delta = now - scheduledTime.
// Boundaries are inclusive on the due side: delta of exactly zero and
// exactly lateWindow are both due.
func classify(delta time.Duration) timing {
	switch {
	case delta < 0:
		return timingFuture
	case delta <= lateWindow:
		return timingDue
	default:
		return timingMissed
	}
}

// setEvents replaces the current event list and runs the one-time missed
// pass plus an immediate due pass against the fresh delivery.
func (e *Engine) setEvents(ctx context.Context, events []model.Event, now time.Time) {
	e.smu.Lock()
	defer e.smu.Unlock()
	e.events = events
	e.publish("events.updated", len(events))
	e.missedPassLocked(ctx, now)
	e.duePassLocked(ctx, now)
}

func (e *Engine) duePass(ctx context.Context, now time.Time) {
	e.smu.Lock()
	defer e.smu.Unlock()
	e.duePassLocked(ctx, now)
}

// missedPassLocked promotes at most one reminder per event: the missed
// tier with the latest fire time. Older missed tiers are discarded so a
// process that was closed across many reminder boundaries doesn't storm
// the user on restart.
func (e *Engine) missedPassLocked(ctx context.Context, now time.Time) {
	marker := e.config().ImportanceMarker
	seen := make(map[string]struct{}, len(e.events))
	promoted := 0
	for _, ev := range e.events {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}

		tier, ok := latestMissed(ev, marker, now)
		if !ok {
			continue
		}
		key := Key(ev.ID, tier)
		if _, done := e.dispatched[key]; done {
			continue
		}
		// Dismissed on a previous run: stays dismissed forever.
		if e.isDismissed(ctx, key) {
			continue
		}

		e.saveRecord(ctx, newRecord(ev, tier, marker, now))
		e.persisted[key] = struct{}{}
		e.dispatched[key] = struct{}{}
		e.enqueueLocked(ctx, Active{ID: key, Event: ev, Tier: tier, CreatedAt: now}, now)
		promoted++
	}
	if promoted > 0 {
		e.log.Info("missed reminders promoted", logx.Int("count", promoted))
	}
}

// duePassLocked walks the full event x tier cross-product and dispatches
// everything inside the due window. Missed tiers are skipped here; they
// are exclusively the missed pass's responsibility, and handling them in
// both places would double-deliver.
func (e *Engine) duePassLocked(ctx context.Context, now time.Time) {
	marker := e.config().ImportanceMarker
	due := 0
	for _, ev := range e.events {
		for _, tier := range TiersFor(ev, marker) {
			key := Key(ev.ID, tier)
			at := scheduledAt(ev, tier)
			switch classify(now.Sub(at)) {
			case timingMissed:
				// see missedPassLocked
			case timingDue:
				if _, done := e.dispatched[key]; done {
					continue
				}
				if e.queuedOrActiveLocked(key) {
					continue
				}
				// Dismissed on a previous run: stays dismissed forever, and
				// the save below must not resurrect the record.
				if e.isDismissed(ctx, key) {
					continue
				}
				e.dispatched[key] = struct{}{}
				e.saveRecord(ctx, newRecord(ev, tier, marker, now))
				e.persisted[key] = struct{}{}
				e.enqueueLocked(ctx, Active{ID: key, Event: ev, Tier: tier, CreatedAt: now}, now)
				due++
			case timingFuture:
				// Crash-recovery write: persist reminders further out than
				// the late window once per session, so a restart before the
				// fire time can rehydrate them.
				if at.Sub(now) <= lateWindow {
					continue
				}
				if _, done := e.dispatched[key]; done {
					continue
				}
				if _, ok := e.persisted[key]; ok {
					continue
				}
				e.saveRecord(ctx, newRecord(ev, tier, marker, now))
				e.persisted[key] = struct{}{}
			}
		}
	}
	e.publish("scan.completed", ScanEvent{Due: due, At: now})
	if due > 0 {
		e.log.Debug("due reminders dispatched", logx.Int("count", due))
	}
}

func (e *Engine) queuedOrActiveLocked(key string) bool {
	if e.active != nil && e.active.ID == key {
		return true
	}
	for i := range e.queue {
		if e.queue[i].ID == key {
			return true
		}
	}
	return false
}

// latestMissed picks the single missed tier closest to now for an event.
func latestMissed(ev model.Event, marker string, now time.Time) (Tier, bool) {
	var best Tier
	var bestAt time.Time
	found := false
	for _, tier := range TiersFor(ev, marker) {
		at := scheduledAt(ev, tier)
		if classify(now.Sub(at)) != timingMissed {
			continue
		}
		if !found || at.After(bestAt) {
			best, bestAt, found = tier, at, true
		}
	}
	return best, found
}
