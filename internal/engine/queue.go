package engine

import (
	"context"
	"time"

	logx "remindd/pkg/logx"
)

// The delivery queue is a two-state machine: Idle (no active reminder)
// and Showing (exactly one active, auto-dismiss timer running). The
// active slot never holds more than one reminder; everything else waits
// in arrival order.

// enqueueLocked appends a reminder and promotes immediately when the
// display slot is idle.
func (e *Engine) enqueueLocked(ctx context.Context, n Active, now time.Time) {
	e.queue = append(e.queue, n)
	e.publish("reminder.queued", ReminderEvent{
		ID: n.ID, Title: n.Event.Title, Tier: n.Tier.Label, At: now,
	})
	e.promoteLocked(ctx, now)
}

// promoteLocked moves the queue head into the active slot, persists the
// shown flag, hands the reminder to the presenter, and arms the
// auto-dismiss timer. No-op while a reminder is already showing.
func (e *Engine) promoteLocked(ctx context.Context, now time.Time) {
	if e.active != nil || len(e.queue) == 0 {
		return
	}
	n := e.queue[0]
	e.queue = e.queue[1:]
	e.active = &n

	e.markShown(ctx, n.ID)
	if e.pres != nil {
		if err := e.pres.Show(ctx, n, len(e.queue)); err != nil {
			e.log.Warn("presenter show failed", logx.String("id", n.ID), logx.Err(err))
		}
	}

	if e.dismiss != nil {
		e.dismiss.Stop()
	}
	e.dismiss = time.NewTimer(e.config().DisplayTimeout)

	e.publish("reminder.active", ReminderEvent{
		ID: n.ID, Title: n.Event.Title, Tier: n.Tier.Label, Waiting: len(e.queue), At: now,
	})
	e.log.Debug("reminder active",
		logx.String("id", n.ID),
		logx.String("tier", n.Tier.Label),
		logx.Int("waiting", len(e.queue)))
}

func (e *Engine) clearActive(ctx context.Context, now time.Time, reason string) {
	e.smu.Lock()
	defer e.smu.Unlock()
	e.clearActiveLocked(ctx, now, reason)
}

// clearActiveLocked persists the dismissal, empties the slot, cancels the
// timer, and immediately re-evaluates the idle transition so the next
// waiting reminder surfaces without delay.
func (e *Engine) clearActiveLocked(ctx context.Context, now time.Time, reason string) {
	if e.active == nil {
		return
	}
	n := *e.active
	if e.dismiss != nil {
		e.dismiss.Stop()
		e.dismiss = nil
	}
	e.active = nil

	e.markDismissed(ctx, n.ID)
	if e.pres != nil {
		if err := e.pres.Clear(ctx, n.ID); err != nil {
			e.log.Warn("presenter clear failed", logx.String("id", n.ID), logx.Err(err))
		}
	}

	e.publish("reminder.dismissed", ReminderEvent{
		ID: n.ID, Title: n.Event.Title, Tier: n.Tier.Label, Reason: reason, At: now,
	})
	e.log.Debug("reminder dismissed", logx.String("id", n.ID), logx.String("reason", reason))

	e.promoteLocked(ctx, now)
}
