package engine

import (
	"context"
	"time"

	logx "remindd/pkg/logx"
)

// rehydrate seeds the queue from store records that were never dismissed,
// before any live scan runs. Runs once per Start.
func (e *Engine) rehydrate(ctx context.Context, now time.Time) {
	if e.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	recs, err := e.store.Pending(sctx)
	cancel()
	if err != nil {
		e.storeDegraded("pending", err)
		return
	}
	if len(recs) == 0 {
		return
	}

	e.smu.Lock()
	defer e.smu.Unlock()

	restored := make([]Active, 0, len(recs))
	for _, r := range recs {
		n := Active{
			ID:    r.ID,
			Event: r.Event(),
			Tier: Tier{
				Offset: time.Duration(r.TierOffsetMS) * time.Millisecond,
				Label:  r.TierLabel,
			},
			CreatedAt: now,
		}
		restored = append(restored, n)
		e.dispatched[r.ID] = struct{}{}
		e.persisted[r.ID] = struct{}{}
		// Marked shown at load time, before actual display, so a second
		// rehydration in the same boundary does not re-announce it. The
		// dismissed flag stays false until display-and-clear.
		e.markShown(ctx, r.ID)
	}

	// Restored reminders go ahead of anything a live scan will add, which
	// preserves rough temporal priority.
	e.queue = append(restored, e.queue...)
	e.log.Info("rehydrated pending reminders", logx.Int("count", len(restored)))

	e.promoteLocked(ctx, now)
}
