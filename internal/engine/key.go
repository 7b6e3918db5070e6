package engine

import (
	"strconv"
	"time"

	"remindd/internal/model"
	"remindd/internal/store"
)

// Key derives the deterministic notification id for an event+tier pair.
// The same pair always yields the same key, which makes store upserts
// idempotent: re-saving overwrites, never duplicates.
func Key(eventID string, tier Tier) string {
	return eventID + "-" + strconv.FormatInt(tier.Offset.Milliseconds(), 10)
}

// scheduledAt is the moment a tier's reminder fires for an event.
func scheduledAt(ev model.Event, tier Tier) time.Time {
	return ev.Start.Add(-tier.Offset)
}

// newRecord projects an event+tier into a persistable reminder record.
func newRecord(ev model.Event, tier Tier, marker string, now time.Time) store.Record {
	return store.Record{
		ID:           Key(ev.ID, tier),
		EventID:      ev.ID,
		Title:        ev.Title,
		Description:  ev.Description,
		Location:     ev.Location,
		Start:        ev.Start,
		End:          ev.End,
		Important:    Important(ev, marker),
		TierLabel:    tier.Label,
		TierOffsetMS: tier.Offset.Milliseconds(),
		ScheduledAt:  scheduledAt(ev, tier),
		CreatedAt:    now,
	}
}
