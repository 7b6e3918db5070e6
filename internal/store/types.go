package store

import (
	"errors"
	"time"

	"remindd/internal/model"
)

var ErrDisabled = errors.New("store disabled")

// Retention window for stored reminders and the minimum gap between
// cleanup sweeps. Records are purged once CreatedAt is older than the
// retention window.
const (
	Retention    = 30 * 24 * time.Hour
	CleanupEvery = 24 * time.Hour
)

// Config configures the reminder store.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + jsonl journal)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the store is disabled and the engine runs
// with degraded dedup guarantees (duplicates possible across restarts).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is a persisted reminder. The id is the notification key
// (eventID + "-" + offset millis); event fields are denormalized so the
// reminder can be rebuilt without the calendar source.
type Record struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Important   bool      `json:"important"`

	TierLabel    string `json:"tier_label"`
	TierOffsetMS int64  `json:"tier_offset_ms"`

	ScheduledAt time.Time `json:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at"`

	Shown     bool `json:"shown"`
	Dismissed bool `json:"dismissed"`
}

// Event rebuilds the calendar event snapshot from the denormalized fields.
// The all-day flag is not persisted and defaults to false.
func (r Record) Event() model.Event {
	return model.Event{
		ID:          r.EventID,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		Start:       r.Start,
		End:         r.End,
	}
}
