package model

import "time"

// Event is an immutable snapshot of a single calendar event instance as
// delivered by the event source. The engine only reads it; it never owns
// or mutates calendar data.
type Event struct {
	// ID is unique per event instance (iCalendar UID for ICS sources).
	ID string

	Title       string
	Description string
	Location    string

	Start time.Time
	End   time.Time

	AllDay bool

	// Status is the source's status value (e.g. CONFIRMED, CANCELLED).
	// Empty when the source does not provide one.
	Status string
}
