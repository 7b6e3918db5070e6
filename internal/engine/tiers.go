package engine

import (
	"strings"
	"time"

	"remindd/internal/model"
)

// Tier is a single reminder offset before an event's start time.
type Tier struct {
	Offset time.Duration
	Label  string
}

// DefaultImportanceMarker flags an event for the long reminder schedule
// when it appears anywhere in the event description.
const DefaultImportanceMarker = "!important"

// ImportantTiers is the reminder schedule for flagged events, descending
// from one month to ten minutes before start.
var ImportantTiers = []Tier{
	{Offset: 30 * 24 * time.Hour, Label: "1 month"},
	{Offset: 14 * 24 * time.Hour, Label: "2 weeks"},
	{Offset: 7 * 24 * time.Hour, Label: "1 week"},
	{Offset: 3 * 24 * time.Hour, Label: "3 days"},
	{Offset: 2 * 24 * time.Hour, Label: "2 days"},
	{Offset: 24 * time.Hour, Label: "1 day"},
	{Offset: 12 * time.Hour, Label: "12 hours"},
	{Offset: 6 * time.Hour, Label: "6 hours"},
	{Offset: 3 * time.Hour, Label: "3 hours"},
	{Offset: time.Hour, Label: "1 hour"},
	{Offset: 30 * time.Minute, Label: "30 minutes"},
	{Offset: 10 * time.Minute, Label: "10 minutes"},
}

// RegularTiers is the reminder schedule for everything else.
var RegularTiers = []Tier{
	{Offset: time.Hour, Label: "1 hour"},
	{Offset: 30 * time.Minute, Label: "30 minutes"},
	{Offset: 10 * time.Minute, Label: "10 minutes"},
}

// Important reports whether the event carries the importance marker in its
// description.
func Important(ev model.Event, marker string) bool {
	if strings.TrimSpace(marker) == "" {
		marker = DefaultImportanceMarker
	}
	return strings.Contains(ev.Description, marker)
}

// TiersFor returns the ordered reminder schedule for an event. Pure; the
// returned slice must not be mutated.
func TiersFor(ev model.Event, marker string) []Tier {
	if Important(ev, marker) {
		return ImportantTiers
	}
	return RegularTiers
}
