package source

import (
	"strings"
	"testing"
	"time"

	"remindd/internal/model"
	logx "remindd/pkg/logx"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:standup-42
SUMMARY:Daily standup
DESCRIPTION:Quick sync
LOCATION:Room 4
DTSTART:20250602T090000Z
DTEND:20250602T091500Z
END:VEVENT
BEGIN:VEVENT
UID:offsite-1
SUMMARY:Team offsite
DTSTART;VALUE=DATE:20250610
DTEND;VALUE=DATE:20250611
END:VEVENT
BEGIN:VEVENT
SUMMARY:No UID here
DTSTART:20250603T100000Z
END:VEVENT
BEGIN:VEVENT
UID:ghost-7
SUMMARY:Cancelled planning
STATUS:CANCELLED
DTSTART:20250604T140000Z
END:VEVENT
END:VCALENDAR
`

func TestParse(t *testing.T) {
	t.Parallel()
	body := []byte(strings.ReplaceAll(sampleICS, "\n", "\r\n"))
	events, err := Parse(body, logx.Nop())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// The UID-less event is skipped, everything else survives.
	if len(events) != 3 {
		t.Fatalf("parsed %d events, want 3", len(events))
	}

	byID := map[string]model.Event{}
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	standup, ok := byID["standup-42"]
	if !ok {
		t.Fatal("standup event missing")
	}
	if standup.Title != "Daily standup" || standup.Location != "Room 4" {
		t.Fatalf("standup = %+v", standup)
	}
	want := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	if !standup.Start.Equal(want) {
		t.Fatalf("standup start = %v, want %v", standup.Start, want)
	}
	if standup.AllDay {
		t.Fatal("timed event flagged all-day")
	}

	offsite, ok := byID["offsite-1"]
	if !ok {
		t.Fatal("offsite event missing")
	}
	if !offsite.AllDay {
		t.Fatal("date-only event not flagged all-day")
	}

	if ghost, ok := byID["ghost-7"]; !ok || ghost.Status != "CANCELLED" {
		t.Fatalf("cancelled event status = %+v", ghost)
	}
}

func TestParseEmptyAndGarbage(t *testing.T) {
	t.Parallel()
	if _, err := Parse(nil, logx.Nop()); err == nil {
		t.Fatal("empty body accepted")
	}
	if _, err := Parse([]byte("not an ics feed"), logx.Nop()); err == nil {
		t.Fatal("garbage body accepted")
	}
}

func TestFilterEvents(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	window := 30 * 24 * time.Hour
	events := []model.Event{
		{ID: "soon", Start: now.Add(time.Hour)},
		{ID: "cancelled", Start: now.Add(time.Hour), Status: "CANCELLED"},
		{ID: "ancient", Start: now.Add(-48 * time.Hour)},
		{ID: "just-started", Start: now.Add(-time.Hour)},
		{ID: "beyond-window", Start: now.Add(window + time.Hour)},
	}
	got := filterEvents(events, now, window)
	if len(got) != 2 {
		t.Fatalf("filtered = %d events, want 2", len(got))
	}
	if got[0].ID != "soon" || got[1].ID != "just-started" {
		t.Fatalf("kept %q and %q", got[0].ID, got[1].ID)
	}
}
