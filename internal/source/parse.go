package source

import (
	"bytes"
	"errors"
	"strings"

	ical "github.com/arran4/golang-ical"

	"remindd/internal/model"
	logx "remindd/pkg/logx"
)

// Parse turns an ICS payload into events. VEVENTs without a UID or DTSTART
// are skipped with a warning; one malformed event never poisons the feed.
//
// Recurring events contribute only their base instance: RRULE is not
// expanded. Cancelled events are kept (with Status set) and filtered by the
// refresh service.
func Parse(body []byte, log logx.Logger) ([]model.Event, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	comps := cal.Events()
	events := make([]model.Event, 0, len(comps))
	for _, ve := range comps {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			log.Warn("skipping malformed calendar event", logx.Err(perr))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (model.Event, error) {
	var out model.Event

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.ID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Status = strings.ToUpper(strings.TrimSpace(p.Value))
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, errors.New("missing or invalid DTSTART")
	}
	out.Start = start
	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	}

	// All-day: DTSTART carries VALUE=DATE or a date-only value.
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if params := p.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.AllDay = true
			}
		}
		if !strings.Contains(p.Value, "T") {
			out.AllDay = true
		}
	}

	return out, nil
}
