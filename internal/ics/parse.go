package ics

import (
	"bufio"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "urconnect/internal/log"
	"urconnect/internal/model"
)

// Event is the time-typed view of a VEVENT. Entries for display are derived
// from it, and recurrence expansion operates on it.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string

	// Start and End are in the display location; zero when the value was
	// missing or could not be parsed.
	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
}

// Title is the summary, falling back to the description.
func (e Event) Title() string {
	if s := strings.TrimSpace(e.Summary); s != "" {
		return s
	}
	return strings.TrimSpace(e.Description)
}

// Entry renders the event as a schedule entry. ok is false when the event
// has neither a date nor a title.
func (e Event) Entry() (model.ScheduleEntry, bool) {
	var entry model.ScheduleEntry
	if !e.Start.IsZero() {
		entry.Date = e.Start.Format("2006-01-02")
		if !e.End.IsZero() {
			entry.Time = e.Start.Format("15:04") + " - " + e.End.Format("15:04")
		} else {
			entry.Time = e.Start.Format("15:04")
		}
	}
	entry.Title = e.Title()
	entry.Location = strings.TrimSpace(e.Location)
	entry.Recurrence = RecurrenceFromRule(e.RawRRule)

	if entry.Date == "" && entry.Title == "" {
		return model.ScheduleEntry{}, false
	}
	return entry, true
}

// ParseFeed parses calendar feed text into schedule entries shown in the
// process's local time zone.
func ParseFeed(text string) []model.ScheduleEntry {
	return ParseFeedIn(text, time.Local)
}

// ParseFeedIn is ParseFeed with an explicit display location.
func ParseFeedIn(text string, loc *time.Location) []model.ScheduleEntry {
	return Entries(ParseEvents(text, loc))
}

// Entries renders events as schedule entries, dropping events that have
// neither a date nor a title.
func Entries(events []Event) []model.ScheduleEntry {
	entries := make([]model.ScheduleEntry, 0, len(events))
	for _, ev := range events {
		if entry, ok := ev.Entry(); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// ParseEvents parses every VEVENT in text, in feed order. A feed may hold
// several VCALENDAR blocks; a block that fails to parse is skipped so the
// rest are still extracted.
func ParseEvents(text string, loc *time.Location) []Event {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	var events []Event
	for i, block := range splitCalendars(text) {
		cal, err := ical.ParseCalendarWithOptions(strings.NewReader(block),
			ical.WithUnknownPropertyHandler(ical.AcceptUnknownPropertyHandler))
		if err != nil {
			appLog.Debug("ics calendar block skipped", "block", i, "err", err)
			continue
		}
		for _, ve := range cal.Events() {
			events = append(events, parseVEvent(ve, loc))
		}
	}
	return events
}

// splitCalendars cuts text into BEGIN:VCALENDAR..END:VCALENDAR blocks.
// Text outside any block is ignored. An unterminated final block is kept.
func splitCalendars(text string) []string {
	var (
		blocks  []string
		current []string
		inside  bool
	)
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		marker := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case marker == "BEGIN:VCALENDAR":
			if inside && len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\r\n"))
			}
			current = []string{"BEGIN:VCALENDAR"}
			inside = true
		case marker == "END:VCALENDAR" && inside:
			current = append(current, "END:VCALENDAR")
			blocks = append(blocks, strings.Join(current, "\r\n")+"\r\n")
			current = nil
			inside = false
		case inside:
			current = append(current, line)
		}
	}
	if inside && len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\r\n")+"\r\n")
	}
	return blocks
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) Event {
	var ev Event
	ev.UID, _ = propertyValue(ve, "UID")
	ev.Summary, _ = propertyValue(ve, "SUMMARY")
	ev.Description, _ = propertyValue(ve, "DESCRIPTION")
	ev.Location, _ = propertyValue(ve, "LOCATION")
	ev.RawRRule, _ = propertyValue(ve, "RRULE")

	if raw, ok := propertyValue(ve, "DTSTART"); ok {
		if t, allDay, ok := ParseDateValue(raw, loc); ok {
			ev.Start = t
			ev.AllDay = allDay
		} else {
			appLog.Debug("ics DTSTART unparsable", "value", raw)
		}
	}
	if raw, ok := propertyValue(ve, "DTEND"); ok {
		if t, _, ok := ParseDateValue(raw, loc); ok {
			ev.End = t
		} else {
			appLog.Debug("ics DTEND unparsable", "value", raw)
		}
	}

	for i := range ve.Properties {
		p := &ve.Properties[i]
		if !strings.EqualFold(p.IANAToken, "EXDATE") {
			continue
		}
		for _, part := range strings.Split(p.Value, ",") {
			if t, _, ok := ParseDateValue(part, loc); ok {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	return ev
}

// propertyValue returns the first property named name, matched
// case-insensitively.
func propertyValue(ve *ical.VEvent, name string) (string, bool) {
	for i := range ve.Properties {
		if strings.EqualFold(ve.Properties[i].IANAToken, name) {
			return ve.Properties[i].Value, true
		}
	}
	return "", false
}

// RecurrenceFromRule extracts the FREQ part of an RRULE value.
func RecurrenceFromRule(rule string) *model.Recurrence {
	for _, part := range strings.Split(rule, ";") {
		key, value, _ := strings.Cut(part, "=")
		if strings.EqualFold(strings.TrimSpace(key), "FREQ") {
			return model.RecurrenceFromFreq(value)
		}
	}
	return nil
}

var dateLayouts = []string{
	"20060102",
	"20060102T150405",
	"20060102T1504",
}

// ParseDateValue parses a DTSTART/DTEND style value. A parameter prefix such
// as "TZID=Europe/Berlin:" is dropped. Values ending in Z are UTC and are
// converted to loc; other values are wall-clock times in loc, resolved with
// ResolveLocal. allDay reports a bare date.
func ParseDateValue(raw string, loc *time.Location) (t time.Time, allDay bool, ok bool) {
	v := stripParams(strings.TrimSpace(raw))
	if v == "" {
		return time.Time{}, false, false
	}

	body, utc := strings.CutSuffix(v, "Z")
	for i, layout := range dateLayouts {
		parsed, err := time.Parse(layout, body)
		if err != nil {
			continue
		}
		if utc {
			return parsed.In(loc), i == 0, true
		}
		return ResolveLocal(parsed, loc), i == 0, true
	}

	if parsed, err := time.Parse(time.RFC3339, v); err == nil {
		return parsed.In(loc), false, true
	}
	return time.Time{}, false, false
}

// stripParams drops everything up to the last colon when the text before
// the first colon is a property name or parameter list rather than part of
// a timestamp.
func stripParams(v string) string {
	first := strings.Index(v, ":")
	if first < 0 {
		return v
	}
	prefix := v[:first]
	if strings.ContainsAny(prefix, "=;") || !strings.ContainsAny(prefix, "0123456789") {
		return strings.TrimSpace(v[strings.LastIndex(v, ":")+1:])
	}
	return v
}
