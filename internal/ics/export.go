package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
)

// BuildCalendar serializes events into a clean calendar, e.g. for
// subscribing to the timetable from another client.
func BuildCalendar(name string, events []Event) string {
	cal := ical.NewCalendar()
	cal.SetProductId("-//urconnect//Timetable Export//EN")
	cal.SetName(name)
	cal.SetXWRCalName(name)

	for i, e := range events {
		if e.Start.IsZero() {
			continue
		}
		uid := e.UID
		if uid == "" {
			uid = fmt.Sprintf("urconnect-%d-%d", e.Start.Unix(), i)
		}
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(time.Now())
		if title := e.Title(); title != "" {
			ev.SetSummary(title)
		}
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.Description != "" && e.Description != e.Title() {
			ev.SetDescription(e.Description)
		}
		if e.AllDay {
			ev.SetAllDayStartAt(e.Start)
			if !e.End.IsZero() {
				ev.SetAllDayEndAt(e.End)
			}
		} else {
			ev.SetStartAt(e.Start)
			if !e.End.IsZero() {
				ev.SetEndAt(e.End)
			}
		}
		if e.RawRRule != "" {
			ev.AddRrule(e.RawRRule)
		}
	}
	return cal.Serialize()
}
