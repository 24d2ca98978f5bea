package model

import (
	"strings"
	"time"
)

// ScheduleEntry is one occurrence of a timetabled event as downloaded from
// the portal's calendar export. Empty strings mean "unknown".
type ScheduleEntry struct {
	Date       string      `json:"date"`
	Time       string      `json:"time"`
	Title      string      `json:"title"`
	Location   string      `json:"location"`
	Recurrence *Recurrence `json:"recurrence,omitempty"`
}

// String renders the entry as a single human-readable line:
//
//	2025-01-01 10:00 - 12:00 Sample Lecture @ Room 101 • Weekly
func (e ScheduleEntry) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.Date, e.Time, e.Title} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	line := strings.Join(parts, " ")

	if e.Location != "" {
		if line == "" {
			line = e.Location
		} else {
			line += " @ " + e.Location
		}
	}

	if e.Recurrence != nil {
		if line == "" {
			return e.Recurrence.String()
		}
		line += " • " + e.Recurrence.String()
	}
	return line
}

// RecurrenceKind enumerates the frequencies the timetable distinguishes.
type RecurrenceKind int

const (
	Daily RecurrenceKind = iota + 1
	Weekly
	Monthly
	Yearly
	// Custom carries any other FREQ token verbatim in Recurrence.Custom.
	Custom
)

// Recurrence describes how an entry repeats.
type Recurrence struct {
	Kind   RecurrenceKind
	Custom string
}

// RecurrenceFromFreq maps an RRULE FREQ value to a Recurrence. Known values
// match case-insensitively; anything else non-empty is kept verbatim. An
// empty token means there is no recurrence and yields nil.
func RecurrenceFromFreq(freq string) *Recurrence {
	freq = strings.TrimSpace(freq)
	switch strings.ToUpper(freq) {
	case "":
		return nil
	case "DAILY":
		return &Recurrence{Kind: Daily}
	case "WEEKLY":
		return &Recurrence{Kind: Weekly}
	case "MONTHLY":
		return &Recurrence{Kind: Monthly}
	case "YEARLY":
		return &Recurrence{Kind: Yearly}
	default:
		return &Recurrence{Kind: Custom, Custom: freq}
	}
}

func (r Recurrence) String() string {
	switch r.Kind {
	case Daily:
		return "Daily"
	case Weekly:
		return "Weekly"
	case Monthly:
		return "Monthly"
	case Yearly:
		return "Yearly"
	default:
		return r.Custom
	}
}

// MarshalText makes recurrences render as their display text in JSON.
func (r Recurrence) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (r *Recurrence) UnmarshalText(b []byte) error {
	if parsed := RecurrenceFromFreq(string(b)); parsed != nil {
		*r = *parsed
	}
	return nil
}

// Occurrence is a single concrete instance of an entry after recurrence
// expansion, normalized into the display timezone.
type Occurrence struct {
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	AllDay    bool      `json:"all_day"`
	Recurring bool      `json:"recurring"`
}
