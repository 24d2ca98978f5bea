package ics

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"

	"urconnect/internal/model"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

func TestParseFeedBasicEvent(t *testing.T) {
	input := "BEGIN:VCALENDAR\nBEGIN:VEVENT\nSUMMARY:Test Event\nLOCATION:Room 101\nDTSTART;TZID=Europe/Berlin:20241001T080000\nDTEND;TZID=Europe/Berlin:20241001T093000\nEND:VEVENT\nEND:VCALENDAR"

	entries := ParseFeed(input)
	if len(entries) != 1 {
		t.Fatalf("ParseFeed returned %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Title != "Test Event" {
		t.Errorf("Title = %q, want Test Event", entry.Title)
	}
	if entry.Location != "Room 101" {
		t.Errorf("Location = %q, want Room 101", entry.Location)
	}
	if len(entry.Time) != 13 {
		t.Errorf("Time = %q, want 13 characters", entry.Time)
	}
	if entry.Recurrence != nil {
		t.Errorf("Recurrence = %v, want nil", entry.Recurrence)
	}
}

func TestParseFeedWallClockInDisplayZone(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	input := "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nSUMMARY:Test Event\r\nDTSTART;TZID=Europe/Berlin:20241001T080000\r\nDTEND;TZID=Europe/Berlin:20241001T093000\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

	got := ParseFeedIn(input, berlin)
	want := []model.ScheduleEntry{{Date: "2024-10-01", Time: "08:00 - 09:30", Title: "Test Event"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseFeedIn mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFeedUTCWithRecurrence(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	input := "BEGIN:VCALENDAR\nBEGIN:VEVENT\nSUMMARY:Weekly Seminar\nDTSTART:20241001T080000Z\nDTEND:20241001T090000Z\nRRULE:FREQ=WEEKLY;BYDAY=TU\nEND:VEVENT\nEND:VCALENDAR"

	entries := ParseFeedIn(input, berlin)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Recurrence == nil || entry.Recurrence.Kind != model.Weekly {
		t.Fatalf("Recurrence = %v, want Weekly", entry.Recurrence)
	}
	// 08:00Z is 10:00 CEST.
	if entry.Time != "10:00 - 11:00" {
		t.Errorf("Time = %q, want 10:00 - 11:00", entry.Time)
	}
	if got := entry.String(); got != "2024-10-01 10:00 - 11:00 Weekly Seminar • Weekly" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseFeedEmpty(t *testing.T) {
	for _, input := range []string{
		"",
		"   \n\t ",
		"BEGIN:VCALENDAR\nEND:VCALENDAR",
		"BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//x//y//EN\nEND:VCALENDAR\n",
		"<html>not a calendar</html>",
	} {
		if got := ParseFeed(input); len(got) != 0 {
			t.Errorf("ParseFeed(%q) = %v, want empty", input, got)
		}
	}
}

func TestParseFeedFieldRules(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	input := `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:1
description:Only a description
DTSTART:20241002
END:VEVENT
BEGIN:VEVENT
UID:2
SUMMARY:  First summary
SUMMARY:Second summary
LOCATION: H 24
DTSTART:20241003T1015
END:VEVENT
BEGIN:VEVENT
UID:3
LOCATION:Nowhere
END:VEVENT
BEGIN:VEVENT
UID:4
SUMMARY:Bad date
DTSTART:not-a-date
RRULE:FREQ=BIWEEKLY
END:VEVENT
BEGIN:VEVENT
UID:5
SUMMARY:Open end
DTSTART:2024-10-04T09:00:00+02:00
RRULE:BYDAY=MO
END:VEVENT
END:VCALENDAR
`
	got := ParseFeedIn(input, berlin)
	want := []model.ScheduleEntry{
		{Date: "2024-10-02", Time: "00:00", Title: "Only a description"},
		{Date: "2024-10-03", Time: "10:15", Title: "First summary", Location: "H 24"},
		{Title: "Bad date", Recurrence: &model.Recurrence{Kind: model.Custom, Custom: "BIWEEKLY"}},
		{Date: "2024-10-04", Time: "09:00", Title: "Open end"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseFeedIn mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFeedSkipsMalformedBlock(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	input := `BEGIN:VCALENDAR
BEGIN:VEVENT
SUMMARY:Broken
DTSTART;TZID:20241001T080000
END:VEVENT
END:VCALENDAR
BEGIN:VCALENDAR
BEGIN:VEVENT
SUMMARY:Good
DTSTART:20241001T080000
END:VEVENT
END:VCALENDAR
BEGIN:VCALENDAR
BEGIN:VEVENT
SUMMARY:Also good
DTSTART:20241002T080000
END:VEVENT
END:VCALENDAR`

	got := ParseFeedIn(input, berlin)
	if len(got) != 2 {
		t.Fatalf("got %d entries (%v), want 2", len(got), got)
	}
	if got[0].Title != "Good" || got[1].Title != "Also good" {
		t.Errorf("titles = %q, %q", got[0].Title, got[1].Title)
	}
}

func TestRecurrenceFromRule(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{"FREQ=WEEKLY;BYDAY=TU", "Weekly"},
		{"BYDAY=TU;freq=daily", "Daily"},
		{"FREQ=MONTHLY", "Monthly"},
		{"FREQ=BIWEEKLY", "BIWEEKLY"},
		{"FREQ=;BYDAY=TU", ""},
		{"BYDAY=TU", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := RecurrenceFromRule(tt.rule)
		if tt.want == "" {
			if got != nil {
				t.Errorf("RecurrenceFromRule(%q) = %v, want nil", tt.rule, got)
			}
			continue
		}
		if got == nil || got.String() != tt.want {
			t.Errorf("RecurrenceFromRule(%q) = %v, want %s", tt.rule, got, tt.want)
		}
	}
}

func TestParseDateValue(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")

	tests := []struct {
		raw        string
		want       time.Time
		wantAllDay bool
		wantOK     bool
	}{
		{"20241001", time.Date(2024, 10, 1, 0, 0, 0, 0, berlin), true, true},
		{"20241001T080000", time.Date(2024, 10, 1, 8, 0, 0, 0, berlin), false, true},
		{"20241001T0800", time.Date(2024, 10, 1, 8, 0, 0, 0, berlin), false, true},
		{"20241001T080000Z", time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC), false, true},
		{"TZID=Europe/Berlin:20241001T080000", time.Date(2024, 10, 1, 8, 0, 0, 0, berlin), false, true},
		{"DTSTART;TZID=Europe/Berlin:20241001T080000", time.Date(2024, 10, 1, 8, 0, 0, 0, berlin), false, true},
		{"2024-10-01T08:00:00Z", time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC), false, true},
		{"2024-10-01T08:00:00+02:00", time.Date(2024, 10, 1, 8, 0, 0, 0, berlin), false, true},
		{"", time.Time{}, false, false},
		{"tomorrow", time.Time{}, false, false},
	}
	for _, tt := range tests {
		got, allDay, ok := ParseDateValue(tt.raw, berlin)
		if ok != tt.wantOK {
			t.Errorf("ParseDateValue(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDateValue(%q) = %v, want %v", tt.raw, got, tt.want)
		}
		if got.Location() != berlin {
			t.Errorf("ParseDateValue(%q) location = %v, want Europe/Berlin", tt.raw, got.Location())
		}
		if allDay != tt.wantAllDay {
			t.Errorf("ParseDateValue(%q) allDay = %v, want %v", tt.raw, allDay, tt.wantAllDay)
		}
	}
}
