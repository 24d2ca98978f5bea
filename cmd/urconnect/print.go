package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"urconnect/internal/model"
	"urconnect/internal/portal"
)

var (
	dateColor       = color.New(color.FgCyan)
	timeColor       = color.New(color.FgYellow)
	titleColor      = color.New(color.Bold)
	locationColor   = color.New(color.FgGreen)
	recurrenceColor = color.New(color.FgHiBlack)
)

// printEntries writes one colored line per entry. The layout matches
// ScheduleEntry.String.
func printEntries(w io.Writer, entries []model.ScheduleEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, portal.FormatEntries(nil))
		return
	}
	for _, e := range entries {
		fmt.Fprintln(w, colorLine(e))
	}
}

func colorLine(e model.ScheduleEntry) string {
	var parts []string
	if e.Date != "" {
		parts = append(parts, dateColor.Sprint(e.Date))
	}
	if e.Time != "" {
		parts = append(parts, timeColor.Sprint(e.Time))
	}
	if e.Title != "" {
		parts = append(parts, titleColor.Sprint(e.Title))
	}
	line := strings.Join(parts, " ")

	if e.Location != "" {
		loc := locationColor.Sprint(e.Location)
		if line == "" {
			line = loc
		} else {
			line += " @ " + loc
		}
	}
	if e.Recurrence != nil {
		rec := recurrenceColor.Sprint(e.Recurrence.String())
		if line == "" {
			return rec
		}
		line += " • " + rec
	}
	return line
}
