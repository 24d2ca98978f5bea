package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "urconnect/internal/log"
	"urconnect/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded occurrences and the titles of events that
// hit the cap.
type ExpandResult struct {
	Occurrences     []model.Occurrence
	TruncatedEvents []string
}

// ExpandOccurrences turns events into concrete occurrences inside the
// configured window, sorted by start time.
//
//   - events without RRULE contribute themselves if they overlap the window
//   - RRULE events are expanded with rrule-go, EXDATEs removed
//   - an RRULE rrule-go cannot parse (e.g. a portal-specific FREQ) degrades
//     to the single base event
//   - events without a parsable start are skipped
func ExpandOccurrences(events []Event, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	for _, ev := range events {
		if ev.Start.IsZero() {
			continue
		}
		occ, hitCap := expandEvent(ev, cfg)
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.Title())
			appLog.Warn("expand: truncated occurrences due to cap",
				"title", ev.Title(),
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		result.Occurrences = append(result.Occurrences, occ...)
	}

	slices.SortStableFunc(result.Occurrences, func(a, b model.Occurrence) int {
		return a.Start.Compare(b.Start)
	})
	return result, nil
}

func expandEvent(ev Event, cfg ExpandConfig) ([]model.Occurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, cfg), false
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Debug("expand: RRULE not expandable, using base event", "title", ev.Title(), "rrule", ev.RawRRule, "err", err)
		return expandSingleEvent(ev, cfg), false
	}
	return expandRecurringEvent(ev, r, cfg)
}

func expandSingleEvent(ev Event, cfg ExpandConfig) []model.Occurrence {
	end := eventEnd(ev, ev.Start)
	if !timeRangesOverlap(ev.Start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.Occurrence{makeOccurrence(ev, ev.Start, end, false, cfg.DisplayLocation)}
}

func expandRecurringEvent(ev Event, r *rrule.RRule, cfg ExpandConfig) ([]model.Occurrence, bool) {
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Look back by one event duration so occurrences already running at
	// RangeStart are included.
	dur := eventEnd(ev, ev.Start).Sub(ev.Start)
	rangeStart := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)

	hitCap := false
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Occurrence, 0, len(occTimes))
	for _, start := range occTimes {
		end := start.Add(dur)
		if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeOccurrence(ev, start, end, true, cfg.DisplayLocation))
	}
	return out, hitCap
}

// eventEnd returns the event's end, defaulting to one day for all-day
// events and to start otherwise.
func eventEnd(ev Event, start time.Time) time.Time {
	switch {
	case !ev.End.IsZero() && !ev.End.Before(ev.Start):
		return ev.End
	case ev.AllDay:
		return start.AddDate(0, 0, 1)
	default:
		return start
	}
}

func makeOccurrence(ev Event, start, end time.Time, recurring bool, displayLoc *time.Location) model.Occurrence {
	return model.Occurrence{
		Title:     ev.Title(),
		Location:  ev.Location,
		Start:     start.In(displayLoc),
		End:       end.In(displayLoc),
		AllDay:    ev.AllDay,
		Recurring: recurring,
	}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
