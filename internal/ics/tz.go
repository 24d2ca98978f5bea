package ics

import (
	"slices"
	"time"
)

// ResolveLocal interprets the wall clock of wall (its own location is
// ignored) as a time in loc.
//
// Around daylight-saving transitions a wall clock can map to two instants
// (fall back) or to none (spring forward). Ambiguous times resolve to the
// earlier instant. Nonexistent times are reinterpreted as UTC and shown in
// loc.
func ResolveLocal(wall time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	asUTC := time.Date(wall.Year(), wall.Month(), wall.Day(),
		wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), time.UTC)

	candidates := LocalCandidates(asUTC, loc)
	if len(candidates) == 0 {
		return asUTC.In(loc)
	}
	return candidates[0]
}

// LocalCandidates returns every instant, earliest first, whose wall clock in
// loc equals the wall clock of asUTC.
func LocalCandidates(asUTC time.Time, loc *time.Location) []time.Time {
	var (
		out  []time.Time
		seen = make(map[int]bool, 2)
	)
	// A day on either side covers the offsets in effect before and after
	// any transition that could touch this wall clock.
	for _, probe := range []time.Duration{-24 * time.Hour, 0, 24 * time.Hour} {
		_, offset := asUTC.Add(probe).In(loc).Zone()
		if seen[offset] {
			continue
		}
		seen[offset] = true

		c := asUTC.Add(-time.Duration(offset) * time.Second).In(loc)
		if sameWallClock(c, asUTC) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() &&
		a.Second() == b.Second() && a.Nanosecond() == b.Nanosecond()
}
