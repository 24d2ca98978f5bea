package discover

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"urconnect/internal/dom"
)

// calendarHints mark a string as referring to the calendar export.
var calendarHints = []string{
	"calendarexport",
	"calendar",
	"individualtimetablecalendarexport",
	"timetablecalendar",
	".ics",
	"ical",
}

// calendarTextareas are the textareas the portal renders the export link
// into, most specific first.
var calendarTextareas = []string{
	"textarea[id*='cal_add']",
	"textarea[id*='ical']",
	"textarea[id*='calendar']",
	"textarea[data-page-permalink]",
	"textarea[data-url]",
}

// calendarAttrs are read from textareas and inputs after their text.
var calendarAttrs = []string{
	"data-page-permalink",
	"data-page-permalink-title",
	"data-url",
	"value",
}

var urlRegexp = regexp.MustCompile(`https?://[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+`)

// ContainsCalendarHint reports whether s looks like it refers to a calendar
// export.
func ContainsCalendarHint(s string) bool {
	return containsAny(strings.ToLower(s), calendarHints)
}

// FindICSURL locates the calendar export URL on a rendered timetable page.
// Known export textareas are checked first, then any textarea, inputs,
// links, and finally any URL-shaped text in the page source.
func FindICSURL(doc *dom.Document, base *url.URL) (*url.URL, bool) {
	return firstOf[*url.URL](doc,
		func(doc *dom.Document) (*url.URL, bool) {
			for _, sel := range calendarTextareas {
				if u, ok := firstCalendarElement(doc.Select(sel), base); ok {
					return u, true
				}
			}
			return nil, false
		},
		func(doc *dom.Document) (*url.URL, bool) {
			return firstCalendarElement(doc.Select("textarea"), base)
		},
		func(doc *dom.Document) (*url.URL, bool) {
			return firstCalendarElement(doc.Select("input"), base)
		},
		func(doc *dom.Document) (*url.URL, bool) {
			for _, a := range doc.Select("a[href]") {
				values := attrValues(a, "href")
				if text := a.NormalizedText(); text != "" {
					values = append(values, text)
				}
				if u, ok := firstCalendarURL(values, base); ok {
					return u, true
				}
			}
			return nil, false
		},
		func(doc *dom.Document) (*url.URL, bool) {
			for _, m := range urlRegexp.FindAllString(doc.Raw(), -1) {
				candidate := strings.TrimSpace(html.UnescapeString(m))
				if !ContainsCalendarHint(candidate) {
					continue
				}
				if u, ok := dom.ResolveURL(candidate, base); ok {
					return u, true
				}
			}
			return nil, false
		},
	)
}

func firstCalendarElement(elems []*dom.Element, base *url.URL) (*url.URL, bool) {
	for _, el := range elems {
		var values []string
		if text := el.NormalizedText(); text != "" {
			values = append(values, text)
		}
		values = append(values, attrValues(el, calendarAttrs...)...)
		if u, ok := firstCalendarURL(values, base); ok {
			return u, true
		}
	}
	return nil, false
}

func firstCalendarURL(values []string, base *url.URL) (*url.URL, bool) {
	for _, v := range values {
		if v == "" || !ContainsCalendarHint(v) {
			continue
		}
		if u, ok := dom.ResolveURL(v, base); ok {
			return u, true
		}
	}
	return nil, false
}

func attrValues(el *dom.Element, names ...string) []string {
	var out []string
	for _, name := range names {
		v, ok := el.Attr(name)
		if !ok {
			continue
		}
		if v = strings.TrimSpace(html.UnescapeString(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
