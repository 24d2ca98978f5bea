package discover

import (
	"net/url"
	"strings"

	"urconnect/internal/dom"
)

// timetableModule is the path fragment the portal uses for the personal
// timetable pages.
const timetableModule = "individualtimetable"

// menuKeywords are link texts (German and English UI) that point at the
// timetable.
var menuKeywords = []string{"stundenplan", "timetable"}

// Candidate is a navigation link considered during menu discovery.
type Candidate struct {
	URL   *url.URL
	Score int
}

// ScoreLink rates how likely an anchor leads to the timetable flow:
// 3 when the href names the flow id, 2 when it points into the timetable
// module, 1 when only the visible text mentions a timetable, 0 otherwise.
func ScoreLink(href, text, flowID string) int {
	h := strings.ToLower(href)
	t := strings.ToLower(text)
	switch {
	case strings.Contains(h, "_flowid="+strings.ToLower(flowID)):
		return 3
	case strings.Contains(h, timetableModule):
		return 2
	case containsAny(t, menuKeywords):
		return 1
	default:
		return 0
	}
}

// MenuCandidates returns every resolvable anchor with a positive score, in
// document order.
func MenuCandidates(doc *dom.Document, base *url.URL, flowID string) []Candidate {
	var out []Candidate
	for _, a := range doc.Select("a[href]") {
		href, _ := a.Attr("href")
		if href == "" {
			continue
		}
		score := ScoreLink(href, a.NormalizedText(), flowID)
		if score == 0 {
			continue
		}
		u, ok := dom.ResolveURL(href, base)
		if !ok {
			continue
		}
		out = append(out, Candidate{URL: u, Score: score})
	}
	return out
}

// FindMenuLink picks the highest scoring timetable link on the landing page.
// Ties keep the link that appears first.
func FindMenuLink(doc *dom.Document, base *url.URL, flowID string) (*url.URL, bool) {
	var best *Candidate
	candidates := MenuCandidates(doc, base, flowID)
	for i := range candidates {
		if best == nil || candidates[i].Score > best.Score {
			best = &candidates[i]
		}
	}
	if best == nil {
		return nil, false
	}
	return best.URL, true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
