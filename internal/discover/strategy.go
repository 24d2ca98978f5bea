// Package discover holds the page heuristics used to navigate the portal:
// login form fields, the timetable menu link, the flow execution key and the
// calendar export URL. Each heuristic is an ordered list of strategies; the
// first one that produces a value wins.
package discover

import "urconnect/internal/dom"

// strategy extracts a value from a document, reporting whether it found one.
type strategy[T any] func(doc *dom.Document) (T, bool)

// firstOf runs strategies in order and returns the first success.
func firstOf[T any](doc *dom.Document, strategies ...strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := s(doc); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
