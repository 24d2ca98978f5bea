// Package dom is a thin query facade over a parsed HTML page. Discovery
// heuristics only need selector lookups, attributes and normalized text, so
// that is all it exposes.
package dom

import (
	"html"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
	raw string
}

// Element is a single element matched by a selector.
type Element struct {
	sel *goquery.Selection
}

// Parse parses html leniently. It never fails: unparsable input yields an
// empty document.
func Parse(raw string) *Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return &Document{doc: doc, raw: raw}
}

// Raw returns the source the document was parsed from.
func (d *Document) Raw() string {
	return d.raw
}

// Text returns the text content of the whole document.
func (d *Document) Text() string {
	return d.doc.Text()
}

// Select returns every element matching selector in document order. An
// invalid selector matches nothing.
func (d *Document) Select(selector string) []*Element {
	var out []*Element
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{sel: s})
	})
	return out
}

// First returns the first element matching selector.
func (d *Document) First(selector string) (*Element, bool) {
	s := d.doc.Find(selector).First()
	if s.Length() == 0 {
		return nil, false
	}
	return &Element{sel: s}, true
}

func (e *Element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e *Element) AttrOr(name, def string) string {
	return e.sel.AttrOr(name, def)
}

// Text returns the concatenated text content of the element.
func (e *Element) Text() string {
	return e.sel.Text()
}

// NormalizedText is NormalizeText applied to Text.
func (e *Element) NormalizedText() string {
	return NormalizeText(e.sel.Text())
}

// NormalizeText decodes entities, turns non-breaking spaces into spaces and
// collapses whitespace runs.
func NormalizeText(s string) string {
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// ResolveURL turns candidate into an absolute http(s) URL. Absolute
// candidates are used as they are; anything else is resolved against base.
func ResolveURL(candidate string, base *url.URL) (*url.URL, bool) {
	if candidate == "" {
		return nil, false
	}
	if abs, err := url.Parse(candidate); err == nil && abs.IsAbs() && isHTTP(abs) {
		return abs, true
	}
	if base == nil {
		return nil, false
	}
	ref, err := url.Parse(candidate)
	if err != nil {
		return nil, false
	}
	joined := base.ResolveReference(ref)
	if !isHTTP(joined) {
		return nil, false
	}
	return joined, true
}

func isHTTP(u *url.URL) bool {
	return strings.HasPrefix(strings.ToLower(u.Scheme), "http")
}
