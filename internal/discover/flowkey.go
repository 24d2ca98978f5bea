package discover

import (
	"net/url"
	"regexp"
	"strings"

	"urconnect/internal/dom"
)

// FlowKeyParam is the query parameter carrying the flow execution key.
const FlowKeyParam = "_flowExecutionKey"

var flowKeyRegexp = regexp.MustCompile(regexp.QuoteMeta(FlowKeyParam) + `=([A-Za-z0-9]+)`)

// ExtractFlowKey finds the flow execution key on a timetable entry page.
// Structured sources are tried before raw text: the hidden form field, a
// link carrying the key, a meta refresh target, and finally a regexp scan of
// the page source.
func ExtractFlowKey(doc *dom.Document) (string, bool) {
	return firstOf[string](doc,
		flowKeyFromField,
		flowKeyFromLink,
		flowKeyFromMetaRefresh,
		flowKeyFromSource,
	)
}

func flowKeyFromField(doc *dom.Document) (string, bool) {
	for _, sel := range []string{"input[name='" + FlowKeyParam + "']", "input#" + FlowKeyParam} {
		in, ok := doc.First(sel)
		if !ok {
			continue
		}
		if v := strings.TrimSpace(in.AttrOr("value", "")); v != "" {
			return v, true
		}
	}
	return "", false
}

func flowKeyFromLink(doc *dom.Document) (string, bool) {
	a, ok := doc.First("a[href*='" + FlowKeyParam + "=']")
	if !ok {
		return "", false
	}
	return FlowKeyFromString(a.AttrOr("href", ""))
}

func flowKeyFromMetaRefresh(doc *dom.Document) (string, bool) {
	for _, meta := range doc.Select("meta[http-equiv]") {
		if !strings.EqualFold(meta.AttrOr("http-equiv", ""), "refresh") {
			continue
		}
		content := meta.AttrOr("content", "")
		idx := strings.Index(strings.ToLower(content), "url=")
		if idx < 0 {
			continue
		}
		if key, ok := FlowKeyFromString(content[idx+len("url="):]); ok {
			return key, true
		}
	}
	return "", false
}

func flowKeyFromSource(doc *dom.Document) (string, bool) {
	m := flowKeyRegexp.FindStringSubmatch(doc.Raw())
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FlowKeyFromString reads the key from a URL query, or failing that from
// the alphanumeric run following the parameter marker.
func FlowKeyFromString(s string) (string, bool) {
	if u, err := url.Parse(s); err == nil {
		if key, ok := FlowKeyFromURL(u); ok {
			return key, true
		}
	}

	marker := FlowKeyParam + "="
	idx := strings.Index(s, marker)
	if idx < 0 {
		return "", false
	}
	rest := s[idx+len(marker):]
	end := 0
	for end < len(rest) && isAlnum(rest[end]) {
		end++
	}
	if end == 0 {
		return "", false
	}
	return rest[:end], true
}

// FlowKeyFromURL reads the key from u's query string.
func FlowKeyFromURL(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	v := u.Query().Get(FlowKeyParam)
	return v, v != ""
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
