package dom

import (
	"net/url"
	"strings"
	"testing"
)

func TestParseAndQuery(t *testing.T) {
	doc := Parse(`<html><body>
		<p>Hi</p>
		<input type="hidden" name="ajax-token" value="abc123">
		<a href="/one">First&nbsp;link</a>
		<a href="/two">  Second
			link </a>
	</body></html>`)

	if got := doc.Text(); !strings.Contains(got, "Hi") {
		t.Errorf("Text() = %q, want it to contain Hi", got)
	}

	in, ok := doc.First("input[name='ajax-token']")
	if !ok {
		t.Fatal("First(input) found nothing")
	}
	if v, _ := in.Attr("value"); v != "abc123" {
		t.Errorf("value = %q, want abc123", v)
	}
	if got := in.AttrOr("missing", "def"); got != "def" {
		t.Errorf("AttrOr = %q, want def", got)
	}

	links := doc.Select("a[href]")
	if len(links) != 2 {
		t.Fatalf("Select(a[href]) = %d elements, want 2", len(links))
	}
	if got := links[0].NormalizedText(); got != "First link" {
		t.Errorf("links[0] text = %q, want %q", got, "First link")
	}
	if got := links[1].NormalizedText(); got != "Second link" {
		t.Errorf("links[1] text = %q, want %q", got, "Second link")
	}

	if _, ok := doc.First("textarea"); ok {
		t.Error("First(textarea) unexpectedly matched")
	}
	if got := doc.Select("[[invalid"); len(got) != 0 {
		t.Errorf("invalid selector matched %d elements", len(got))
	}
}

func TestNormalizeText(t *testing.T) {
	tests := map[string]string{
		"  a   b  ":          "a b",
		"a&amp;b":            "a&b",
		"x\u00a0y":           "x y",
		"line\n\tbreak":      "line break",
		"":                   "",
		"Stundenplan&nbsp; ": "Stundenplan",
	}
	for in, want := range tests {
		if got := NormalizeText(in); got != want {
			t.Errorf("NormalizeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://campusportal.example")

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://other.example/cal.ics", "https://other.example/cal.ics", true},
		{"/qisserver/export.ics", "https://campusportal.example/qisserver/export.ics", true},
		{"pages/plan.xhtml?_flowId=x", "https://campusportal.example/pages/plan.xhtml?_flowId=x", true},
		{"mailto:someone@example.com", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveURL(tt.in, base)
		if ok != tt.wantOK {
			t.Errorf("ResolveURL(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && got.String() != tt.want {
			t.Errorf("ResolveURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, ok := ResolveURL("/relative", nil); ok {
		t.Error("ResolveURL with nil base resolved a relative URL")
	}
}
