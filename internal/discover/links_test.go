package discover

import (
	"net/url"
	"testing"

	"urconnect/internal/dom"
)

const flowID = "individualTimetableSchedule-flow"

var portalBase, _ = url.Parse("https://campusportal.example")

func TestScoreLink(t *testing.T) {
	tests := []struct {
		name string
		href string
		text string
		want int
	}{
		{"flow id in query", "/qisserver/pages/plan/individualTimetable.xhtml?_flowId=individualTimetableSchedule-flow", "", 3},
		{"flow id case-insensitive", "/x?_FLOWID=INDIVIDUALTIMETABLESCHEDULE-FLOW", "", 3},
		{"module path", "/qisserver/pages/plan/individualTimetable.xhtml", "", 2},
		{"german text", "/qisserver/pages/menu.xhtml", "Mein Stundenplan", 1},
		{"english text", "/menu", "My Timetable", 1},
		{"unrelated", "/logout", "Logout", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreLink(tt.href, tt.text, flowID); got != tt.want {
				t.Errorf("ScoreLink = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFindMenuLink(t *testing.T) {
	t.Run("flow id beats text regardless of order", func(t *testing.T) {
		doc := dom.Parse(`
			<a href="/qisserver/pages/menu.xhtml?id=5">Timetable</a>
			<a href="/qisserver/pages/plan/individualTimetable.xhtml?_flowId=individualTimetableSchedule-flow&amp;navigationPosition=hisinoneMeinStudium">Plan</a>`)
		got, ok := FindMenuLink(doc, portalBase, flowID)
		if !ok {
			t.Fatal("FindMenuLink found nothing")
		}
		want := "https://campusportal.example/qisserver/pages/plan/individualTimetable.xhtml?_flowId=individualTimetableSchedule-flow&navigationPosition=hisinoneMeinStudium"
		if got.String() != want {
			t.Errorf("FindMenuLink = %q, want %q", got, want)
		}
	})

	t.Run("ties keep first", func(t *testing.T) {
		doc := dom.Parse(`
			<a href="/first">Stundenplan</a>
			<a href="/second">Timetable</a>`)
		got, ok := FindMenuLink(doc, portalBase, flowID)
		if !ok || got.Path != "/first" {
			t.Errorf("FindMenuLink = %v, %v; want /first", got, ok)
		}
	})

	t.Run("absolute href kept", func(t *testing.T) {
		doc := dom.Parse(`<a href="https://other.example/individualTimetable.xhtml">x</a>`)
		got, ok := FindMenuLink(doc, portalBase, flowID)
		if !ok || got.Host != "other.example" {
			t.Errorf("FindMenuLink = %v, %v", got, ok)
		}
	})

	t.Run("unresolvable candidates skipped", func(t *testing.T) {
		doc := dom.Parse(`
			<a href="javascript:openIndividualTimetable()">Stundenplan</a>
			<a href="/plan">Stundenplan</a>`)
		got, ok := FindMenuLink(doc, portalBase, flowID)
		if !ok || got.Path != "/plan" {
			t.Errorf("FindMenuLink = %v, %v; want /plan", got, ok)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		doc := dom.Parse(`<a href="/logout">Logout</a><a href="">Stundenplan</a>`)
		if got, ok := FindMenuLink(doc, portalBase, flowID); ok {
			t.Errorf("FindMenuLink = %v, want none", got)
		}
	})
}

func TestMenuCandidates(t *testing.T) {
	doc := dom.Parse(`
		<a href="/a">Stundenplan</a>
		<a href="/logout">Logout</a>
		<a href="/individualTimetable">Plan</a>`)
	got := MenuCandidates(doc, portalBase, flowID)
	if len(got) != 2 {
		t.Fatalf("MenuCandidates = %d, want 2", len(got))
	}
	if got[0].Score != 1 || got[1].Score != 2 {
		t.Errorf("scores = %d, %d; want 1, 2", got[0].Score, got[1].Score)
	}
}
