package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"urconnect/internal/config"
	"urconnect/internal/ics"
)

// feedAroundNow builds a weekly event that started a week ago, two hours
// later in the day than now, so its next occurrences lie ahead.
func feedAroundNow(t *testing.T, loc *time.Location) string {
	t.Helper()
	start := time.Now().In(loc).AddDate(0, 0, -7).Add(2 * time.Hour).Truncate(time.Minute)
	return "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:w1\r\nSUMMARY:Seminar\r\nLOCATION:R 1\r\n" +
		"DTSTART:" + start.UTC().Format("20060102T150405Z") + "\r\n" +
		"DTEND:" + start.Add(90*time.Minute).UTC().Format("20060102T150405Z") + "\r\n" +
		"RRULE:FREQ=WEEKLY;COUNT=4\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
}

func newTestServer(t *testing.T, withSnapshot bool) (*Server, *Store, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	store := NewStore()
	if withSnapshot {
		loc := cfg.Location()
		events := ics.ParseEvents(feedAroundNow(t, loc), loc)
		store.Set(Snapshot{
			Events:    events,
			Entries:   ics.Entries(events),
			Source:    "https://campusportal.example/...(redacted)",
			FetchedAt: time.Now(),
		})
	}
	return NewServer(cfg, store), store, cfg
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, false)
	rec := serve(s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestEndpointsWithoutSnapshot(t *testing.T) {
	s, store, _ := newTestServer(t, false)
	store.SetError(errors.New("portal: login failed with status 403"))

	for _, path := range []string{"/api/entries", "/api/occurrences", "/timetable.txt", "/calendar.ics"} {
		rec := serve(s, http.MethodGet, path)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "status 403") {
			t.Errorf("GET %s body %q lacks last error", path, rec.Body.String())
		}
	}
}

func TestEntries(t *testing.T) {
	s, _, _ := newTestServer(t, true)
	rec := serve(s, http.MethodGet, "/api/entries")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Entries []struct {
			Title      string `json:"title"`
			Location   string `json:"location"`
			Recurrence string `json:"recurrence"`
		} `json:"entries"`
		FetchedAt time.Time `json:"fetched_at"`
		LastError string    `json:"last_error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 {
		t.Fatalf("entries = %+v", body.Entries)
	}
	e := body.Entries[0]
	if e.Title != "Seminar" || e.Location != "R 1" || e.Recurrence != "Weekly" {
		t.Errorf("entry = %+v", e)
	}
	if body.FetchedAt.IsZero() || body.LastError != "" {
		t.Errorf("status fields = %v %q", body.FetchedAt, body.LastError)
	}
}

func TestOccurrences(t *testing.T) {
	s, _, cfg := newTestServer(t, true)
	rec := serve(s, http.MethodGet, "/api/occurrences?days=10&backfill=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body occurrencesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.DisplayTimeZone != cfg.Timezone {
		t.Errorf("DisplayTimeZone = %q", body.DisplayTimeZone)
	}
	// Four weekly instances from a week ago: today's and next week's fall
	// inside ten days.
	if len(body.Occurrences) != 2 {
		t.Fatalf("occurrences = %+v", body.Occurrences)
	}
	occ := body.Occurrences[0]
	if !occ.Start.After(time.Now()) {
		t.Errorf("first occurrence %v is not upcoming", occ.Start)
	}
	if !occ.Recurring || occ.Title != "Seminar" || occ.End.Sub(occ.Start) != 90*time.Minute {
		t.Errorf("occurrence = %+v", occ)
	}
	if occ.Start.Before(body.RangeStart) || occ.Start.After(body.RangeEnd) {
		t.Errorf("occurrence %v outside [%v, %v]", occ.Start, body.RangeStart, body.RangeEnd)
	}

	again := serve(s, http.MethodGet, "/api/occurrences?days=10&backfill=0")
	if again.Body.String() != rec.Body.String() {
		t.Error("cached response differs")
	}
}

func TestTextAndCalendar(t *testing.T) {
	s, _, _ := newTestServer(t, true)

	txt := serve(s, http.MethodGet, "/timetable.txt")
	if txt.Code != http.StatusOK || !strings.Contains(txt.Body.String(), "Seminar @ R 1 • Weekly") {
		t.Errorf("GET /timetable.txt = %d %q", txt.Code, txt.Body.String())
	}

	cal := serve(s, http.MethodGet, "/calendar.ics")
	if cal.Code != http.StatusOK {
		t.Fatalf("GET /calendar.ics = %d", cal.Code)
	}
	if ct := cal.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	for _, want := range []string{"X-WR-CALNAME:Stundenplan", "SUMMARY:Seminar", "RRULE:FREQ=WEEKLY;COUNT=4"} {
		if !strings.Contains(cal.Body.String(), want) {
			t.Errorf("calendar missing %q", want)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	s, _, cfg := newTestServer(t, true)
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}

	if rec := serve(s, http.MethodGet, "/health"); rec.Code != http.StatusOK {
		t.Errorf("/health with auth = %d, want 200", rec.Code)
	}
	rec := serve(s, http.MethodGet, "/api/entries")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/entries", nil)
	req.SetBasicAuth("admin", "pw")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Errorf("authenticated = %d, want 200", ok.Code)
	}
}

func TestStoreKeepsSnapshotOnError(t *testing.T) {
	store := NewStore()
	store.Set(Snapshot{FetchedAt: time.Now()})
	store.SetError(errors.New("boom"))

	if _, ok := store.Snapshot(); !ok {
		t.Fatal("snapshot dropped after error")
	}
	if st := store.Status(); st.LastError != "boom" || st.FetchedAt.IsZero() {
		t.Errorf("Status = %+v", st)
	}
}
