package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"urconnect/internal/config"
	"urconnect/internal/ics"
	appLog "urconnect/internal/log"
	"urconnect/internal/model"
	"urconnect/internal/portal"
)

const calendarName = "Stundenplan"

// Server exposes the current timetable snapshot over HTTP.
type Server struct {
	cfg   *config.Config
	store *Store
	mux   *http.ServeMux

	// In-memory cache for /api/occurrences so repeated polls do not
	// re-expand recurrences.
	occMu    sync.RWMutex
	occCache *occurrencesCache
}

// NewServer constructs a new Server reading from store.
func NewServer(cfg *config.Config, store *Store) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="urconnect", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the API on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, store *Store) error {
	s := NewServer(cfg, store)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/entries", s.handleEntries)
	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /timetable.txt", s.handleText)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// entriesResponse is the JSON response shape for /api/entries.
type entriesResponse struct {
	Entries []model.ScheduleEntry `json:"entries"`
	Status
}

// snapshotOrUnavailable writes 503 when no timetable has been fetched yet.
func (s *Server) snapshotOrUnavailable(w http.ResponseWriter) (Snapshot, bool) {
	snap, ok := s.store.Snapshot()
	if !ok {
		msg := "timetable not fetched yet"
		if st := s.store.Status(); st.LastError != "" {
			msg += ": " + st.LastError
		}
		writeError(w, http.StatusServiceUnavailable, msg)
		return Snapshot{}, false
	}
	return snap, true
}

func (s *Server) handleEntries(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshotOrUnavailable(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse{
		Entries: snap.Entries,
		Status:  s.store.Status(),
	})
}

func (s *Server) handleText(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshotOrUnavailable(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(portal.FormatEntries(snap.Entries) + "\n"))
}

func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshotOrUnavailable(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="timetable.ics"`)
	_, _ = w.Write([]byte(ics.BuildCalendar(calendarName, snap.Events)))
}

// occurrencesResponse is the JSON response shape for /api/occurrences.
type occurrencesResponse struct {
	Occurrences     []model.Occurrence `json:"occurrences"`
	Truncated       []string           `json:"truncated,omitempty"`
	RangeStart      time.Time          `json:"range_start"`
	RangeEnd        time.Time          `json:"range_end"`
	DisplayTimeZone string             `json:"display_timezone"`
}

// occurrencesCache holds the last response and the request it answered.
type occurrencesCache struct {
	days, backfill int
	fetchedAt      time.Time
	resp           occurrencesResponse
	updatedAt      time.Time
}

// handleOccurrences expands the snapshot into concrete occurrences.
//
// GET /api/occurrences?days=14&backfill=1
//   - days:     how many days ahead (default horizon_days)
//   - backfill: how many past days to include (default 1)
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOrUnavailable(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), s.cfg.HorizonDays)
	if days <= 0 {
		days = s.cfg.HorizonDays
	}
	backfill := parseIntDefault(q.Get("backfill"), 1)
	if backfill < 0 {
		backfill = 0
	}

	const occurrencesCacheTTL = 30 * time.Second
	s.occMu.RLock()
	oc := s.occCache
	s.occMu.RUnlock()
	if oc != nil && oc.days == days && oc.backfill == backfill &&
		oc.fetchedAt.Equal(snap.FetchedAt) && time.Since(oc.updatedAt) < occurrencesCacheTTL {
		writeJSON(w, http.StatusOK, oc.resp)
		return
	}

	loc := s.cfg.Location()
	now := time.Now().In(loc)
	rangeStart := now.AddDate(0, 0, -backfill)
	rangeEnd := now.AddDate(0, 0, days)

	res, err := ics.ExpandOccurrences(snap.Events, ics.ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	})
	if err != nil {
		appLog.Error("api occurrences: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand entries")
		return
	}

	resp := occurrencesResponse{
		Occurrences:     res.Occurrences,
		Truncated:       res.TruncatedEvents,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		DisplayTimeZone: loc.String(),
	}
	if resp.Occurrences == nil {
		resp.Occurrences = []model.Occurrence{}
	}

	s.occMu.Lock()
	s.occCache = &occurrencesCache{
		days:      days,
		backfill:  backfill,
		fetchedAt: snap.FetchedAt,
		resp:      resp,
		updatedAt: time.Now(),
	}
	s.occMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
