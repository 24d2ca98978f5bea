package web

import (
	"sync"
	"time"

	"urconnect/internal/ics"
	"urconnect/internal/model"
)

// Snapshot is one successfully downloaded timetable.
type Snapshot struct {
	Events    []ics.Event
	Entries   []model.ScheduleEntry
	Source    string
	FetchedAt time.Time
}

// Status describes the most recent refresh attempt.
type Status struct {
	FetchedAt   time.Time `json:"fetched_at,omitzero"`
	LastAttempt time.Time `json:"last_attempt,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

// Store holds the current snapshot. The refresher writes it while HTTP
// handlers read it.
type Store struct {
	mu          sync.RWMutex
	snap        *Snapshot
	lastAttempt time.Time
	lastErr     error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the snapshot and clears the last error.
func (s *Store) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &snap
	s.lastAttempt = snap.FetchedAt
	s.lastErr = nil
}

// SetError records a failed refresh. The previous snapshot is kept.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAttempt = time.Now()
	s.lastErr = err
}

// Snapshot returns the current snapshot, if any.
func (s *Store) Snapshot() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return Snapshot{}, false
	}
	return *s.snap, true
}

// Status reports the outcome of the latest refresh.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{LastAttempt: s.lastAttempt}
	if s.snap != nil {
		st.FetchedAt = s.snap.FetchedAt
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
