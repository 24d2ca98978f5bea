// Package refresh keeps the web store's timetable snapshot current on a
// cron schedule.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "urconnect/internal/log"
	"urconnect/internal/web"
)

// FetchFunc produces a fresh snapshot.
type FetchFunc func(ctx context.Context) (web.Snapshot, error)

// Refresher runs a FetchFunc and publishes its result. Runs never overlap.
type Refresher struct {
	fetch   FetchFunc
	store   *web.Store
	timeout time.Duration

	running sync.Mutex
}

// New creates a refresher. timeout bounds a single run; zero means no
// bound beyond the caller's context.
func New(fetch FetchFunc, store *web.Store, timeout time.Duration) *Refresher {
	return &Refresher{fetch: fetch, store: store, timeout: timeout}
}

// RunOnce fetches once. On failure the error is recorded in the store and
// the previous snapshot stays in place.
func (r *Refresher) RunOnce(ctx context.Context) error {
	if !r.running.TryLock() {
		appLog.Warn("refresh already running, skipping")
		return nil
	}
	defer r.running.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	snap, err := r.fetch(ctx)
	if err != nil {
		r.store.SetError(err)
		appLog.Error("refresh failed", err, "elapsed", time.Since(start))
		return err
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	r.store.Set(snap)
	appLog.Info("refresh complete",
		"entries", len(snap.Entries),
		"source", snap.Source,
		"elapsed", time.Since(start),
	)
	return nil
}

// Start schedules RunOnce on spec (standard five-field cron syntax or a
// descriptor like "@every 1h") in loc. The scheduler stops when ctx is
// cancelled.
func (r *Refresher) Start(ctx context.Context, spec string, loc *time.Location) (*cron.Cron, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() { _ = r.RunOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("refresh scheduled", "spec", spec, "timezone", loc.String())

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Debug("refresh scheduler stopped")
	}()
	return c, nil
}

// cronLogger routes scheduler logs through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
