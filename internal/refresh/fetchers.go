package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"urconnect/internal/config"
	"urconnect/internal/ics"
	appLog "urconnect/internal/log"
	"urconnect/internal/portal"
	"urconnect/internal/web"
)

// ErrMissingCredentials is returned when neither the config nor the
// environment provide a portal login.
var ErrMissingCredentials = errors.New("refresh: portal credentials missing (set credentials in config or " +
	config.EnvUsername + "/" + config.EnvPassword + ")")

// PortalFetcher logs in with a fresh session on every call and downloads
// the timetable. archive and renderer are optional.
func PortalFetcher(cfg *config.Config, archive *ics.Archive, renderer portal.PageRenderer) FetchFunc {
	return func(ctx context.Context) (web.Snapshot, error) {
		if cfg.Credentials.Username == "" || cfg.Credentials.Password == "" {
			return web.Snapshot{}, ErrMissingCredentials
		}

		opts := portal.OptionsFromConfig(cfg)
		if archive != nil {
			opts.Archive = archive
		}
		opts.Renderer = renderer

		client, err := portal.New(opts)
		if err != nil {
			return web.Snapshot{}, err
		}
		if err := client.Login(ctx, cfg.Credentials.Username, cfg.Credentials.Password); err != nil {
			return web.Snapshot{}, err
		}
		feed, err := client.FetchFeed(ctx)
		if err != nil {
			return web.Snapshot{}, err
		}
		return web.Snapshot{
			Events:    feed.Events,
			Entries:   feed.Entries(),
			Source:    appLog.RedactURL(feed.URL.String()),
			FetchedAt: time.Now(),
		}, nil
	}
}

// ArchiveFetcher re-parses the archived feed without contacting the portal.
func ArchiveFetcher(archive *ics.Archive, loc *time.Location) FetchFunc {
	return func(context.Context) (web.Snapshot, error) {
		body, meta, err := archive.Load()
		if err != nil {
			return web.Snapshot{}, fmt.Errorf("refresh: load archive %s: %w", archive.Dir(), err)
		}
		events := ics.ParseEvents(string(body), loc)
		entries := ics.Entries(events)
		if len(entries) == 0 {
			return web.Snapshot{}, portal.ErrEmptyFeed
		}
		return web.Snapshot{
			Events:    events,
			Entries:   entries,
			Source:    meta.Source,
			FetchedAt: meta.UpdatedAt,
		}, nil
	}
}
