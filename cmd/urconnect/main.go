package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"urconnect/internal/capture"
	"urconnect/internal/config"
	"urconnect/internal/ics"
	appLog "urconnect/internal/log"
	"urconnect/internal/portal"
	"urconnect/internal/refresh"
	"urconnect/internal/web"
)

// refreshTimeout bounds one complete login and download.
const refreshTimeout = 5 * time.Minute

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	offline    bool
	noColor    bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.noColor {
		color.NoColor = true
	}

	appLog.Info("effective config",
		"portal", conf.Portal.BaseURL,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"archive_dir", conf.ArchiveDir,
		"render", conf.Render.Enabled,
		"once", flags.once,
		"offline", flags.offline,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	fetch := buildFetcher(conf, flags.offline)

	if flags.once {
		os.Exit(runOnce(ctx, fetch))
	}
	if err := serve(ctx, conf, fetch); err != nil {
		appLog.Error("server stopped", err)
		os.Exit(1)
	}
	appLog.Info("urconnect exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./urconnect.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch the timetable once, print it and exit")
	flag.BoolVar(&cfg.offline, "offline", false, "Use the archived feed instead of logging in")
	flag.BoolVar(&cfg.noColor, "no-color", false, "Disable colored output")

	flag.Parse()

	return cfg
}

func buildFetcher(conf *config.Config, offline bool) refresh.FetchFunc {
	var archive *ics.Archive
	if conf.ArchiveDir != "" || offline {
		archive = ics.NewArchive(conf.ArchiveDir)
	}
	if offline {
		return refresh.ArchiveFetcher(archive, conf.Location())
	}

	var renderer portal.PageRenderer
	if conf.Render.Enabled {
		renderer = &capture.Renderer{
			UserAgent: conf.HTTP.UserAgent,
			Timeout:   conf.Render.Timeout,
		}
	}
	return refresh.PortalFetcher(conf, archive, renderer)
}

func runOnce(ctx context.Context, fetch refresh.FetchFunc) int {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	snap, err := fetch(ctx)
	if err != nil {
		fmt.Fprintf(color.Error, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
		return 1
	}
	printEntries(color.Output, snap.Entries)
	return 0
}

func serve(ctx context.Context, conf *config.Config, fetch refresh.FetchFunc) error {
	store := web.NewStore()
	r := refresh.New(fetch, store, refreshTimeout)

	go func() { _ = r.RunOnce(ctx) }()
	if _, err := r.Start(ctx, conf.RefreshCron, conf.Location()); err != nil {
		return err
	}
	return web.StartServer(ctx, conf, store)
}
