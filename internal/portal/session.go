// Package portal drives a HISinOne campus portal session: it logs in,
// walks to the personal timetable and downloads its calendar export.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"urconnect/internal/config"
	"urconnect/internal/discover"
	"urconnect/internal/dom"
	"urconnect/internal/ics"
	appLog "urconnect/internal/log"
	"urconnect/internal/model"
)

// State is the navigation progress of a session. Transitions are strictly
// sequential.
type State int

const (
	Unauthenticated State = iota
	LoginSubmitted
	LandingLoaded
	EntryLoaded
	FullTimetableLoaded
	CalendarDownloaded
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case LoginSubmitted:
		return "login submitted"
	case LandingLoaded:
		return "landing loaded"
	case EntryLoaded:
		return "entry loaded"
	case FullTimetableLoaded:
		return "full timetable loaded"
	case CalendarDownloaded:
		return "calendar downloaded"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// FeedArchive stores successfully parsed feeds.
type FeedArchive interface {
	Save(sourceURL string, body []byte) (changed bool, err error)
}

// PageRenderer loads a page in a real browser with the session cookies and
// returns the resulting DOM as HTML.
type PageRenderer interface {
	Render(ctx context.Context, pageURL string, cookies []*http.Cookie) (string, error)
}

// Options configures a Client. Zero fields take the defaults of
// config.DefaultConfig.
type Options struct {
	BaseURL       string
	StartPath     string
	LoginPath     string
	TimetablePath string
	FlowID        string
	TokenField    string

	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string

	// Location is the display zone for parsed entries.
	Location *time.Location

	// DebugDumpDir receives both timetable pages when the calendar export
	// link cannot be found.
	DebugDumpDir string

	Archive  FeedArchive
	Renderer PageRenderer
}

// OptionsFromConfig maps the application config onto client options.
// Archive and Renderer are left for the caller to attach.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:        cfg.Portal.BaseURL,
		StartPath:      cfg.Portal.StartPath,
		LoginPath:      cfg.Portal.LoginPath,
		TimetablePath:  cfg.Portal.TimetablePath,
		FlowID:         cfg.Portal.FlowID,
		TokenField:     cfg.Portal.TokenField,
		Timeout:        cfg.HTTP.Timeout,
		UserAgent:      cfg.HTTP.UserAgent,
		AcceptLanguage: cfg.HTTP.AcceptLanguage,
		Location:       cfg.Location(),
		DebugDumpDir:   cfg.DebugDumpDir,
	}
}

func (o Options) withDefaults() Options {
	d := config.DefaultConfig()
	if o.BaseURL == "" {
		o.BaseURL = d.Portal.BaseURL
	}
	if o.StartPath == "" {
		o.StartPath = d.Portal.StartPath
	}
	if o.LoginPath == "" {
		o.LoginPath = d.Portal.LoginPath
	}
	if o.TimetablePath == "" {
		o.TimetablePath = d.Portal.TimetablePath
	}
	if o.FlowID == "" {
		o.FlowID = d.Portal.FlowID
	}
	if o.TokenField == "" {
		o.TokenField = d.Portal.TokenField
	}
	if o.Timeout <= 0 {
		o.Timeout = d.HTTP.Timeout
	}
	if o.UserAgent == "" {
		o.UserAgent = d.HTTP.UserAgent
	}
	if o.AcceptLanguage == "" {
		o.AcceptLanguage = d.HTTP.AcceptLanguage
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Client is one portal session. It owns its cookie jar; independent
// clients can coexist. A Client is not safe for concurrent use.
type Client struct {
	opts Options
	http *http.Client

	base      *url.URL
	start     *url.URL
	login     *url.URL
	timetable *url.URL

	state   State
	flowKey string
}

// New creates an unauthenticated client.
func New(opts Options) (*Client, error) {
	opts = opts.withDefaults()

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("portal: invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("portal: base URL %q must be http(s)", opts.BaseURL)
	}

	resolve := func(p string) (*url.URL, error) {
		ref, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("portal: invalid path %q: %w", p, err)
		}
		return base.ResolveReference(ref), nil
	}
	c := &Client{opts: opts, base: base}
	if c.start, err = resolve(opts.StartPath); err != nil {
		return nil, err
	}
	if c.login, err = resolve(opts.LoginPath); err != nil {
		return nil, err
	}
	if c.timetable, err = resolve(opts.TimetablePath); err != nil {
		return nil, err
	}
	if c.http, err = newHTTPClient(opts.Timeout); err != nil {
		return nil, err
	}
	return c, nil
}

// State reports how far the session has progressed.
func (c *Client) State() State {
	return c.state
}

// FlowKey returns the last observed flow execution key.
func (c *Client) FlowKey() string {
	return c.flowKey
}

// Login submits the portal login form. A non-success status from the
// portal yields *LoginRejectedError.
func (c *Client) Login(ctx context.Context, username, password string) error {
	c.state = Unauthenticated

	start, err := c.get(ctx, c.start, c.start)
	if err != nil {
		return &StepError{Step: StepStartPage, URL: c.start.String(), Err: err}
	}

	doc := dom.Parse(start.body)
	token, err := discover.FindToken(doc, c.opts.TokenField)
	if err != nil {
		return fmt.Errorf("portal: login form: %w", err)
	}
	fields, err := discover.FindCredentialFields(doc)
	if err != nil {
		return fmt.Errorf("portal: login form: %w", err)
	}

	c.setCookies("_clickedButtonId", "undefined")

	form := url.Values{}
	form.Set("userInfo", "")
	form.Set(c.opts.TokenField, token)
	form.Set(fields.Username, username)
	form.Set(fields.Password, password)
	form.Set("submit", "")

	res, err := c.postForm(ctx, c.login, c.start, form)
	if err != nil {
		return &StepError{Step: StepLogin, URL: c.login.String(), Err: err}
	}
	if res.status < 200 || res.status > 299 {
		return &LoginRejectedError{Status: res.status}
	}

	c.setCookies(
		"lastRefresh", strconv.FormatInt(time.Now().UnixMilli(), 10),
		"sessionRefresh", "0",
	)
	c.state = LoginSubmitted
	appLog.Info("portal login submitted", "user_field", fields.Username)
	return nil
}

// Feed is a downloaded and parsed calendar export.
type Feed struct {
	URL    *url.URL
	Body   string
	Events []ics.Event
}

// Entries renders the feed's events as schedule entries.
func (f *Feed) Entries() []model.ScheduleEntry {
	return ics.Entries(f.Events)
}

// Timetable walks to the personal timetable and returns its entries.
func (c *Client) Timetable(ctx context.Context) ([]model.ScheduleEntry, error) {
	feed, err := c.FetchFeed(ctx)
	if err != nil {
		return nil, err
	}
	return feed.Entries(), nil
}

// FetchFeed walks landing page, timetable entry page and full timetable
// page, locates the calendar export and downloads it. The feed must hold at
// least one entry; it is archived when an archive is configured.
func (c *Client) FetchFeed(ctx context.Context) (*Feed, error) {
	if c.state < LoginSubmitted {
		return nil, ErrNotLoggedIn
	}

	landing, err := c.get(ctx, c.start, c.start)
	if err != nil {
		return nil, &StepError{Step: StepLandingPage, URL: c.start.String(), Err: err}
	}
	c.state = LandingLoaded

	entryURL, ok := discover.FindMenuLink(dom.Parse(landing.body), c.base, c.opts.FlowID)
	if !ok {
		entryURL = c.flowURL("")
		appLog.Debug("timetable menu link not found, using default entry", "url", entryURL.String())
	}

	entry, err := c.get(ctx, entryURL, c.start)
	if err != nil {
		return nil, &StepError{Step: StepEntryPage, URL: entryURL.String(), Err: err}
	}
	c.state = EntryLoaded
	entryDoc := dom.Parse(entry.body)

	key, ok := discover.ExtractFlowKey(entryDoc)
	if !ok {
		key, ok = discover.FlowKeyFromURL(entry.finalURL)
	}
	if !ok {
		key, ok = discover.FlowKeyFromURL(entryURL)
	}
	if !ok {
		return nil, ErrFlowKeyNotFound
	}
	c.flowKey = key

	fullURL := c.flowURL(key)
	full, err := c.get(ctx, fullURL, c.start)
	if err != nil {
		return nil, &StepError{Step: StepFullTimetable, URL: fullURL.String(), Err: err}
	}
	c.state = FullTimetableLoaded

	icsURL, ok := discover.FindICSURL(dom.Parse(full.body), c.base)
	if !ok {
		icsURL, ok = discover.FindICSURL(entryDoc, c.base)
	}
	if !ok {
		icsURL, ok = c.findRenderedICSURL(ctx, fullURL)
	}
	if !ok {
		c.dumpPages(full.body, entry.body)
		return nil, ErrCalendarURLNotFound
	}
	appLog.Info("calendar export located", "url", appLog.RedactURL(icsURL.String()))

	cal, err := c.get(ctx, icsURL, fullURL)
	if err != nil {
		return nil, &StepError{Step: StepCalendar, URL: icsURL.String(), Err: err}
	}
	c.state = CalendarDownloaded
	if cal.status < 200 || cal.status > 299 {
		appLog.Warn("calendar download returned non-success status", "status", cal.status)
	}

	feed := &Feed{
		URL:    icsURL,
		Body:   cal.body,
		Events: ics.ParseEvents(cal.body, c.opts.Location),
	}
	if len(feed.Entries()) == 0 {
		return nil, ErrEmptyFeed
	}

	if c.opts.Archive != nil {
		if _, err := c.opts.Archive.Save(icsURL.String(), []byte(cal.body)); err != nil {
			appLog.Error("feed archive failed", err)
		}
	}
	return feed, nil
}

// flowURL builds the timetable flow URL, with the execution key when known.
func (c *Client) flowURL(flowKey string) *url.URL {
	u := *c.timetable
	q := url.Values{}
	q.Set("_flowId", c.opts.FlowID)
	if flowKey != "" {
		q.Set(discover.FlowKeyParam, flowKey)
	}
	u.RawQuery = q.Encode()
	return &u
}

func (c *Client) findRenderedICSURL(ctx context.Context, pageURL *url.URL) (*url.URL, bool) {
	if c.opts.Renderer == nil {
		return nil, false
	}
	html, err := c.opts.Renderer.Render(ctx, pageURL.String(), c.Cookies())
	if err != nil {
		appLog.Error("rendered timetable page unavailable", err)
		return nil, false
	}
	return discover.FindICSURL(dom.Parse(html), c.base)
}

// dumpPages writes both timetable pages for offline inspection.
func (c *Client) dumpPages(full, initial string) {
	dir := c.opts.DebugDumpDir
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		appLog.Error("debug dump failed", err, "dir", dir)
		return
	}
	var errs []error
	for name, body := range map[string]string{
		"debug_timetable_full.html":    full,
		"debug_timetable_initial.html": initial,
	} {
		errs = append(errs, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	if err := errors.Join(errs...); err != nil {
		appLog.Error("debug dump failed", err, "dir", dir)
		return
	}
	appLog.Warn("timetable pages dumped for inspection", "dir", dir)
}

// FormatEntries renders entries one per line.
func FormatEntries(entries []model.ScheduleEntry) string {
	if len(entries) == 0 {
		return "No timetable entries found."
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}
