package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the stored credentials so secrets do
// not have to live in the YAML file.
const (
	EnvUsername = "UR_USER"
	EnvPassword = "UR_PASSWORD"
)

const (
	defaultBaseURL       = "https://campusportal.ur.de"
	defaultStartPath     = "/qisserver/pages/cs/sys/portal/hisinoneStartPage.faces"
	defaultLoginPath     = "/qisserver/rds?state=user&type=1&category=auth.login"
	defaultTimetablePath = "/qisserver/pages/plan/individualTimetable.xhtml"
	defaultFlowID        = "individualTimetableSchedule-flow"
	defaultTokenField    = "ajax-token"

	defaultTimeout        = 60 * time.Second
	defaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	defaultAcceptLanguage = "en-US,en;q=0.5"

	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Europe/Berlin"
	defaultRefreshCron = "0 */6 * * *"
	defaultHorizonDays = 14
	defaultArchiveDir  = "./var/feed-archive"
	defaultLogLevel    = "info"

	defaultRenderTimeout = 30 * time.Second
)

// PortalConfig locates the portal and the pages the login flow walks.
// Paths are resolved against BaseURL.
type PortalConfig struct {
	BaseURL       string `yaml:"base_url" json:"base_url"`
	StartPath     string `yaml:"start_path" json:"start_path"`
	LoginPath     string `yaml:"login_path" json:"login_path"`
	TimetablePath string `yaml:"timetable_path" json:"timetable_path"`

	// FlowID selects the timetable web flow.
	FlowID string `yaml:"flow_id" json:"flow_id"`

	// TokenField is the name of the hidden anti-forgery input.
	TokenField string `yaml:"token_field" json:"token_field"`
}

// HTTPConfig tunes the session client.
type HTTPConfig struct {
	// Timeout applies to every request as a whole.
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	AcceptLanguage string        `yaml:"accept_language" json:"accept_language"`
}

// Credentials are the portal login. Either field may be overridden by
// UR_USER / UR_PASSWORD.
type Credentials struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// RenderConfig controls the headless browser fallback used when the
// static timetable page does not expose the calendar export link.
type RenderConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Portal      PortalConfig `yaml:"portal" json:"portal"`
	HTTP        HTTPConfig   `yaml:"http" json:"http"`
	Credentials Credentials  `yaml:"credentials" json:"credentials"`

	// Timezone is the IANA timezone entries are displayed in
	// (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is a cron-style schedule string (e.g. "0 */6 * * *")
	// used for periodic refresh in serve mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how many days ahead recurring entries are expanded.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// ArchiveDir keeps the last downloaded feed. Empty disables archiving.
	ArchiveDir string `yaml:"archive_dir" json:"archive_dir"`

	// DebugDumpDir receives the timetable pages when the calendar link
	// cannot be found. Empty disables dumps.
	DebugDumpDir string `yaml:"debug_dump_dir" json:"debug_dump_dir"`

	Render RenderConfig `yaml:"render" json:"render"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			BaseURL:       defaultBaseURL,
			StartPath:     defaultStartPath,
			LoginPath:     defaultLoginPath,
			TimetablePath: defaultTimetablePath,
			FlowID:        defaultFlowID,
			TokenField:    defaultTokenField,
		},
		HTTP: HTTPConfig{
			Timeout:        defaultTimeout,
			UserAgent:      defaultUserAgent,
			AcceptLanguage: defaultAcceptLanguage,
		},
		Timezone:    defaultTimezone,
		LogLevel:    defaultLogLevel,
		Listen:      defaultListen,
		RefreshCron: defaultRefreshCron,
		HorizonDays: defaultHorizonDays,
		ArchiveDir:  defaultArchiveDir,
		Render:      RenderConfig{Timeout: defaultRenderTimeout},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	p := &c.Portal
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if p.BaseURL == "" {
		p.BaseURL = defaultBaseURL
	}
	if p.StartPath == "" {
		p.StartPath = defaultStartPath
	}
	if p.LoginPath == "" {
		p.LoginPath = defaultLoginPath
	}
	if p.TimetablePath == "" {
		p.TimetablePath = defaultTimetablePath
	}
	if p.FlowID == "" {
		p.FlowID = defaultFlowID
	}
	if p.TokenField == "" {
		p.TokenField = defaultTokenField
	}

	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = defaultTimeout
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = defaultUserAgent
	}
	if c.HTTP.AcceptLanguage == "" {
		c.HTTP.AcceptLanguage = defaultAcceptLanguage
	}

	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.Render.Timeout <= 0 {
		c.Render.Timeout = defaultRenderTimeout
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// ApplyEnv overrides credentials with UR_USER / UR_PASSWORD when set.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvUsername); ok && v != "" {
		c.Credentials.Username = v
	}
	if v, ok := os.LookupEnv(EnvPassword); ok && v != "" {
		c.Credentials.Password = v
	}
}

// Location returns the display timezone, falling back to the process's
// local zone when Timezone is not a known IANA name.
func (c *Config) Location() *time.Location {
	if c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
	}
	return time.Local
}

// URL joins a configured path onto the portal base URL.
func (c *Config) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.Portal.BaseURL + path
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied in both cases but never written back.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// via a temp file + rename, with 0600 permissions since it may hold
// credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".urconnect-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
