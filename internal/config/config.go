// Package config layers defaults, an optional YAML file, CLINICPROBE_*
// environment variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ahrdadan/clinicprobe/internal/browser"
	"github.com/ahrdadan/clinicprobe/internal/journey"
)

const (
	// Version is the current version of clinicprobe
	Version = "1"
	// AppName is the application name
	AppName = "clinicprobe"
	// EnvPrefix prefixes every environment variable
	EnvPrefix = "CLINICPROBE"
)

// Config holds all configuration options
type Config struct {
	BaseURL       string        `mapstructure:"base_url"`
	ArtifactsDir  string        `mapstructure:"artifacts_dir"`
	Manifest      string        `mapstructure:"manifest"`
	ProbeRoutes   bool          `mapstructure:"probe_routes"`
	ExpectTimeout time.Duration `mapstructure:"expect_timeout"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`

	Browser  BrowserConfig   `mapstructure:"browser"`
	Personas PersonasConfig  `mapstructure:"personas"`
	Profile  journey.Profile `mapstructure:"profile"`
	Server   ServerConfig    `mapstructure:"server"`
	NATS     NATSConfig      `mapstructure:"nats"`
	Log      LogConfig       `mapstructure:"log"`
}

// BrowserConfig selects and tunes the browser engine
type BrowserConfig struct {
	Engine         string `mapstructure:"engine"`
	Headless       bool   `mapstructure:"headless"`
	ChromeBin      string `mapstructure:"chrome_bin"`
	ChromeRevision int    `mapstructure:"chrome_revision"`
	ViewportWidth  int    `mapstructure:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height"`
}

// PersonasConfig holds the accounts the scenarios sign in with
type PersonasConfig struct {
	Patient journey.Persona `mapstructure:"patient"`
	Doctor  journey.Persona `mapstructure:"doctor"`
	Nurse   journey.Persona `mapstructure:"nurse"`
}

// ServerConfig configures serve mode
type ServerConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	RateLimit int           `mapstructure:"rate_limit"` // run creations per minute
	RateBurst int           `mapstructure:"rate_burst"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
	QueueSize int           `mapstructure:"queue_size"`
}

// NATSConfig enables event export when URL is set
type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Stream string `mapstructure:"stream"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Format  string `mapstructure:"format"`
	Verbose bool   `mapstructure:"verbose"`
}

// DefaultConfig returns the default configuration, which reproduces a bare
// local verification run.
func DefaultConfig() *Config {
	patient, doctor, nurse := journey.DefaultPatient(), journey.DefaultDoctor(), journey.DefaultNurse()
	opts := browser.DefaultOptions()

	return &Config{
		BaseURL:       "http://localhost:5173",
		ArtifactsDir:  "jules-scratch/verification",
		ExpectTimeout: 5 * time.Second,
		ActionTimeout: opts.ActionTimeout,
		Browser: BrowserConfig{
			Engine:         string(opts.Engine),
			Headless:       opts.Headless,
			ViewportWidth:  opts.ViewportWidth,
			ViewportHeight: opts.ViewportHeight,
		},
		Personas: PersonasConfig{Patient: patient, Doctor: doctor, Nurse: nurse},
		Profile:  journey.DefaultProfile(),
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8000,
			RateLimit: 6,
			RateBurst: 2,
			ResultTTL: 24 * time.Hour,
			QueueSize: 32,
		},
		NATS: NATSConfig{Stream: "CLINICPROBE_RUNS"},
		Log:  LogConfig{Format: "json"},
	}
}

// flagKeys maps flag names to configuration keys
var flagKeys = map[string]string{
	"base-url":        "base_url",
	"artifacts":       "artifacts_dir",
	"manifest":        "manifest",
	"probe-routes":    "probe_routes",
	"expect-timeout":  "expect_timeout",
	"action-timeout":  "action_timeout",
	"engine":          "browser.engine",
	"headless":        "browser.headless",
	"chrome-bin":      "browser.chrome_bin",
	"chrome-revision": "browser.chrome_revision",
	"log-format":      "log.format",
	"verbose":         "log.verbose",
	"host":            "server.host",
	"port":            "server.port",
	"rate-limit":      "server.rate_limit",
	"rate-burst":      "server.rate_burst",
	"nats-url":        "nats.url",
}

// RegisterFlags defines the flags shared by every command
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("config", "", "Path to a YAML config file")
	fs.String("base-url", d.BaseURL, "Base URL of the clinic web app")
	fs.String("artifacts", d.ArtifactsDir, "Directory screenshots are written to")
	fs.String("manifest", "", "Also write a YAML run manifest to this path")
	fs.Bool("probe-routes", false, "Also check direct navigation to routes outside each role")
	fs.Duration("expect-timeout", d.ExpectTimeout, "How long assertions wait")
	fs.Duration("action-timeout", d.ActionTimeout, "How long clicks and fills wait for their element")
	fs.String("engine", d.Browser.Engine, "Browser engine: rod or playwright")
	fs.Bool("headless", d.Browser.Headless, "Run the browser headless")
	fs.String("chrome-bin", "", "Chrome/Chromium binary to launch instead of the managed one")
	fs.Int("chrome-revision", 0, "Chromium revision to download (0 uses default)")
	fs.String("log-format", d.Log.Format, "Log encoding: json or console")
	fs.BoolP("verbose", "v", false, "Enable debug logging")
}

// RegisterServerFlags defines the flags of serve mode
func RegisterServerFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("host", d.Server.Host, "Host address to bind the server")
	fs.Int("port", d.Server.Port, "Port number for the server")
	fs.Int("rate-limit", d.Server.RateLimit, "Run creations allowed per minute")
	fs.Int("rate-burst", d.Server.RateBurst, "Run creations allowed in a burst")
	fs.String("nats-url", "", "NATS server URL; enables event export")
}

// NewViper returns a viper instance carrying the defaults and reading
// CLINICPROBE_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("artifacts_dir", d.ArtifactsDir)
	v.SetDefault("manifest", d.Manifest)
	v.SetDefault("probe_routes", d.ProbeRoutes)
	v.SetDefault("expect_timeout", d.ExpectTimeout)
	v.SetDefault("action_timeout", d.ActionTimeout)

	v.SetDefault("browser.engine", d.Browser.Engine)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.chrome_bin", d.Browser.ChromeBin)
	v.SetDefault("browser.chrome_revision", d.Browser.ChromeRevision)
	v.SetDefault("browser.viewport_width", d.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", d.Browser.ViewportHeight)

	for role, p := range map[string]journey.Persona{
		"patient": d.Personas.Patient,
		"doctor":  d.Personas.Doctor,
		"nurse":   d.Personas.Nurse,
	} {
		v.SetDefault("personas."+role+".name", p.Name)
		v.SetDefault("personas."+role+".email", p.Email)
		v.SetDefault("personas."+role+".password", p.Password)
	}

	v.SetDefault("profile.height", d.Profile.Height)
	v.SetDefault("profile.blood_type", d.Profile.BloodType)
	v.SetDefault("profile.gender", d.Profile.Gender)
	v.SetDefault("profile.address", d.Profile.Address)
	v.SetDefault("profile.campus", d.Profile.Campus)
	v.SetDefault("profile.department", d.Profile.Department)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)
	v.SetDefault("server.result_ttl", d.Server.ResultTTL)
	v.SetDefault("server.queue_size", d.Server.QueueSize)

	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.stream", d.NATS.Stream)

	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.verbose", d.Log.Verbose)
}

// BindFlags binds every known flag present in fs to its configuration key
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads configFile when set, then decodes and validates everything
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Personas.Patient.Role = journey.RolePatient
	cfg.Personas.Doctor.Role = journey.RoleDoctor
	cfg.Personas.Nurse.Role = journey.RoleNurse
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("invalid base url %q: %w", c.BaseURL, err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("base url %q must use http or https", c.BaseURL))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("base url %q has no host", c.BaseURL))
	}

	if _, err := browser.ParseEngine(c.Browser.Engine); err != nil {
		errs = append(errs, err)
	}
	if c.ArtifactsDir == "" {
		errs = append(errs, errors.New("artifacts directory must not be empty"))
	}
	if c.ExpectTimeout <= 0 {
		errs = append(errs, errors.New("expect timeout must be positive"))
	}
	if c.ActionTimeout <= 0 {
		errs = append(errs, errors.New("action timeout must be positive"))
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		errs = append(errs, errors.New("viewport must be positive"))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	for _, p := range []journey.Persona{c.Personas.Patient, c.Personas.Doctor, c.Personas.Nurse} {
		if p.Email == "" || p.Password == "" {
			errs = append(errs, fmt.Errorf("%s persona needs an email and a password", p.Role))
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Server.RateLimit < 1 {
		errs = append(errs, errors.New("rate limit must be at least 1"))
	}

	return errors.Join(errs...)
}

// BrowserOptions converts the browser settings for the launcher
func (c *Config) BrowserOptions() browser.Options {
	engine, _ := browser.ParseEngine(c.Browser.Engine)
	return browser.Options{
		Engine:         engine,
		Headless:       c.Browser.Headless,
		ChromeBin:      c.Browser.ChromeBin,
		ChromeRevision: c.Browser.ChromeRevision,
		ActionTimeout:  c.ActionTimeout,
		ViewportWidth:  c.Browser.ViewportWidth,
		ViewportHeight: c.Browser.ViewportHeight,
	}
}

// Plan builds the scenario plan
func (c *Config) Plan() journey.Plan {
	return journey.Plan{
		BaseURL:     c.BaseURL,
		Patient:     c.Personas.Patient,
		Doctor:      c.Personas.Doctor,
		Nurse:       c.Personas.Nurse,
		Profile:     c.Profile,
		ProbeRoutes: c.ProbeRoutes,
	}
}

// ListenAddr returns the serve mode bind address
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PublicURL is the base URL used in API responses
func (c *Config) PublicURL() string {
	host := c.Server.Host
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}
