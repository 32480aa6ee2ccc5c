// Package config holds the run configuration: catalog source, time window,
// selection policy, scan threshold and renderer settings. Values come from
// defaults, an optional config file, ASTRAL_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidConfig is wrapped by every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyTimeGrid is returned when the window has no samples.
	ErrEmptyTimeGrid = errors.New("time grid is empty")
)

// EnvPrefix is the prefix for environment overrides (ASTRAL_SCAN_THRESHOLD_KM).
const EnvPrefix = "ASTRAL"

// Frame names accepted by Propagation.Frame.
const (
	FrameTEME = "teme"
	FrameECEF = "ecef"
)

// Gravity model names accepted by Propagation.Gravity.
const (
	GravityWGS72 = "wgs72"
	GravityWGS84 = "wgs84"
)

// CatalogConfig describes where orbital elements come from.
type CatalogConfig struct {
	SourceURL string        `mapstructure:"source_url"`
	ExtraURLs []string      `mapstructure:"extra_urls"`
	File      string        `mapstructure:"file"` // local TLE file; skips the fetch when set
	CacheDir  string        `mapstructure:"cache_dir"`
	MaxFiles  int           `mapstructure:"max_files"`
	MaxAge    time.Duration `mapstructure:"max_age"` // 0 disables cache reuse
}

// WindowConfig is the sampled time window.
type WindowConfig struct {
	Start   time.Time     `mapstructure:"-"` // decoded with viper.GetTime
	Step    time.Duration `mapstructure:"step"`
	Samples int           `mapstructure:"samples"`
}

// SelectionConfig picks tracked objects and their colors.
type SelectionConfig struct {
	Count   int      `mapstructure:"count"`
	Palette []string `mapstructure:"palette"`
}

// ScanConfig configures the proximity sweep.
type ScanConfig struct {
	ThresholdKm float64 `mapstructure:"threshold_km"`
}

// PropagationConfig configures the trajectory source.
type PropagationConfig struct {
	Workers int    `mapstructure:"workers"`
	Frame   string `mapstructure:"frame"`
	Gravity string `mapstructure:"gravity"`
}

// RenderConfig configures playback.
type RenderConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	Loop          bool          `mapstructure:"loop"`
	LimitKm       float64       `mapstructure:"limit_km"`
	EarthRadiusKm float64       `mapstructure:"earth_radius_km"`
	Azimuth       float64       `mapstructure:"azimuth_deg"`
	Elevation     float64       `mapstructure:"elevation_deg"`
}

// ServeConfig configures HTTP playback.
type ServeConfig struct {
	Addr               string        `mapstructure:"addr"`
	AuthToken          string        `mapstructure:"auth_token"` // empty disables auth
	TrustProxy         bool          `mapstructure:"trust_proxy"`
	MaxConcurrentPerIP int           `mapstructure:"max_concurrent_per_ip"`
	KeepaliveInterval  time.Duration `mapstructure:"keepalive_interval"`
	RefreshInterval    time.Duration `mapstructure:"refresh_interval"` // 0 computes the scene once
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Config is the complete run configuration.
type Config struct {
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Window      WindowConfig      `mapstructure:"window"`
	Selection   SelectionConfig   `mapstructure:"selection"`
	Scan        ScanConfig        `mapstructure:"scan"`
	Propagation PropagationConfig `mapstructure:"propagation"`
	Render      RenderConfig      `mapstructure:"render"`
	Serve       ServeConfig       `mapstructure:"serve"`
	Log         LogConfig         `mapstructure:"log"`
}

// DefaultPalette is the five-color assignment used for tracked objects.
var DefaultPalette = []string{"red", "blue", "green", "orange", "purple"}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("catalog.source_url", "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle")
	v.SetDefault("catalog.extra_urls", []string{})
	v.SetDefault("catalog.file", "")
	v.SetDefault("catalog.cache_dir", "/tmp/astral/tle")
	v.SetDefault("catalog.max_files", 5)
	v.SetDefault("catalog.max_age", 24*time.Hour)

	v.SetDefault("window.start", "2025-04-19T00:00:00Z")
	v.SetDefault("window.step", 15*time.Minute)
	v.SetDefault("window.samples", 96)

	v.SetDefault("selection.count", 5)
	v.SetDefault("selection.palette", DefaultPalette)

	v.SetDefault("scan.threshold_km", 50.0)

	v.SetDefault("propagation.workers", 0) // 0 means runtime.NumCPU()
	v.SetDefault("propagation.frame", FrameTEME)
	v.SetDefault("propagation.gravity", GravityWGS72)

	v.SetDefault("render.interval", 100*time.Millisecond)
	v.SetDefault("render.loop", true)
	v.SetDefault("render.limit_km", 20000.0)
	v.SetDefault("render.earth_radius_km", 6371.0)
	v.SetDefault("render.azimuth_deg", -60.0)
	v.SetDefault("render.elevation_deg", 30.0)

	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.auth_token", "")
	v.SetDefault("serve.trust_proxy", false)
	v.SetDefault("serve.max_concurrent_per_ip", 10)
	v.SetDefault("serve.keepalive_interval", 30*time.Second)
	v.SetDefault("serve.refresh_interval", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and decodes v into a validated Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Window.Start = v.GetTime("window.start").UTC()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the validated default configuration.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v, "")
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Window.Samples <= 0 {
		return fmt.Errorf("%w: %w: window.samples = %d", ErrInvalidConfig, ErrEmptyTimeGrid, c.Window.Samples)
	}
	if c.Window.Step <= 0 {
		return fmt.Errorf("%w: window.step must be positive, got %s", ErrInvalidConfig, c.Window.Step)
	}
	if c.Window.Start.IsZero() {
		return fmt.Errorf("%w: window.start is required", ErrInvalidConfig)
	}
	if c.Selection.Count < 1 {
		return fmt.Errorf("%w: selection.count must be at least 1, got %d", ErrInvalidConfig, c.Selection.Count)
	}
	if len(c.Selection.Palette) == 0 {
		return fmt.Errorf("%w: selection.palette is empty", ErrInvalidConfig)
	}
	if c.Catalog.File == "" && c.Catalog.SourceURL == "" {
		return fmt.Errorf("%w: one of catalog.file or catalog.source_url is required", ErrInvalidConfig)
	}
	switch c.Propagation.Frame {
	case FrameTEME, FrameECEF:
	default:
		return fmt.Errorf("%w: propagation.frame %q (want %s or %s)", ErrInvalidConfig, c.Propagation.Frame, FrameTEME, FrameECEF)
	}
	switch c.Propagation.Gravity {
	case GravityWGS72, GravityWGS84:
	default:
		return fmt.Errorf("%w: propagation.gravity %q (want %s or %s)", ErrInvalidConfig, c.Propagation.Gravity, GravityWGS72, GravityWGS84)
	}
	if c.Propagation.Workers < 0 {
		return fmt.Errorf("%w: propagation.workers must not be negative", ErrInvalidConfig)
	}
	if c.Render.Interval <= 0 {
		return fmt.Errorf("%w: render.interval must be positive, got %s", ErrInvalidConfig, c.Render.Interval)
	}
	if c.Render.LimitKm <= 0 || c.Render.EarthRadiusKm <= 0 {
		return fmt.Errorf("%w: render.limit_km and render.earth_radius_km must be positive", ErrInvalidConfig)
	}
	if c.Serve.RefreshInterval < 0 {
		return fmt.Errorf("%w: serve.refresh_interval must not be negative", ErrInvalidConfig)
	}
	if c.Serve.MaxConcurrentPerIP < 1 {
		return fmt.Errorf("%w: serve.max_concurrent_per_ip must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// ColorFor returns the palette color for object i. Indices past the end of
// the palette wrap around.
func (s SelectionConfig) ColorFor(i int) string {
	if len(s.Palette) == 0 || i < 0 {
		return ""
	}
	return s.Palette[i%len(s.Palette)]
}
