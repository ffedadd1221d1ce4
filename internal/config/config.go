// Package config loads server settings from defaults, an optional YAML file
// and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server settings
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Services ServicesConfig `yaml:"services"`
	Log      LogConfig      `yaml:"log"`
	Limits   LimitsConfig   `yaml:"limits"`
	Suggest  SuggestConfig  `yaml:"suggest"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ServicesConfig points at the external collaborators.
// An empty PreferencesURL selects the built-in keyword extractor.
type ServicesConfig struct {
	OSRMURL        string `yaml:"osrm_url"`
	OverpassURL    string `yaml:"overpass_url"`
	NominatimURL   string `yaml:"nominatim_url"`
	PreferencesURL string `yaml:"preferences_url"`
	TravelMode     string `yaml:"travel_mode"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LimitsConfig struct {
	MaxConcurrency  int           `yaml:"max_concurrency"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	Retries         int           `yaml:"retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	PlanTimeout     time.Duration `yaml:"plan_timeout"`
	OptimizeTimeout time.Duration `yaml:"optimize_timeout"`
}

type SuggestConfig struct {
	SamplesPerSegment int           `yaml:"samples_per_segment"`
	RadiusMeters      int           `yaml:"radius_meters"`
	Limit             int           `yaml:"limit"`
	MinScore          float64       `yaml:"min_score"`
	PlaceCacheTTL     time.Duration `yaml:"place_cache_ttl"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    filepath.Join("data", "itinerary.db"),
		},
		Services: ServicesConfig{
			OSRMURL:      "https://router.project-osrm.org",
			OverpassURL:  "https://overpass-api.de/api/interpreter",
			NominatimURL: "https://nominatim.openstreetmap.org",
			TravelMode:   "driving",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Limits: LimitsConfig{
			MaxConcurrency:  8,
			RateLimitPerSec: 10,
			CallTimeout:     10 * time.Second,
			Retries:         1,
			RetryBackoff:    500 * time.Millisecond,
			PlanTimeout:     60 * time.Second,
			OptimizeTimeout: 60 * time.Second,
		},
		Suggest: SuggestConfig{
			SamplesPerSegment: 5,
			RadiusMeters:      5000,
			Limit:             5,
			MinScore:          0.1,
			PlaceCacheTTL:     24 * time.Hour,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"SERVER_ADDR":     &c.Server.Addr,
		"JWT_SECRET":      &c.Server.JWTSecret,
		"DB_DRIVER":       &c.Database.Driver,
		"DB_DSN":          &c.Database.DSN,
		"OSRM_URL":        &c.Services.OSRMURL,
		"OVERPASS_URL":    &c.Services.OverpassURL,
		"NOMINATIM_URL":   &c.Services.NominatimURL,
		"PREFERENCES_URL": &c.Services.PreferencesURL,
		"TRAVEL_MODE":     &c.Services.TravelMode,
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FORMAT":      &c.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("MAX_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_CONCURRENCY %q: %w", v, err)
		}
		c.Limits.MaxConcurrency = n
	}
	if v, ok := lookup("RATE_LIMIT_PER_SEC"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_PER_SEC %q: %w", v, err)
		}
		c.Limits.RateLimitPerSec = f
	}

	durations := map[string]*time.Duration{
		"CALL_TIMEOUT":     &c.Limits.CallTimeout,
		"PLAN_TIMEOUT":     &c.Limits.PlanTimeout,
		"OPTIMIZE_TIMEOUT": &c.Limits.OptimizeTimeout,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = d
	}
	return nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server addr is required"))
	}
	if c.Services.OSRMURL == "" || c.Services.OverpassURL == "" || c.Services.NominatimURL == "" {
		errs = append(errs, errors.New("osrm, overpass and nominatim urls are required"))
	}
	switch c.Services.TravelMode {
	case "driving", "walking", "cycling":
	default:
		errs = append(errs, fmt.Errorf("unsupported travel mode %q", c.Services.TravelMode))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.Log.Format))
	}

	if c.Limits.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("max_concurrency must be positive"))
	}
	if c.Limits.RateLimitPerSec < 0 {
		errs = append(errs, errors.New("rate_limit_per_sec must not be negative"))
	}
	if c.Limits.CallTimeout <= 0 || c.Limits.PlanTimeout <= 0 || c.Limits.OptimizeTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.Limits.Retries < 0 || c.Limits.Retries > 1 {
		errs = append(errs, errors.New("retries must be 0 or 1"))
	}
	if c.Limits.RetryBackoff < 0 {
		errs = append(errs, errors.New("retry_backoff must not be negative"))
	}

	if c.Suggest.SamplesPerSegment <= 0 {
		errs = append(errs, errors.New("samples_per_segment must be positive"))
	}
	if c.Suggest.RadiusMeters <= 0 || c.Suggest.Limit <= 0 {
		errs = append(errs, errors.New("radius_meters and limit must be positive"))
	}
	if c.Suggest.MinScore < 0 || c.Suggest.MinScore >= 1 {
		errs = append(errs, errors.New("min_score must be in [0, 1)"))
	}
	if c.Suggest.PlaceCacheTTL < 0 {
		errs = append(errs, errors.New("place_cache_ttl must not be negative"))
	}

	return errors.Join(errs...)
}
