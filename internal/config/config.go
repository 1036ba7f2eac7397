package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache backends accepted by cache.backend / CACHE_BACKEND.
const (
	CacheBackendNone      = "none"
	CacheBackendInMemory  = "in_memory"
	CacheBackendMemcached = "memcached"
	CacheBackendBolt      = "bolt"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	EnvName    string
	ServerPort string
	// PublicURL is the externally visible base URL. Used for thumbnails when
	// there is no inbound request (cache warming) and, when set, as the base
	// of the OAuth redirect URI.
	PublicURL       string
	StaticImagesDir string

	SlackVerificationToken string
	SlackClientID          string
	SlackClientSecret      string
	SlackOAuthURL          string

	GeocoderAPIKey  string
	GeocoderURL     string
	GeocoderTimeout time.Duration

	ForecastAPIKey  string
	ForecastURL     string
	ForecastTimeout time.Duration
	ForecastPageURL string

	CacheBackend          string
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	BoltPath              string
	CacheWarmInterval     time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout  time.Duration
	HealthWindow     time.Duration
	DegradedErrorPct int

	TrackedLocations []string
}

type fileConfig struct {
	Server struct {
		Port      string `yaml:"port"`
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`

	Static struct {
		ImagesDir string `yaml:"images_dir"`
	} `yaml:"static"`

	Slack struct {
		ClientID string `yaml:"client_id"`
		OAuthURL string `yaml:"oauth_url"`
	} `yaml:"slack"`

	Geocoder struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"geocoder"`

	Forecast struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		PageURL string `yaml:"page_url"`
	} `yaml:"forecast"`

	Cache struct {
		Backend      string `yaml:"backend"`
		TTL          string `yaml:"ttl"`
		WarmInterval string `yaml:"warm_interval"`
		Memcached    struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Bolt struct {
			Path string `yaml:"path"`
		} `yaml:"bolt"`
	} `yaml:"cache"`

	RateLimit struct {
		RPS   int `yaml:"rps"`
		Burst int `yaml:"burst"`
	} `yaml:"rate_limit"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	SlackVerificationToken string `yaml:"slack_verification_token"`
	SlackClientSecret      string `yaml:"slack_client_secret"`
	GoogleMapsAPIKey       string `yaml:"google_maps_api_key"`
	ForecastAPIKey         string `yaml:"forecast_api_key"`
}

// Load reads .env, config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml
// from the working directory. Both YAML files are optional; environment
// variables take precedence over them. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir is Load rooted at dir instead of the working directory.
func LoadDir(dir string) (*Config, error) {
	return load(dir, true)
}

// LoadLookup loads configuration for running lookups outside Slack, such as
// the command-line tool. The Slack verification token is not required.
func LoadLookup() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return load(cwd, false)
}

func load(dir string, requireSlack bool) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	if err := readYAML(filepath.Join(dir, "config", env+".yaml"), &fc); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	var sec secretsFile
	if err := readYAML(filepath.Join(dir, "config", "secrets.yaml"), &sec); err != nil {
		return nil, fmt.Errorf("secrets file: %w", err)
	}

	cfg := &Config{EnvName: env}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.PublicURL = strings.TrimRight(firstNonEmpty(os.Getenv("PUBLIC_URL"), fc.Server.PublicURL), "/")
	cfg.StaticImagesDir = firstNonEmpty(fc.Static.ImagesDir, "public/images")

	cfg.SlackVerificationToken = firstNonEmpty(os.Getenv("SLACK_VERIFICATION_TOKEN"), sec.SlackVerificationToken)
	cfg.SlackClientID = firstNonEmpty(os.Getenv("SLACK_CLIENT_ID"), fc.Slack.ClientID)
	cfg.SlackClientSecret = firstNonEmpty(os.Getenv("SLACK_CLIENT_SECRET"), sec.SlackClientSecret)
	cfg.SlackOAuthURL = fc.Slack.OAuthURL

	cfg.GeocoderAPIKey = firstNonEmpty(os.Getenv("GOOGLE_MAPS_API_KEY"), sec.GoogleMapsAPIKey)
	cfg.GeocoderURL = fc.Geocoder.URL
	cfg.GeocoderTimeout = parseDurationOrZero(fc.Geocoder.Timeout, 0)

	cfg.ForecastAPIKey = firstNonEmpty(os.Getenv("FORECAST_API_KEY"), sec.ForecastAPIKey)
	cfg.ForecastURL = fc.Forecast.URL
	cfg.ForecastTimeout = parseDurationOrZero(fc.Forecast.Timeout, 0)
	cfg.ForecastPageURL = fc.Forecast.PageURL

	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(
		os.Getenv("MEMCACHEDCLOUD_SERVERS"),
		os.Getenv("MEMCACHED_ADDRS"),
		fc.Cache.Memcached.Addrs,
	))
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend)))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = CacheBackendNone
		if cfg.MemcachedAddrs != "" {
			cfg.CacheBackend = CacheBackendMemcached
		}
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 60*time.Second)
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.BoltPath = firstNonEmpty(fc.Cache.Bolt.Path, filepath.Join("data", "cache.db"))
	cfg.CacheWarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)

	cfg.RateLimitRPS = fc.RateLimit.RPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.RateLimit.Burst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 10*time.Second)
	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 20
	}
	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	if err := validate(cfg, requireSlack); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readYAML unmarshals path into out. A missing file leaves out untouched.
func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config, requireSlack bool) error {
	var missing []string
	if requireSlack && cfg.SlackVerificationToken == "" {
		missing = append(missing, "SLACK_VERIFICATION_TOKEN")
	}
	if cfg.GeocoderAPIKey == "" {
		missing = append(missing, "GOOGLE_MAPS_API_KEY")
	}
	if cfg.ForecastAPIKey == "" {
		missing = append(missing, "FORECAST_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s required (set env or config/secrets.yaml)", strings.Join(missing, ", "))
	}
	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return fmt.Errorf("server port must be numeric, got %q", cfg.ServerPort)
	}
	if cfg.GeocoderTimeout < 0 || cfg.ForecastTimeout < 0 {
		return fmt.Errorf("upstream timeouts must not be negative")
	}
	switch cfg.CacheBackend {
	case CacheBackendNone, CacheBackendInMemory, CacheBackendBolt:
	case CacheBackendMemcached:
		if cfg.MemcachedAddrs == "" {
			return fmt.Errorf("cache.backend memcached requires MEMCACHEDCLOUD_SERVERS, MEMCACHED_ADDRS or cache.memcached.addrs")
		}
	default:
		return fmt.Errorf("cache.backend must be none, in_memory, memcached or bolt, got %q", cfg.CacheBackend)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}

// OAuthEnabled reports whether the "Add to Slack" install flow is configured.
func (c *Config) OAuthEnabled() bool {
	return c.SlackClientID != "" && c.SlackClientSecret != ""
}
