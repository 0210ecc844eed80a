// Package config loads service configuration from defaults, an optional YAML
// file, STARGLOBE_* environment variables and command-line flags, in rising
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Globe   GlobeConfig   `mapstructure:"globe"`
	Borders BordersConfig `mapstructure:"borders"`
	Tracker TrackerConfig `mapstructure:"tracker"`
	Geocode GeocodeConfig `mapstructure:"geocode"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TrustProxy   bool          `mapstructure:"trust_proxy"`
}

type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

type GlobeConfig struct {
	Width  float64 `mapstructure:"width"`
	Height float64 `mapstructure:"height"`
}

type BordersConfig struct {
	Path     string `mapstructure:"path"`
	URL      string `mapstructure:"url"`
	CacheDir string `mapstructure:"cache_dir"`
	MaxFiles int    `mapstructure:"max_files"`
}

// TrackerConfig selects the satellite position source.
type TrackerConfig struct {
	Source     string        `mapstructure:"source"` // feed | tle
	Interval   time.Duration `mapstructure:"interval"`
	Timeout    time.Duration `mapstructure:"timeout"`
	FeedURL    string        `mapstructure:"feed_url"`
	TLEURL     string        `mapstructure:"tle_url"`
	TLECatalog int           `mapstructure:"tle_catalog"`
	TLEMaxAge  time.Duration `mapstructure:"tle_max_age"`
}

type GeocodeConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	ValkeyAddr string        `mapstructure:"valkey_addr"`
}

// NATSConfig enables position fan-out when URL is set.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type StreamConfig struct {
	MaxPerIP          int           `mapstructure:"max_per_ip"`
	MaxTotal          int           `mapstructure:"max_total"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":           "server.addr",
	"borders":        "borders.path",
	"borders-url":    "borders.url",
	"source":         "tracker.source",
	"poll-interval":  "tracker.interval",
	"width":          "globe.width",
	"height":         "globe.height",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"nats-url":       "nats.url",
	"geocode":        "geocode.enabled",
	"tracing":        "tracing.enabled",
	"trace-exporter": "tracing.exporter",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.trust_proxy", false)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")

	v.SetDefault("globe.width", 800)
	v.SetDefault("globe.height", 800)

	v.SetDefault("borders.path", "")
	v.SetDefault("borders.url", "")
	v.SetDefault("borders.cache_dir", "/tmp/starglobe/borders")
	v.SetDefault("borders.max_files", 3)

	v.SetDefault("tracker.source", "feed")
	v.SetDefault("tracker.interval", 2500*time.Millisecond)
	v.SetDefault("tracker.timeout", 10*time.Second)
	v.SetDefault("tracker.feed_url", "http://api.open-notify.org/iss-now.json")
	v.SetDefault("tracker.tle_url", "https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle")
	v.SetDefault("tracker.tle_catalog", 25544)
	v.SetDefault("tracker.tle_max_age", 12*time.Hour)

	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.url", "https://nominatim.openstreetmap.org/reverse")
	v.SetDefault("geocode.user_agent", "starglobe/1.0")
	v.SetDefault("geocode.timeout", 10*time.Second)
	v.SetDefault("geocode.cache_ttl", time.Hour)
	v.SetDefault("geocode.valkey_addr", "")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "starglobe.satellite.position")

	v.SetDefault("stream.max_per_ip", 10)
	v.SetDefault("stream.max_total", 1000)
	v.SetDefault("stream.keepalive_interval", 30*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "starglobe")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration. path names an explicit YAML file; when empty,
// starglobe.yaml is looked up in the working directory and /etc/starglobe
// and may be absent. Flags that were set on the command line override
// everything else; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("starglobe")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/starglobe")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Environment variables: STARGLOBE_TRACKER_INTERVAL → tracker.interval
	v.SetEnvPrefix("STARGLOBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that configuration values are present and sane. All
// problems are reported at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		errs = append(errs, "auth.token is required when auth is enabled")
	}
	if c.Globe.Width < 1 || c.Globe.Height < 1 {
		errs = append(errs, fmt.Sprintf("globe size must be positive, got %vx%v", c.Globe.Width, c.Globe.Height))
	}
	if c.Borders.Path == "" && c.Borders.URL == "" {
		errs = append(errs, "one of borders.path or borders.url is required")
	}
	switch c.Tracker.Source {
	case "feed":
		if c.Tracker.FeedURL == "" {
			errs = append(errs, "tracker.feed_url is required for the feed source")
		}
	case "tle":
		if c.Tracker.TLEURL == "" {
			errs = append(errs, "tracker.tle_url is required for the tle source")
		}
		if c.Tracker.TLECatalog <= 0 {
			errs = append(errs, "tracker.tle_catalog must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("tracker.source must be feed or tle, got %q", c.Tracker.Source))
	}
	if c.Tracker.Interval <= 0 {
		errs = append(errs, "tracker.interval must be positive")
	}
	if c.Geocode.Enabled && c.Geocode.URL == "" {
		errs = append(errs, "geocode.url is required when geocoding is enabled")
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, "nats.subject is required when nats.url is set")
	}
	if c.Stream.MaxPerIP < 1 {
		errs = append(errs, "stream.max_per_ip must be positive")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be 0-1, got %v", c.Tracing.SampleRatio))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
