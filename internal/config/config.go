package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
)

// Config holds all configuration for the tracking pipeline. It is built
// once at startup and treated as read-only by every component.
type Config struct {
	API          APIConfig          `yaml:"api"`
	Enabled      bool               `yaml:"enabled"`
	Debug        bool               `yaml:"debug"`
	Adapters     AdaptersConfig     `yaml:"adapters"`
	AutoTracking AutoTrackingConfig `yaml:"auto_tracking"`

	// ScrollThresholds are page-depth percentages that each fire one
	// scroll event per page lifetime.
	ScrollThresholds []int `yaml:"scroll_thresholds"`

	// TimeThresholds are seconds-on-page marks that each fire one
	// time_on_page event per page lifetime.
	TimeThresholds []int `yaml:"time_thresholds"`

	Queue  QueueConfig  `yaml:"queue"`
	Server ServerConfig `yaml:"server"`
}

// APIConfig holds the event collector endpoint settings.
type APIConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured collector request timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AdaptersConfig holds per-vendor adapter settings.
type AdaptersConfig struct {
	MetaPixel       MetaPixelConfig       `yaml:"meta_pixel"`
	GoogleAnalytics GoogleAnalyticsConfig `yaml:"google_analytics"`
	GoogleAds       GoogleAdsConfig       `yaml:"google_ads"`
}

// MetaPixelConfig holds Meta Pixel / Conversions API settings.
type MetaPixelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PixelID     string `yaml:"pixel_id"`
	AccessToken string `yaml:"access_token"`
}

// GoogleAnalyticsConfig holds GA4 Measurement Protocol settings.
type GoogleAnalyticsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	MeasurementID string `yaml:"measurement_id"`
	APISecret     string `yaml:"api_secret"`
}

// GoogleAdsConfig holds Google Ads conversion tracking settings.
type GoogleAdsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ConversionID    string `yaml:"conversion_id"`
	ConversionLabel string `yaml:"conversion_label"`
}

// AutoTrackingConfig toggles the passive trackers.
type AutoTrackingConfig struct {
	Clicks        bool `yaml:"clicks"`
	Forms         bool `yaml:"forms"`
	ExternalLinks bool `yaml:"external_links"`
	Scroll        bool `yaml:"scroll"`
	TimeOnPage    bool `yaml:"time_on_page"`
}

// QueueConfig holds durable queue tunables.
type QueueConfig struct {
	MaxRetries   int    `yaml:"max_retries"`
	RetryDelayMS int    `yaml:"retry_delay_ms"`
	BatchSize    int    `yaml:"batch_size"`
	MaxAgeDays   int    `yaml:"max_age_days"`
	RedisURL     string `yaml:"redis_url"`
	KeyPrefix    string `yaml:"key_prefix"`
}

// RetryDelay returns the retry loop cadence as a duration.
func (c QueueConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// MaxAge returns the maximum queue retention age as a duration.
func (c QueueConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// ServerConfig holds the stub collector's HTTP settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	RatePerSecond  float64  `yaml:"rate_per_second"`
	RateBurst      int      `yaml:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads and parses the configuration file, filling in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no file
// input. Tracking is disabled until an endpoint and key are supplied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = 10
	}
	if len(cfg.ScrollThresholds) == 0 {
		cfg.ScrollThresholds = []int{25, 50, 75, 100}
	}
	if len(cfg.TimeThresholds) == 0 {
		cfg.TimeThresholds = []int{10, 30, 60}
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 5
	}
	if cfg.Queue.RetryDelayMS == 0 {
		cfg.Queue.RetryDelayMS = 5000
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 10
	}
	if cfg.Queue.MaxAgeDays == 0 {
		cfg.Queue.MaxAgeDays = 7
	}
	if cfg.Queue.RedisURL == "" {
		cfg.Queue.RedisURL = "redis://localhost:6379/0"
	}
	if cfg.Queue.KeyPrefix == "" {
		cfg.Queue.KeyPrefix = "tracking"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.RatePerSecond == 0 {
		cfg.Server.RatePerSecond = 20
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 40
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars in deployment. A missing
// config file is not an error; defaults are used underneath the env.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("TRACKING_API_URL"); v != "" {
		cfg.API.Endpoint = v
	}
	if v := os.Getenv("TRACKING_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("TRACKING_ENABLED"); v != "" {
		cfg.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACKING_DEBUG"); v != "" {
		cfg.Debug = v == "true" || v == "1"
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Queue.RedisURL = v
	}
	if v := os.Getenv("FB_PIXEL_ID"); v != "" {
		cfg.Adapters.MetaPixel.PixelID = v
		cfg.Adapters.MetaPixel.Enabled = true
	}
	if v := os.Getenv("FB_ACCESS_TOKEN"); v != "" {
		cfg.Adapters.MetaPixel.AccessToken = v
	}
	if v := os.Getenv("GA_MEASUREMENT_ID"); v != "" {
		cfg.Adapters.GoogleAnalytics.MeasurementID = v
		cfg.Adapters.GoogleAnalytics.Enabled = true
	}
	if v := os.Getenv("GA_API_SECRET"); v != "" {
		cfg.Adapters.GoogleAnalytics.APISecret = v
	}
	if v := os.Getenv("GOOGLE_ADS_ID"); v != "" {
		cfg.Adapters.GoogleAds.ConversionID = v
	}
	if v := os.Getenv("GOOGLE_ADS_LABEL"); v != "" {
		cfg.Adapters.GoogleAds.ConversionLabel = v
	}
	if cfg.Adapters.GoogleAds.ConversionID != "" && cfg.Adapters.GoogleAds.ConversionLabel != "" {
		cfg.Adapters.GoogleAds.Enabled = true
	}
	if v := os.Getenv("COLLECTOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("COLLECTOR_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}

	return cfg, nil
}

// Validate logs warnings for incomplete configuration. Missing endpoint or
// API key puts the pipeline in degraded mode (no backend delivery) but is
// never fatal.
func (c *Config) Validate() bool {
	ok := true
	if c.API.Endpoint == "" {
		logger.Warn("config: collector endpoint not configured, backend delivery disabled")
		ok = false
	}
	if c.API.APIKey == "" {
		logger.Warn("config: collector API key not configured, backend delivery disabled")
		ok = false
	}
	if c.Adapters.MetaPixel.Enabled && c.Adapters.MetaPixel.PixelID == "" {
		logger.Warn("config: meta pixel enabled without pixel_id")
	}
	if c.Adapters.GoogleAnalytics.Enabled && c.Adapters.GoogleAnalytics.MeasurementID == "" {
		logger.Warn("config: google analytics enabled without measurement_id")
	}
	if c.Adapters.GoogleAds.Enabled && (c.Adapters.GoogleAds.ConversionID == "" || c.Adapters.GoogleAds.ConversionLabel == "") {
		logger.Warn("config: google ads enabled without conversion id/label")
	}
	return ok
}
