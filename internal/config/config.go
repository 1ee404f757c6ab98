package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stickytweets/internal/tweets"
	"stickytweets/internal/twitter"
)

// Config is the application's configuration model.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	Search      SearchConfig      `yaml:"search"`
	Storage     StorageConfig     `yaml:"storage"`
	API         APIConfig         `yaml:"api"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type CredentialsConfig struct {
	// OAuth1.0a credentials. Empty fields are read from X_CONSUMER_KEY and friends.
	ConsumerKey    string `yaml:"consumerKey" validate:"required"`
	ConsumerSecret string `yaml:"consumerSecret" validate:"required"`
	AccessToken    string `yaml:"accessToken" validate:"required"`
	AccessSecret   string `yaml:"accessSecret" validate:"required"`
}

type SearchConfig struct {
	Latitude   float64  `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64  `yaml:"longitude" validate:"gte=-180,lte=180"`
	RadiusKm   float64  `yaml:"radiusKm" validate:"gt=0"`
	ResultType string   `yaml:"resultType" validate:"oneof=recent mixed popular"`
	Terms      []string `yaml:"terms" validate:"dive,required"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath" validate:"required"`
	Limit  int    `yaml:"limit" validate:"gte=1"`
}

type APIConfig struct {
	BaseURL        string  `yaml:"baseURL" validate:"required,url"`
	TimeoutSeconds int     `yaml:"timeoutSeconds" validate:"gte=1"`
	RPS            float64 `yaml:"rps" validate:"gte=0"`
	Burst          int     `yaml:"burst" validate:"gte=0"`
	// 1 means no retries.
	MaxAttempts   int `yaml:"maxAttempts" validate:"gte=1,lte=10"`
	BaseBackoffMs int `yaml:"baseBackoffMs" validate:"gte=0"`
}

type ScheduleConfig struct {
	// robfig/cron spec, e.g. "@every 15m" or "*/10 * * * *".
	Cron string `yaml:"cron" validate:"required"`
	// Host label for metrics and logs.
	Host string `yaml:"host" validate:"required"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// Default returns the configuration for the Utrecht area deployment.
func Default() Config {
	return Config{
		Search: SearchConfig{
			Latitude:   52.09,
			Longitude:  5.10,
			RadiusKm:   160,
			ResultType: "recent",
			Terms:      []string{"regen", "wateroverlast", "storm", "hagel", "onweer"},
		},
		Storage: StorageConfig{DBPath: "./stickytweets.db", Limit: tweets.DefaultLimit},
		API: APIConfig{
			BaseURL:        twitter.DefaultBaseURL,
			TimeoutSeconds: 15,
			RPS:            0.5,
			Burst:          1,
			MaxAttempts:    1,
			BaseBackoffMs:  500,
		},
		Schedule: ScheduleConfig{Cron: "@every 15m", Host: "localhost"},
		Metrics:  MetricsConfig{Addr: "127.0.0.1:9464"},
	}
}

// Geocode renders the search area as "lat,lon,radiuskm".
func (s SearchConfig) Geocode() string {
	return strconv.FormatFloat(s.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(s.Longitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(s.RadiusKm, 'f', -1, 64) + "km"
}

func (c Config) TwitterCredentials() twitter.Credentials {
	return twitter.Credentials{
		ConsumerKey:    c.Credentials.ConsumerKey,
		ConsumerSecret: c.Credentials.ConsumerSecret,
		AccessToken:    c.Credentials.AccessToken,
		AccessSecret:   c.Credentials.AccessSecret,
	}
}

func (c Config) TwitterOptions() twitter.Options {
	return twitter.Options{
		BaseURL:     c.API.BaseURL,
		Timeout:     time.Duration(c.API.TimeoutSeconds) * time.Second,
		RPS:         c.API.RPS,
		Burst:       c.API.Burst,
		MaxAttempts: c.API.MaxAttempts,
		BaseBackoff: time.Duration(c.API.BaseBackoffMs) * time.Millisecond,
	}
}

// ResolveEnv fills in credentials from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.ConsumerKey == "" {
		c.Credentials.ConsumerKey = os.Getenv("X_CONSUMER_KEY")
	}
	if c.Credentials.ConsumerSecret == "" {
		c.Credentials.ConsumerSecret = os.Getenv("X_CONSUMER_SECRET")
	}
	if c.Credentials.AccessToken == "" {
		c.Credentials.AccessToken = os.Getenv("X_ACCESS_TOKEN")
	}
	if c.Credentials.AccessSecret == "" {
		c.Credentials.AccessSecret = os.Getenv("X_ACCESS_SECRET")
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads YAML config from path over the defaults. A .env file next to
// the config is loaded into the environment first; variables already set
// win.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	cfg.ResolveEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
