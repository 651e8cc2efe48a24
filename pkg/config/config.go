package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultVideoBaseURL is the video platform API endpoint.
	DefaultVideoBaseURL = "https://www.googleapis.com/youtube/v3"

	// DefaultForumBaseURL is the community forum endpoint.
	DefaultForumBaseURL = "https://community.n8n.io"

	// DefaultForumCountry is assigned to forum observations, which carry
	// no geography of their own.
	DefaultForumCountry = "US"

	// DefaultForumPages is the number of latest-topic pages fetched.
	DefaultForumPages = 5

	// DefaultVideoMaxResults is the search page size and statistics
	// batch size of the video platform API.
	DefaultVideoMaxResults = 50

	// DefaultVideoMinViews is the noise floor below which video
	// observations are discarded as unreliable signal.
	DefaultVideoMinViews = 10

	// DefaultTrendsWindowDays is the interest series window requested
	// from the trends service.
	DefaultTrendsWindowDays = 90
)

// Default pacing and retry parameters for the external sources.
const (
	DefaultForumPacing  = "1s"
	DefaultTrendsPacing = "2s"
	DefaultRetryDelay   = "1s"
)

// Config is the root configuration for flowpulse.
type Config struct {
	Global     GlobalConfig     `yaml:"global"`
	Database   DatabaseConfig   `yaml:"database"`
	Collection CollectionConfig `yaml:"collection"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Export     *ExportConfig    `yaml:"export,omitempty"`
	API        *APIConfig       `yaml:"api,omitempty"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Driver   string                 `yaml:"driver"`
	SQLite   SQLiteDatabaseConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresDatabaseConfig `yaml:"postgres,omitempty"`
}

// SQLiteDatabaseConfig contains SQLite settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path"`
}

// PostgresDatabaseConfig contains PostgreSQL settings.
type PostgresDatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// CollectionConfig configures the collection pipeline.
type CollectionConfig struct {
	Countries []string     `yaml:"countries"`
	Retry     RetryConfig  `yaml:"retry,omitempty"`
	Video     VideoConfig  `yaml:"video"`
	Forum     ForumConfig  `yaml:"forum"`
	Trends    TrendsConfig `yaml:"trends"`
}

// RetryConfig controls backoff behavior for source calls.
type RetryConfig struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	InitialDelay string  `yaml:"initial_delay,omitempty"`
	Multiplier   float64 `yaml:"multiplier,omitempty"`
}

// Delay returns the parsed initial retry delay.
func (r RetryConfig) Delay() time.Duration {
	d, err := time.ParseDuration(r.InitialDelay)
	if err != nil {
		return time.Second
	}

	return d
}

// VideoConfig configures the video platform collector.
type VideoConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKey     string   `yaml:"api_key,omitempty"`
	BaseURL    string   `yaml:"base_url,omitempty"`
	Queries    []string `yaml:"queries"`
	MaxResults int      `yaml:"max_results,omitempty"`
	MinViews   int      `yaml:"min_views,omitempty"`
}

// ForumConfig configures the forum collector.
type ForumConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key,omitempty"`
	APIUsername    string `yaml:"api_username,omitempty"`
	BaseURL        string `yaml:"base_url,omitempty"`
	Pages          int    `yaml:"pages,omitempty"`
	DefaultCountry string `yaml:"default_country,omitempty"`
	Pacing         string `yaml:"pacing,omitempty"`
}

// PacingInterval returns the parsed inter-request pacing delay.
func (f ForumConfig) PacingInterval() time.Duration {
	d, err := time.ParseDuration(f.Pacing)
	if err != nil {
		return time.Second
	}

	return d
}

// TrendsConfig configures the search interest collector.
type TrendsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	BaseURL    string   `yaml:"base_url,omitempty"`
	Keywords   []string `yaml:"keywords"`
	WindowDays int      `yaml:"window_days,omitempty"`
	Pacing     string   `yaml:"pacing,omitempty"`
}

// PacingInterval returns the parsed inter-request pacing delay.
func (t TrendsConfig) PacingInterval() time.Duration {
	d, err := time.ParseDuration(t.Pacing)
	if err != nil {
		return 2 * time.Second
	}

	return d
}

// SchedulerConfig configures the built-in daily collection trigger.
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	At      string `yaml:"at,omitempty"` // "HH:MM" UTC
}

// ExportConfig configures run summary export.
type ExportConfig struct {
	S3 *S3ExportConfig `yaml:"s3,omitempty"`
}

// S3ExportConfig contains S3 settings for run summary export.
type S3ExportConfig struct {
	Enabled         bool   `yaml:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "./flowpulse.db"
	}

	if len(c.Collection.Countries) == 0 {
		c.Collection.Countries = []string{"US", "IN"}
	}

	if c.Collection.Retry.MaxAttempts == 0 {
		c.Collection.Retry.MaxAttempts = 4
	}

	if c.Collection.Retry.InitialDelay == "" {
		c.Collection.Retry.InitialDelay = DefaultRetryDelay
	}

	if c.Collection.Retry.Multiplier == 0 {
		c.Collection.Retry.Multiplier = 2
	}

	if c.Collection.Video.BaseURL == "" {
		c.Collection.Video.BaseURL = DefaultVideoBaseURL
	}

	if c.Collection.Video.MaxResults == 0 {
		c.Collection.Video.MaxResults = DefaultVideoMaxResults
	}

	if c.Collection.Video.MinViews == 0 {
		c.Collection.Video.MinViews = DefaultVideoMinViews
	}

	if c.Collection.Forum.BaseURL == "" {
		c.Collection.Forum.BaseURL = DefaultForumBaseURL
	}

	if c.Collection.Forum.Pages == 0 {
		c.Collection.Forum.Pages = DefaultForumPages
	}

	if c.Collection.Forum.DefaultCountry == "" {
		c.Collection.Forum.DefaultCountry = DefaultForumCountry
	}

	if c.Collection.Forum.Pacing == "" {
		c.Collection.Forum.Pacing = DefaultForumPacing
	}

	if c.Collection.Trends.WindowDays == 0 {
		c.Collection.Trends.WindowDays = DefaultTrendsWindowDays
	}

	if c.Collection.Trends.Pacing == "" {
		c.Collection.Trends.Pacing = DefaultTrendsPacing
	}

	if c.Scheduler.At == "" {
		c.Scheduler.At = "02:00"
	}

	if c.API != nil {
		c.API.applyDefaults()
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if !c.Collection.Video.Enabled &&
		!c.Collection.Forum.Enabled &&
		!c.Collection.Trends.Enabled {
		return fmt.Errorf("at least one collection source must be enabled")
	}

	for _, country := range c.Collection.Countries {
		if len(country) != 2 {
			return fmt.Errorf("invalid country code %q: must be 2 letters", country)
		}
	}

	if c.Collection.Video.Enabled && len(c.Collection.Video.Queries) == 0 {
		return fmt.Errorf("collection.video.queries must not be empty when video is enabled")
	}

	if c.Collection.Trends.Enabled && len(c.Collection.Trends.Keywords) == 0 {
		return fmt.Errorf("collection.trends.keywords must not be empty when trends is enabled")
	}

	for name, d := range map[string]string{
		"collection.retry.initial_delay": c.Collection.Retry.InitialDelay,
		"collection.forum.pacing":        c.Collection.Forum.Pacing,
		"collection.trends.pacing":       c.Collection.Trends.Pacing,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if c.Scheduler.Enabled {
		if _, err := ParseClock(c.Scheduler.At); err != nil {
			return fmt.Errorf("scheduler.at: %w", err)
		}
	}

	if c.Export != nil && c.Export.S3 != nil && c.Export.S3.Enabled {
		if c.Export.S3.Bucket == "" {
			return fmt.Errorf("export.s3.bucket is required when s3 export is enabled")
		}
	}

	return nil
}

// ParseClock parses an "HH:MM" wall-clock string into the offset from
// midnight UTC.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}

	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute, nil
}
