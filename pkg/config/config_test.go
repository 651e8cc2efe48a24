package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
collection:
  forum:
    enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./flowpulse.db", cfg.Database.SQLite.Path)
	assert.Equal(t, []string{"US", "IN"}, cfg.Collection.Countries)
	assert.Equal(t, DefaultForumBaseURL, cfg.Collection.Forum.BaseURL)
	assert.Equal(t, DefaultForumPages, cfg.Collection.Forum.Pages)
	assert.Equal(t, DefaultForumCountry, cfg.Collection.Forum.DefaultCountry)
	assert.Equal(t, time.Second, cfg.Collection.Forum.PacingInterval())
	assert.Equal(t, 2*time.Second, cfg.Collection.Trends.PacingInterval())
	assert.Equal(t, DefaultVideoMaxResults, cfg.Collection.Video.MaxResults)
	assert.Equal(t, DefaultVideoMinViews, cfg.Collection.Video.MinViews)
	assert.Equal(t, 4, cfg.Collection.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Collection.Retry.Delay())
	assert.Equal(t, "02:00", cfg.Scheduler.At)

	require.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
global:
  log_level: debug
database:
  driver: postgres
  postgres:
    host: db.internal
    port: 5432
    user: flowpulse
    database: flowpulse
collection:
  countries: [US, IN, DE]
  video:
    enabled: true
    api_key: test-key
    queries: ["n8n workflow tutorial"]
    max_results: 25
  forum:
    enabled: true
    pacing: 500ms
  trends:
    enabled: true
    keywords: ["n8n"]
    pacing: 3s
scheduler:
  enabled: true
  at: "04:30"
api:
  server:
    listen: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 25, cfg.Collection.Video.MaxResults)
	assert.Equal(t, 500*time.Millisecond, cfg.Collection.Forum.PacingInterval())
	assert.Equal(t, 3*time.Second, cfg.Collection.Trends.PacingInterval())
	assert.Equal(t, ":9090", cfg.API.Server.Listen)
	assert.Equal(t, 5, cfg.API.Server.RateLimit.Trigger.RequestsPerMinute)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "no sources enabled",
			mutate: func(c *Config) {
				c.Collection.Video.Enabled = false
				c.Collection.Forum.Enabled = false
				c.Collection.Trends.Enabled = false
			},
			wantErr: "at least one collection source",
		},
		{
			name: "bad country code",
			mutate: func(c *Config) {
				c.Collection.Countries = []string{"USA"}
			},
			wantErr: "invalid country code",
		},
		{
			name: "video enabled without queries",
			mutate: func(c *Config) {
				c.Collection.Video.Enabled = true
				c.Collection.Video.Queries = nil
			},
			wantErr: "video.queries",
		},
		{
			name: "trends enabled without keywords",
			mutate: func(c *Config) {
				c.Collection.Trends.Enabled = true
				c.Collection.Trends.Keywords = nil
			},
			wantErr: "trends.keywords",
		},
		{
			name: "bad scheduler clock",
			mutate: func(c *Config) {
				c.Scheduler.Enabled = true
				c.Scheduler.At = "25:99"
			},
			wantErr: "scheduler.at",
		},
		{
			name: "bad pacing duration",
			mutate: func(c *Config) {
				c.Collection.Forum.Pacing = "soon"
			},
			wantErr: "forum.pacing",
		},
		{
			name: "s3 export without bucket",
			mutate: func(c *Config) {
				c.Export = &ExportConfig{S3: &S3ExportConfig{Enabled: true}}
			},
			wantErr: "export.s3.bucket",
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				c.Database.Driver = "oracle"
			},
			wantErr: "unsupported database driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Collection.Forum.Enabled = true
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("02:00")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, d)

	d, err = ParseClock("23:45")
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour+45*time.Minute, d)

	_, err = ParseClock("2am")
	require.Error(t, err)
}
