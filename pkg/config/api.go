package config

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server APIServerConfig `yaml:"server"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Public  RateLimitTier `yaml:"public,omitempty"`
	Trigger RateLimitTier `yaml:"trigger,omitempty"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

func (a *APIConfig) applyDefaults() {
	if a.Server.Listen == "" {
		a.Server.Listen = ":8080"
	}

	if a.Server.RateLimit.Public.RequestsPerMinute == 0 {
		a.Server.RateLimit.Public.RequestsPerMinute = 120
	}

	if a.Server.RateLimit.Trigger.RequestsPerMinute == 0 {
		a.Server.RateLimit.Trigger.RequestsPerMinute = 5
	}
}
