// Package config loads the application configuration from defaults, an
// optional TOML file, and REVIEWSTREAM_-prefixed environment variables, in
// that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full application configuration.
type Config struct {
	Server struct {
		Port            int      `koanf:"port"`
		APIKeys         []string `koanf:"api_keys"`
		WebhooksEnabled bool     `koanf:"webhooks_enabled"`
		RequestTimeout  int      `koanf:"request_timeout_seconds"`
	} `koanf:"server"`

	Dispatch struct {
		DatabaseURL       string `koanf:"database_url"`
		DiffWorkers       int    `koanf:"diff_workers"`
		AgenticWorkers    int    `koanf:"agentic_workers"`
		JobTimeoutSeconds int    `koanf:"job_timeout_seconds"`
	} `koanf:"dispatch"`

	Stores struct {
		IdempotencyTTLSeconds int `koanf:"idempotency_ttl_seconds"`
		StatusTTLSeconds      int `koanf:"status_ttl_seconds"`
	} `koanf:"stores"`

	Review struct {
		ConfidenceThreshold float64 `koanf:"confidence_threshold"`
		MaxIssuesPerFile    int     `koanf:"max_issues_per_file"`
		PublishOnComplete   bool    `koanf:"publish_on_complete"`
	} `koanf:"review"`

	LLM struct {
		ProviderType string `koanf:"provider_type"`
		BaseURL      string `koanf:"base_url"`
		APIKey       string `koanf:"api_key"`
		Model        string `koanf:"model"`
	} `koanf:"llm"`

	SCM struct {
		GitHub struct {
			BaseURL string `koanf:"base_url"`
			Token   string `koanf:"token"`
		} `koanf:"github"`
		GitLab struct {
			BaseURL string `koanf:"base_url"`
			Token   string `koanf:"token"`
		} `koanf:"gitlab"`
	} `koanf:"scm"`
}

// JobTimeout returns the per-job deadline.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Dispatch.JobTimeoutSeconds) * time.Second
}

// IdempotencyTTL returns the webhook dedup window.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.Stores.IdempotencyTTLSeconds) * time.Second
}

// StatusTTL returns the status entry lifetime.
func (c *Config) StatusTTL() time.Duration {
	return time.Duration(c.Stores.StatusTTLSeconds) * time.Second
}

// RequestTimeout returns the inbound HTTP deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// Load reads the configuration. An explicit path is required to exist;
// otherwise the default locations are probed and silently skipped when
// absent.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":                   8080,
		"server.webhooks_enabled":       true,
		"server.request_timeout_seconds": 60,
		"dispatch.diff_workers":         4,
		"dispatch.agentic_workers":      2,
		"dispatch.job_timeout_seconds":  300,
		"stores.idempotency_ttl_seconds": 3600,
		"stores.status_ttl_seconds":      86400,
		"review.confidence_threshold":   0.5,
		"review.max_issues_per_file":    10,
		"llm.provider_type":             "openai",
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", configPath, err)
		}
	} else {
		for _, path := range []string{"./reviewstream.toml", "./lrdata/reviewstream.toml"} {
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("REVIEWSTREAM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "REVIEWSTREAM_")), "_", ".", -1)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the parts of the configuration the server cannot run
// without.
func Validate(cfg *Config) error {
	if cfg.Dispatch.DatabaseURL == "" {
		return fmt.Errorf("dispatch.database_url is required (postgres://... for the job streams)")
	}
	if cfg.Server.WebhooksEnabled && len(cfg.Server.APIKeys) == 0 {
		return fmt.Errorf("server.api_keys must not be empty while webhooks are enabled")
	}
	if cfg.Review.ConfidenceThreshold < 0 || cfg.Review.ConfidenceThreshold > 1 {
		return fmt.Errorf("review.confidence_threshold must be in [0,1]")
	}
	if cfg.Review.MaxIssuesPerFile < 1 {
		return fmt.Errorf("review.max_issues_per_file must be at least 1")
	}
	return nil
}
