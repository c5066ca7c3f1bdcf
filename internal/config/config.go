package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep the CLI
	// flags in internal/cli/serve.go and internal/cli/check.go in sync.
	Server Server
	GitHub GitHub
	Policy Policy
	Engine Engine
}

type Server struct {
	// Addr is the listen address for the webhook server (see --addr).
	Addr string

	// WebhookSecret verifies webhook payload signatures.
	// Sourced from MERGEGATE_WEBHOOK_SECRET.
	WebhookSecret string
}

type GitHub struct {
	// Token authenticates API calls. Sourced from GITHUB_TOKEN.
	Token string

	// BaseURL overrides the API endpoint, for GitHub Enterprise (see --api-url).
	BaseURL string

	// Verbose enables request-level API logging (see --verbose).
	Verbose bool
}

type Policy struct {
	// Path is where the rule document lives in each repository (see --policy-path).
	Path string

	// CacheTTL bounds how long loaded documents and git trees are reused
	// before re-fetching (see --cache-ttl).
	CacheTTL time.Duration
}

type Engine struct {
	// CheckPrefix namespaces the status checks this engine writes (see --check-prefix).
	CheckPrefix string

	// BatchSize caps how many pull requests are evaluated concurrently during
	// branch-wide sweeps (see --batch-size).
	BatchSize int

	// BatchDelay is the pause between sweep batches (see --batch-delay).
	BatchDelay time.Duration

	// RetryMax is how many times a failed API call is retried (see --retry-max).
	RetryMax int

	// RetryBaseDelay seeds the exponential backoff between retries.
	RetryBaseDelay time.Duration
}

func New() *Config {
	return &Config{
		Server: Server{
			Addr: ":8080",
		},
		Policy: Policy{
			Path:     ".github/mergegate.yml",
			CacheTTL: 60 * time.Second,
		},
		Engine: Engine{
			CheckPrefix:    "mergegate",
			BatchSize:      5,
			BatchDelay:     2 * time.Second,
			RetryMax:       4,
			RetryBaseDelay: time.Second,
		},
	}
}

// LoadEnv fills the secret-bearing fields from the environment. Flags never
// carry secrets.
func (c *Config) LoadEnv() {
	if c.GitHub.Token == "" {
		c.GitHub.Token = strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	}
	if c.Server.WebhookSecret == "" {
		c.Server.WebhookSecret = strings.TrimSpace(os.Getenv("MERGEGATE_WEBHOOK_SECRET"))
	}
}

func (c *Config) Validate() error {
	if c.GitHub.Token == "" {
		return errors.New("a GitHub token is required; set GITHUB_TOKEN")
	}

	if c.Policy.Path == "" {
		return errors.New("--policy-path must not be empty")
	}
	if strings.HasPrefix(c.Policy.Path, "/") {
		return fmt.Errorf("--policy-path must be repository-relative: %s", c.Policy.Path)
	}
	if c.Policy.CacheTTL <= 0 {
		return errors.New("--cache-ttl must be > 0")
	}

	if c.Engine.CheckPrefix == "" {
		return errors.New("--check-prefix must not be empty")
	}
	if strings.Contains(c.Engine.CheckPrefix, "/") {
		return fmt.Errorf("--check-prefix must not contain '/': %s", c.Engine.CheckPrefix)
	}
	if c.Engine.BatchSize < 1 {
		return errors.New("--batch-size must be >= 1")
	}
	if c.Engine.BatchDelay < 0 {
		return errors.New("--batch-delay must be >= 0")
	}
	if c.Engine.RetryMax < 0 {
		return errors.New("--retry-max must be >= 0")
	}

	return nil
}

// ValidateServe adds the checks that only matter for the webhook server.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return errors.New("--addr must not be empty")
	}
	if c.Server.WebhookSecret == "" {
		return errors.New("a webhook secret is required; set MERGEGATE_WEBHOOK_SECRET")
	}
	return nil
}
