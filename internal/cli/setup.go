package cli

import (
	"context"
	"fmt"
	"strings"

	"mergegate/internal/checks"
	"mergegate/internal/config"
	"mergegate/internal/gate"
	gh "mergegate/internal/github"
	"mergegate/internal/notify"
	"mergegate/internal/policy"
	"mergegate/internal/store"
)

// engine bundles everything a command needs after bootstrap.
type engine struct {
	orchestrator *gate.Orchestrator
	service      *gh.Service
	registry     *checks.Registry
}

// buildEngine wires the full stack: authenticated client, retrying service,
// cached policy loader, the check registry, and the orchestrator on top.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	token, _, err := gh.ResolveAuthToken(ctx, cfg.GitHub.Token)
	if err != nil {
		return nil, fmt.Errorf("resolve GitHub auth token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("a GitHub auth token is required (set GITHUB_TOKEN or run 'gh auth login')")
	}
	cfg.GitHub.Token = token

	opts := []gh.Option{gh.WithVerbose(cfg.GitHub.Verbose, nil)}
	if cfg.GitHub.BaseURL != "" {
		opts = append(opts, gh.WithBaseURL(cfg.GitHub.BaseURL))
	}
	client, err := gh.NewClient(ctx, token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GitHub client: %w", err)
	}

	retry := gh.NewRetryPolicy(cfg.Engine.RetryMax, cfg.Engine.RetryBaseDelay)
	service := gh.NewService(client, retry, cfg.Policy.CacheTTL)
	loader := policy.NewLoader(service, cfg.Policy.Path, cfg.Policy.CacheTTL)

	registry := newRegistry(service)

	orchestrator := gate.New(gate.Deps{
		Statuses: service,
		Pulls:    service,
		States:   service,
		Registry: registry,
		Pending:  store.NewMemoryStore(),
		Notifier: notify.NewManager(service),
		Policies: loader,
	}, gate.Options{
		CheckPrefix: cfg.Engine.CheckPrefix,
		BatchSize:   cfg.Engine.BatchSize,
		BatchDelay:  cfg.Engine.BatchDelay,
	})

	return &engine{orchestrator: orchestrator, service: service, registry: registry}, nil
}

// newRegistry builds the closed set of check implementations. service may be
// nil for commands that only introspect types.
func newRegistry(service *gh.Service) *checks.Registry {
	return checks.NewRegistry(
		&checks.FilePresence{Trees: service},
		&checks.FilePair{},
		&checks.ExternalStatus{Statuses: service},
		&checks.BranchAge{Compare: service},
		&checks.ApprovalGate{Reviews: service, Teams: service, Requests: service},
	)
}
