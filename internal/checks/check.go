// Package checks holds the five rule evaluation algorithms and the registry
// that dispatches a rule's check_type to its implementation.
package checks

import (
	"context"

	"mergegate/internal/policy"
	"mergegate/internal/pull"
)

// Conclusion is the terminal verdict of a check execution.
type Conclusion string

const (
	ConclusionSuccess Conclusion = "success"
	ConclusionFailure Conclusion = "failure"
)

// Result is the uniform output of one check execution. It is produced fresh
// on every evaluation and never persisted here; the remote status-check
// record is the durable copy.
type Result struct {
	Conclusion Conclusion
	Title      string
	Summary    string
	// Details carries optional long-form text (rendered as the check body).
	Details string
}

// Check is one evaluation algorithm. Implementations must not write remote
// state except where their contract says so (approval_gate's reviewer
// requests); status reporting belongs to the orchestrator.
type Check interface {
	Type() policy.CheckType
	Description() string
	Evaluate(ctx context.Context, repo pull.Repo, pr *pull.Context, rule policy.Rule) (Result, error)
}

func success(title, summary string) Result {
	return Result{Conclusion: ConclusionSuccess, Title: title, Summary: summary}
}

func failure(title, summary string) Result {
	return Result{Conclusion: ConclusionFailure, Title: title, Summary: summary}
}
