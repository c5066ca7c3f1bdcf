package checks

import (
	"context"
	"fmt"
	"strings"

	"mergegate/internal/policy"
	"mergegate/internal/pull"
)

// FilePair requires that companion files changed alongside the files that
// triggered the rule (a lockfile next to a manifest, generated code next to
// its source). Pure set membership over the PR's changed files; no API calls.
type FilePair struct{}

func (c *FilePair) Type() policy.CheckType { return policy.CheckFilePair }

func (c *FilePair) Description() string {
	return "Requires companion files to be part of the change set; mode \"any\" needs at least one companion changed, mode \"all\" needs every one."
}

func (c *FilePair) Evaluate(ctx context.Context, repo pull.Repo, pr *pull.Context, rule policy.Rule) (Result, error) {
	changed := make(map[string]bool, len(pr.ChangedFiles))
	for _, f := range pr.ChangedFiles {
		changed[f] = true
	}

	var present, absent []string
	for _, companion := range rule.Config.Companions {
		if changed[companion] {
			present = append(present, companion)
		} else {
			absent = append(absent, companion)
		}
	}

	mode := rule.Config.Mode
	if mode == "" {
		mode = "any"
	}

	ok := len(absent) == 0
	if mode == "any" {
		ok = len(present) > 0
	}
	if ok {
		return success("Companion files changed", fmt.Sprintf("%d of %d companion files are part of this change.", len(present), len(rule.Config.Companions))), nil
	}

	return failure(
		"Missing companion files",
		fmt.Sprintf("This change also needs: %s", strings.Join(absent, ", ")),
	), nil
}
