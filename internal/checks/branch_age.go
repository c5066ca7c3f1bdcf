package checks

import (
	"context"
	"fmt"
	"time"

	"mergegate/internal/policy"
	"mergegate/internal/pull"
)

// MergeBaseFetcher returns the merge-base commit timestamp between two SHAs.
// The boolean is false when no usable timestamp exists.
type MergeBaseFetcher interface {
	MergeBaseTime(ctx context.Context, repo pull.Repo, base, head string) (time.Time, bool, error)
}

// BranchAge fails pull requests whose branch diverged from the base too long
// ago, measured at the merge base.
type BranchAge struct {
	Compare MergeBaseFetcher

	// now is a test seam; nil means time.Now.
	now func() time.Time
}

func (c *BranchAge) Type() policy.CheckType { return policy.CheckBranchAge }

func (c *BranchAge) Description() string {
	return "Fails when the merge base between the PR branch and its base branch is older than the configured number of days."
}

func (c *BranchAge) Evaluate(ctx context.Context, repo pull.Repo, pr *pull.Context, rule policy.Rule) (Result, error) {
	mergeBase, ok, err := c.Compare.MergeBaseTime(ctx, repo, pr.BaseSHA, pr.HeadSHA)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		// Never silently pass on missing data.
		return failure(
			"Unable to determine branch age",
			fmt.Sprintf("The merge base between %s and the PR head carries no commit timestamp.", pr.BaseRef),
		), nil
	}

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	elapsedDays := int(now().Sub(mergeBase) / (24 * time.Hour))
	maxDays := rule.Config.MaxAgeDays

	if elapsedDays <= maxDays {
		return success("Branch is fresh", fmt.Sprintf("The branch diverged from %s %d days ago (limit: %d days).", pr.BaseRef, elapsedDays, maxDays)), nil
	}

	return failure(
		"Branch is too old",
		fmt.Sprintf("The branch diverged from %s %d days ago, past the %d-day limit. Rebase onto %s to refresh it.", pr.BaseRef, elapsedDays, maxDays, pr.BaseRef),
	), nil
}
