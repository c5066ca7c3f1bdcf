package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v81/github"

	"mergegate/internal/pull"
)

// MergeBaseTime returns the commit timestamp of the merge base between two
// SHAs. The boolean is false when the comparison carries no usable timestamp;
// callers must treat that as "unable to determine", never as a pass.
func (s *Service) MergeBaseTime(ctx context.Context, repo pull.Repo, base, head string) (time.Time, bool, error) {
	cmp, err := DoWithResult(ctx, s.retry, "repos.compare", func() (*github.CommitsComparison, *github.Response, error) {
		cmp, resp, err := s.client.Client.Repositories.CompareCommits(ctx, repo.Owner, repo.Name, base, head, &github.ListOptions{PerPage: 1})
		return cmp, resp, err
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("compare %s %s...%s: %w", repo, base, head, err)
	}

	commit := cmp.GetMergeBaseCommit().GetCommit()
	if commit == nil {
		return time.Time{}, false, nil
	}
	if ts := commit.GetCommitter().GetDate(); !ts.Time.IsZero() {
		return ts.Time, true, nil
	}
	if ts := commit.GetAuthor().GetDate(); !ts.Time.IsZero() {
		return ts.Time, true, nil
	}
	return time.Time{}, false, nil
}
