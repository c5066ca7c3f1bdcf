package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/sync/singleflight"

	"mergegate/internal/cache"
	"mergegate/internal/pull"
)

// Service exposes the remote API surface the evaluation engine consumes.
// Every call goes through the retry policy; commit tree listings are
// additionally memoized for a short window and deduplicated in flight.
type Service struct {
	client *Client
	retry  RetryPolicy
	trees  *cache.Cache[[]string]
	flight singleflight.Group
}

func NewService(client *Client, retry RetryPolicy, treeTTL time.Duration) *Service {
	return &Service{
		client: client,
		retry:  retry,
		trees:  cache.New[[]string](treeTTL),
	}
}

const perPage = 100

// isStatus reports whether err is an API error with the given HTTP status.
func isStatus(err error, status int) bool {
	if er, ok := err.(*github.ErrorResponse); ok && er.Response != nil {
		return er.Response.StatusCode == status
	}
	return false
}

// FileContent fetches one file at a ref. The boolean is false on 404.
func (s *Service) FileContent(ctx context.Context, repo pull.Repo, path, ref string) (string, bool, error) {
	fc, err := DoWithResult(ctx, s.retry, "repos.contents", func() (*github.RepositoryContent, *github.Response, error) {
		fc, _, resp, err := s.client.Client.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, &github.RepositoryContentGetOptions{Ref: ref})
		return fc, resp, err
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get contents %s/%s@%s: %w", repo, path, ref, err)
	}
	if fc == nil {
		// The path resolved to a directory.
		return "", false, nil
	}
	content, err := fc.GetContent()
	if err != nil {
		return "", false, fmt.Errorf("decode contents %s/%s@%s: %w", repo, path, ref, err)
	}
	return content, true, nil
}

// PullContext rebuilds the evaluation context for one pull request: metadata
// plus the full changed-file list.
func (s *Service) PullContext(ctx context.Context, repo pull.Repo, number int) (*pull.Context, error) {
	pr, err := DoWithResult(ctx, s.retry, "pulls.get", func() (*github.PullRequest, *github.Response, error) {
		pr, resp, err := s.client.Client.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
		return pr, resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("get pull %s#%d: %w", repo, number, err)
	}

	files, err := s.changedFiles(ctx, repo, number)
	if err != nil {
		return nil, err
	}

	return &pull.Context{
		Number:       number,
		HeadSHA:      pr.GetHead().GetSHA(),
		BaseRef:      pr.GetBase().GetRef(),
		BaseSHA:      pr.GetBase().GetSHA(),
		ChangedFiles: files,
		Description:  pr.GetBody(),
	}, nil
}

func (s *Service) changedFiles(ctx context.Context, repo pull.Repo, number int) ([]string, error) {
	var files []string
	opts := &github.ListOptions{PerPage: perPage}
	for {
		var next int
		page, err := DoWithResult(ctx, s.retry, "pulls.files", func() ([]*github.CommitFile, *github.Response, error) {
			page, resp, err := s.client.Client.PullRequests.ListFiles(ctx, repo.Owner, repo.Name, number, opts)
			if err != nil {
				return nil, resp, err
			}
			next = resp.NextPage
			return page, resp, nil
		})
		if err != nil {
			return nil, fmt.Errorf("list files %s#%d (page %d): %w", repo, number, opts.Page, err)
		}
		for _, f := range page {
			files = append(files, f.GetFilename())
		}
		if next == 0 {
			return files, nil
		}
		opts.Page = next
	}
}

// OpenPullNumbers lists open pull request numbers, optionally filtered to a
// base branch. Used by branch-push re-evaluation and installation backfill.
func (s *Service) OpenPullNumbers(ctx context.Context, repo pull.Repo, base string) ([]int, error) {
	var numbers []int
	opts := &github.PullRequestListOptions{
		State:       "open",
		Base:        base,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		var next int
		page, err := DoWithResult(ctx, s.retry, "pulls.list", func() ([]*github.PullRequest, *github.Response, error) {
			page, resp, err := s.client.Client.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
			if err != nil {
				return nil, resp, err
			}
			next = resp.NextPage
			return page, resp, nil
		})
		if err != nil {
			return nil, fmt.Errorf("list open pulls %s: %w", repo, err)
		}
		for _, pr := range page {
			numbers = append(numbers, pr.GetNumber())
		}
		if next == 0 {
			return numbers, nil
		}
		opts.Page = next
	}
}
