package github

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v81/github"

	"mergegate/internal/pull"
)

// TreePaths returns every blob path in the recursive tree at the given commit.
// Results are keyed by SHA, so they could in principle be cached forever; they
// share the service's short TTL to bound memory. Concurrent identical fetches
// collapse into one API call.
func (s *Service) TreePaths(ctx context.Context, repo pull.Repo, sha string) ([]string, error) {
	key := repo.String() + "@" + sha

	if paths, ok := s.trees.Get(key); ok {
		return paths, nil
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		tree, err := DoWithResult(ctx, s.retry, "git.tree", func() (*github.Tree, *github.Response, error) {
			tree, resp, err := s.client.Client.Git.GetTree(ctx, repo.Owner, repo.Name, sha, true)
			return tree, resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("get tree %s@%s: %w", repo, sha, err)
		}

		if tree.GetTruncated() {
			// The API silently caps very large trees. Matching against a
			// partial listing is still useful; flag it for operators.
			slog.Warn("tree listing truncated by API", "repo", repo.String(), "sha", sha)
		}

		paths := make([]string, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			if e.GetType() != "blob" {
				continue
			}
			paths = append(paths, e.GetPath())
		}
		s.trees.Set(key, paths)
		return paths, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
