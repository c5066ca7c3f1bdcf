package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"mergegate/internal/allowlist"
	"mergegate/internal/match"
	"mergegate/internal/policy"
	"mergegate/internal/pull"
)

// TreeLister fetches the blob paths of a recursive commit tree.
type TreeLister interface {
	TreePaths(ctx context.Context, repo pull.Repo, sha string) ([]string, error)
}

// FilePresence verifies that files matching the rule's path patterns at the
// base commit still exist at the head commit, so generated or mirrored files
// cannot be deleted silently. Specific deletions can be permitted through
// allowlist directives in the PR description.
type FilePresence struct {
	Trees TreeLister
}

func (c *FilePresence) Type() policy.CheckType { return policy.CheckFilePresence }

func (c *FilePresence) Description() string {
	return "Fails when files matching the rule's path patterns exist at the base commit but are missing at the head commit, unless the deletion is allowlisted in the PR description."
}

func (c *FilePresence) Evaluate(ctx context.Context, repo pull.Repo, pr *pull.Context, rule policy.Rule) (Result, error) {
	include := rule.On.Paths.Include
	exclude := rule.On.Paths.Exclude

	var baseFiles, headFiles []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		paths, err := c.Trees.TreePaths(gctx, repo, pr.BaseSHA)
		if err != nil {
			return err
		}
		baseFiles = match.Files(paths, include, exclude)
		return nil
	})
	g.Go(func() error {
		paths, err := c.Trees.TreePaths(gctx, repo, pr.HeadSHA)
		if err != nil {
			return err
		}
		headFiles = match.Files(paths, include, exclude)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	head := make(map[string]bool, len(headFiles))
	for _, f := range headFiles {
		head[f] = true
	}
	var missing []string
	for _, f := range baseFiles {
		if !head[f] {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)

	if len(missing) == 0 {
		return success("All files present", fmt.Sprintf("%d matching files are present at the head commit.", len(baseFiles))), nil
	}

	allowed := allowlist.ForRule(allowlist.Parse(pr.Description), rule.Name)
	var failing []string
	var overrides []string
	for _, f := range missing {
		reason, ok := allowed[f]
		if !ok {
			failing = append(failing, f)
			continue
		}
		if reason == "" {
			reason = "no reason given"
		}
		overrides = append(overrides, fmt.Sprintf("- `%s`: %s", f, reason))
	}

	if len(failing) == 0 {
		// Everything missing was explicitly permitted; pass, but surface the
		// override list so the deletion stays auditable.
		res := success("Allowed deletions", fmt.Sprintf("%d missing files are covered by allowlist directives.", len(overrides)))
		res.Details = "Allowed deletions:\n" + strings.Join(overrides, "\n")
		return res, nil
	}

	res := failure(
		"Missing files",
		fmt.Sprintf("%d files present at the base commit are missing at the head commit: %s", len(failing), strings.Join(failing, ", ")),
	)
	if len(overrides) > 0 {
		res.Details = "Allowed deletions:\n" + strings.Join(overrides, "\n")
	}
	return res, nil
}
