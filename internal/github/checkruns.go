package github

import (
	"context"
	"fmt"

	"github.com/google/go-github/v81/github"

	"mergegate/internal/pull"
)

// CheckStates returns the observed state of every named status signal on a
// commit, merging check runs with legacy commit statuses. When both report
// the same name, the check run wins; for duplicated names within one source,
// the API already returns the latest attempt first, and the first sighting
// wins here.
func (s *Service) CheckStates(ctx context.Context, repo pull.Repo, sha string) (map[string]pull.CheckState, error) {
	states := make(map[string]pull.CheckState)

	opts := &github.ListCheckRunsOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		var next int
		page, err := DoWithResult(ctx, s.retry, "checks.list", func() (*github.ListCheckRunsResults, *github.Response, error) {
			page, resp, err := s.client.Client.Checks.ListCheckRunsForRef(ctx, repo.Owner, repo.Name, sha, opts)
			if err != nil {
				return nil, resp, err
			}
			next = resp.NextPage
			return page, resp, nil
		})
		if err != nil {
			return nil, fmt.Errorf("list check runs %s@%s: %w", repo, sha, err)
		}
		for _, run := range page.CheckRuns {
			name := run.GetName()
			if _, ok := states[name]; ok {
				continue
			}
			states[name] = pull.CheckState{Status: run.GetStatus(), Conclusion: run.GetConclusion()}
		}
		if next == 0 {
			break
		}
		opts.Page = next
	}

	sopts := &github.ListOptions{PerPage: perPage}
	for {
		var next int
		combined, err := DoWithResult(ctx, s.retry, "repos.status", func() (*github.CombinedStatus, *github.Response, error) {
			combined, resp, err := s.client.Client.Repositories.GetCombinedStatus(ctx, repo.Owner, repo.Name, sha, sopts)
			if err != nil {
				return nil, resp, err
			}
			next = resp.NextPage
			return combined, resp, nil
		})
		if err != nil {
			return nil, fmt.Errorf("combined status %s@%s: %w", repo, sha, err)
		}
		for _, st := range combined.Statuses {
			name := st.GetContext()
			if _, ok := states[name]; ok {
				continue
			}
			states[name] = statusToCheckState(st.GetState())
		}
		if next == 0 {
			break
		}
		sopts.Page = next
	}

	return states, nil
}

func statusToCheckState(state string) pull.CheckState {
	switch state {
	case "success":
		return pull.CheckState{Status: "completed", Conclusion: "success"}
	case "failure", "error":
		return pull.CheckState{Status: "completed", Conclusion: "failure"}
	default: // "pending"
		return pull.CheckState{Status: "in_progress"}
	}
}

// FindCheckRun looks for an existing check run with the given name on a
// commit and returns its id.
func (s *Service) FindCheckRun(ctx context.Context, repo pull.Repo, sha, name string) (int64, bool, error) {
	opts := &github.ListCheckRunsOptions{
		CheckName:   github.Ptr(name),
		ListOptions: github.ListOptions{PerPage: 1},
	}
	page, err := DoWithResult(ctx, s.retry, "checks.find", func() (*github.ListCheckRunsResults, *github.Response, error) {
		page, resp, err := s.client.Client.Checks.ListCheckRunsForRef(ctx, repo.Owner, repo.Name, sha, opts)
		return page, resp, err
	})
	if err != nil {
		return 0, false, fmt.Errorf("find check run %s@%s %q: %w", repo, sha, name, err)
	}
	if len(page.CheckRuns) == 0 {
		return 0, false, nil
	}
	return page.CheckRuns[0].GetID(), true, nil
}

// CreateCheckRun creates a new in-progress check run on a commit.
func (s *Service) CreateCheckRun(ctx context.Context, repo pull.Repo, sha, name, title, summary string) (int64, error) {
	run, err := DoWithResult(ctx, s.retry, "checks.create", func() (*github.CheckRun, *github.Response, error) {
		run, resp, err := s.client.Client.Checks.CreateCheckRun(ctx, repo.Owner, repo.Name, github.CreateCheckRunOptions{
			Name:    name,
			HeadSHA: sha,
			Status:  github.Ptr("in_progress"),
			Output:  checkOutput(title, summary, ""),
		})
		return run, resp, err
	})
	if err != nil {
		return 0, fmt.Errorf("create check run %s@%s %q: %w", repo, sha, name, err)
	}
	return run.GetID(), nil
}

// StartCheckRun transitions an existing check run back to in-progress,
// replacing its output. Used both when re-evaluating a rule and while an
// external_status rule is waiting on its dependencies.
func (s *Service) StartCheckRun(ctx context.Context, repo pull.Repo, id int64, name, title, summary string) error {
	err := s.retry.Do(ctx, "checks.start", func() (*github.Response, error) {
		_, resp, err := s.client.Client.Checks.UpdateCheckRun(ctx, repo.Owner, repo.Name, id, github.UpdateCheckRunOptions{
			Name:   name,
			Status: github.Ptr("in_progress"),
			Output: checkOutput(title, summary, ""),
		})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("start check run %s/%d: %w", repo, id, err)
	}
	return nil
}

// CompleteCheckRun finalizes a check run with a terminal conclusion.
func (s *Service) CompleteCheckRun(ctx context.Context, repo pull.Repo, id int64, name, conclusion, title, summary, details string) error {
	err := s.retry.Do(ctx, "checks.complete", func() (*github.Response, error) {
		_, resp, err := s.client.Client.Checks.UpdateCheckRun(ctx, repo.Owner, repo.Name, id, github.UpdateCheckRunOptions{
			Name:       name,
			Status:     github.Ptr("completed"),
			Conclusion: github.Ptr(conclusion),
			Output:     checkOutput(title, summary, details),
		})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("complete check run %s/%d: %w", repo, id, err)
	}
	return nil
}

func checkOutput(title, summary, details string) *github.CheckRunOutput {
	out := &github.CheckRunOutput{
		Title:   github.Ptr(title),
		Summary: github.Ptr(summary),
	}
	if details != "" {
		out.Text = github.Ptr(details)
	}
	return out
}
