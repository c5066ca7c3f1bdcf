package github

import (
	"context"
	"fmt"

	"github.com/google/go-github/v81/github"

	"mergegate/internal/pull"
)

// ListComments returns every issue comment on a pull request, oldest first.
func (s *Service) ListComments(ctx context.Context, repo pull.Repo, number int) ([]pull.Comment, error) {
	var comments []pull.Comment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		var next int
		page, err := DoWithResult(ctx, s.retry, "issues.comments", func() ([]*github.IssueComment, *github.Response, error) {
			page, resp, err := s.client.Client.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
			if err != nil {
				return nil, resp, err
			}
			next = resp.NextPage
			return page, resp, nil
		})
		if err != nil {
			return nil, fmt.Errorf("list comments %s#%d: %w", repo, number, err)
		}
		for _, c := range page {
			comments = append(comments, pull.Comment{ID: c.GetID(), Body: c.GetBody()})
		}
		if next == 0 {
			return comments, nil
		}
		opts.Page = next
	}
}

// CreateComment posts a new issue comment.
func (s *Service) CreateComment(ctx context.Context, repo pull.Repo, number int, body string) error {
	err := s.retry.Do(ctx, "issues.create_comment", func() (*github.Response, error) {
		_, resp, err := s.client.Client.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, &github.IssueComment{Body: github.Ptr(body)})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("create comment %s#%d: %w", repo, number, err)
	}
	return nil
}

// UpdateComment replaces the body of an existing issue comment.
func (s *Service) UpdateComment(ctx context.Context, repo pull.Repo, id int64, body string) error {
	err := s.retry.Do(ctx, "issues.update_comment", func() (*github.Response, error) {
		_, resp, err := s.client.Client.Issues.EditComment(ctx, repo.Owner, repo.Name, id, &github.IssueComment{Body: github.Ptr(body)})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("update comment %s/%d: %w", repo, id, err)
	}
	return nil
}
