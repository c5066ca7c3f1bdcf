package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v81/github"

	"mergegate/internal/pull"
)

// Reviews lists every submitted review on a pull request, in submission order.
func (s *Service) Reviews(ctx context.Context, repo pull.Repo, number int) ([]pull.Review, error) {
	var reviews []pull.Review
	opts := &github.ListOptions{PerPage: perPage}
	for {
		var next int
		page, err := DoWithResult(ctx, s.retry, "pulls.reviews", func() ([]*github.PullRequestReview, *github.Response, error) {
			page, resp, err := s.client.Client.PullRequests.ListReviews(ctx, repo.Owner, repo.Name, number, opts)
			if err != nil {
				return nil, resp, err
			}
			next = resp.NextPage
			return page, resp, nil
		})
		if err != nil {
			return nil, fmt.Errorf("list reviews %s#%d: %w", repo, number, err)
		}
		for _, r := range page {
			reviews = append(reviews, pull.Review{
				Login:       r.GetUser().GetLogin(),
				State:       r.GetState(),
				SubmittedAt: r.GetSubmittedAt().Time,
			})
		}
		if next == 0 {
			return reviews, nil
		}
		opts.Page = next
	}
}

// TeamMembers resolves a team slug to its member logins. A 404 (team gone) or
// 403 (token lacks org scope) is non-fatal: the team resolves to an empty
// member set with a warning, so one stale team name cannot error a whole rule.
func (s *Service) TeamMembers(ctx context.Context, org, slug string) ([]string, error) {
	var members []string
	opts := &github.TeamListTeamMembersOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		var next int
		page, err := DoWithResult(ctx, s.retry, "teams.members", func() ([]*github.User, *github.Response, error) {
			page, resp, err := s.client.Client.Teams.ListTeamMembersBySlug(ctx, org, slug, opts)
			if err != nil {
				return nil, resp, err
			}
			next = resp.NextPage
			return page, resp, nil
		})
		if err != nil {
			if isStatus(err, http.StatusNotFound) || isStatus(err, http.StatusForbidden) {
				slog.Warn("team lookup failed, treating as empty", "org", org, "team", slug, "error", err)
				return nil, nil
			}
			return nil, fmt.Errorf("list team members %s/%s: %w", org, slug, err)
		}
		for _, u := range page {
			members = append(members, u.GetLogin())
		}
		if next == 0 {
			return members, nil
		}
		opts.Page = next
	}
}

// RequestReviewers asks the named users and teams for review.
func (s *Service) RequestReviewers(ctx context.Context, repo pull.Repo, number int, users, teams []string) error {
	if len(users) == 0 && len(teams) == 0 {
		return nil
	}
	err := s.retry.Do(ctx, "pulls.request_reviewers", func() (*github.Response, error) {
		_, resp, err := s.client.Client.PullRequests.RequestReviewers(ctx, repo.Owner, repo.Name, number, github.ReviewersRequest{
			Reviewers:     users,
			TeamReviewers: teams,
		})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("request reviewers %s#%d: %w", repo, number, err)
	}
	return nil
}
