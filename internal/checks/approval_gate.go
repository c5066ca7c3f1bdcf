package checks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"mergegate/internal/policy"
	"mergegate/internal/pull"
)

// ReviewLister fetches submitted reviews for a pull request, in submission
// order.
type ReviewLister interface {
	Reviews(ctx context.Context, repo pull.Repo, number int) ([]pull.Review, error)
}

// TeamResolver resolves a team slug to member logins. Lookup failures that
// mean "no such team for this token" resolve to an empty set, not an error.
type TeamResolver interface {
	TeamMembers(ctx context.Context, org, slug string) ([]string, error)
}

// ReviewerRequester asks users and teams for review.
type ReviewerRequester interface {
	RequestReviewers(ctx context.Context, repo pull.Repo, number int, users, teams []string) error
}

// ApprovalGate requires approvals from configured users and teams. A standing
// CHANGES_REQUESTED review from anyone blocks the gate outright, even a
// reviewer outside every configured requirement.
type ApprovalGate struct {
	Reviews  ReviewLister
	Teams    TeamResolver
	Requests ReviewerRequester
}

func (c *ApprovalGate) Type() policy.CheckType { return policy.CheckApprovalGate }

func (c *ApprovalGate) Description() string {
	return "Requires approvals from the configured users/teams (mode any or all) and fails while any reviewer's latest meaningful review requests changes."
}

// latestMeaningfulStates collapses reviews to one state per reviewer
// (case-insensitive login). COMMENTED and DISMISSED never count as the latest
// state; they are skipped so they cannot overwrite an earlier approval or
// change request.
func latestMeaningfulStates(reviews []pull.Review) map[string]string {
	latest := make(map[string]string)
	for _, r := range reviews {
		switch r.State {
		case pull.ReviewApproved, pull.ReviewChangesRequested:
			latest[strings.ToLower(r.Login)] = r.State
		}
	}
	return latest
}

type requirement struct {
	name      string // "@user" or "@team-slug"
	team      string // team slug when a team requirement
	user      string // configured login when a user requirement
	approvers map[string]bool
	satisfied bool
}

func (c *ApprovalGate) Evaluate(ctx context.Context, repo pull.Repo, pr *pull.Context, rule policy.Rule) (Result, error) {
	reviews, err := c.Reviews.Reviews(ctx, repo, pr.Number)
	if err != nil {
		return Result{}, err
	}

	latest := latestMeaningfulStates(reviews)

	// Standing change requests take precedence over everything else.
	var blockers []string
	approved := make(map[string]bool)
	for login, state := range latest {
		switch state {
		case pull.ReviewChangesRequested:
			blockers = append(blockers, "@"+login)
		case pull.ReviewApproved:
			approved[login] = true
		}
	}
	if len(blockers) > 0 {
		sort.Strings(blockers)
		return failure(
			"Changes requested",
			fmt.Sprintf("Reviews requesting changes are outstanding from: %s", strings.Join(blockers, ", ")),
		), nil
	}

	reqs := make([]requirement, 0, len(rule.Config.Teams)+len(rule.Config.Users))
	for _, team := range rule.Config.Teams {
		members, err := c.Teams.TeamMembers(ctx, repo.Owner, team)
		if err != nil {
			return Result{}, err
		}
		valid := make(map[string]bool, len(members))
		for _, m := range members {
			valid[strings.ToLower(m)] = true
		}
		reqs = append(reqs, requirement{name: "@" + team, team: team, approvers: valid})
	}
	for _, user := range rule.Config.Users {
		login := strings.ToLower(user)
		reqs = append(reqs, requirement{name: "@" + user, user: user, approvers: map[string]bool{login: true}})
	}

	satisfied := 0
	var unmet []requirement
	for i := range reqs {
		for login := range approved {
			if reqs[i].approvers[login] {
				reqs[i].satisfied = true
				break
			}
		}
		if reqs[i].satisfied {
			satisfied++
		} else {
			unmet = append(unmet, reqs[i])
		}
	}

	mode := rule.Config.Mode
	if mode == "" {
		mode = "any"
	}
	pass := satisfied == len(reqs)
	if mode == "any" {
		pass = satisfied > 0
	}

	if pass {
		return success("Approved", fmt.Sprintf("%d of %d approval requirements satisfied.", satisfied, len(reqs))), nil
	}

	names := make([]string, len(unmet))
	for i, r := range unmet {
		names[i] = r.name
	}

	// Nudge only the requirements still unmet. Never when the failure cause
	// was a change request (those reviewers are already engaged), and never
	// re-request an already-satisfied requirement.
	if rule.Config.RequestReviewers && c.Requests != nil {
		var users, teams []string
		for _, r := range unmet {
			if r.team != "" {
				teams = append(teams, r.team)
			} else {
				users = append(users, r.user)
			}
		}
		if err := c.Requests.RequestReviewers(ctx, repo, pr.Number, users, teams); err != nil {
			slog.Warn("review request failed", "repo", repo.String(), "pr", pr.Number, "error", err)
		}
	}

	return failure(
		"Approval required",
		fmt.Sprintf("Missing approval from: %s", strings.Join(names, ", ")),
	), nil
}
