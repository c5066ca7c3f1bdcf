// Package notify maintains the single sticky summary comment per pull
// request reflecting the current set of failing rules.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mergegate/internal/pull"
)

// Marker identifies the sticky comment. It is invisible in rendered Markdown
// and must never change, or existing comments would be orphaned and
// duplicated.
const Marker = "<!-- mergegate: notify -->"

// RecheckCommand re-runs evaluation when posted as a PR comment.
const RecheckCommand = "/mergegate recheck"

// Failure is one failing, notification-eligible rule result.
type Failure struct {
	Rule  string
	Title string
}

// CommentAPI is the comment surface the manager needs.
type CommentAPI interface {
	ListComments(ctx context.Context, repo pull.Repo, number int) ([]pull.Comment, error)
	CreateComment(ctx context.Context, repo pull.Repo, number int, body string) error
	UpdateComment(ctx context.Context, repo pull.Repo, id int64, body string) error
}

// Manager finds, creates, and updates the sticky comment. Delivery failures
// are logged and swallowed: the authoritative verdict lives in the status
// checks, and a missed comment must never affect it.
type Manager struct {
	comments CommentAPI
}

func NewManager(comments CommentAPI) *Manager {
	return &Manager{comments: comments}
}

// Publish reconciles the sticky comment with the current failure set. An
// empty set clears a previously posted notice; it never creates a comment
// just to say everything passed.
func (m *Manager) Publish(ctx context.Context, repo pull.Repo, number int, failures []Failure) {
	body := resolvedBody()
	if len(failures) > 0 {
		body = failureBody(failures)
	}

	existing, found, err := m.findSticky(ctx, repo, number)
	if err != nil {
		slog.Error("notification comment lookup failed", "repo", repo.String(), "pr", number, "error", err)
		return
	}

	switch {
	case found && existing.Body == body:
		// Idempotent: nothing changed since the last evaluation.
	case found:
		if err := m.comments.UpdateComment(ctx, repo, existing.ID, body); err != nil {
			slog.Error("notification comment update failed", "repo", repo.String(), "pr", number, "error", err)
		}
	case len(failures) > 0:
		if err := m.comments.CreateComment(ctx, repo, number, body); err != nil {
			slog.Error("notification comment create failed", "repo", repo.String(), "pr", number, "error", err)
		}
	}
}

// findSticky scans the PR's comments for the marker. Comments without the
// marker are never touched.
func (m *Manager) findSticky(ctx context.Context, repo pull.Repo, number int) (pull.Comment, bool, error) {
	comments, err := m.comments.ListComments(ctx, repo, number)
	if err != nil {
		return pull.Comment{}, false, err
	}
	for _, c := range comments {
		if strings.Contains(c.Body, Marker) {
			return c, true, nil
		}
	}
	return pull.Comment{}, false, nil
}

func failureBody(failures []Failure) string {
	var b strings.Builder
	b.WriteString(Marker + "\n")
	fmt.Fprintf(&b, "### Merge gate: %d failing rule(s)\n\n", len(failures))
	b.WriteString("| Rule | Problem |\n|------|---------|\n")
	for _, f := range failures {
		fmt.Fprintf(&b, "| `%s` | %s |\n", f.Rule, f.Title)
	}
	fmt.Fprintf(&b, "\nAfter addressing these, comment `%s` to re-run the checks.\n", RecheckCommand)
	return b.String()
}

func resolvedBody() string {
	return Marker + "\n### Merge gate: all rules passing\n\nEvery previously reported problem has been resolved.\n"
}
