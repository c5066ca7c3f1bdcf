// Package pull holds the domain model shared between the GitHub adapter,
// the check implementations, and the evaluation orchestrator.
package pull

import "time"

// Repo identifies a repository by owner and name.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// Context carries everything a single evaluation pass needs to know about a
// pull request. It is rebuilt from the API on every trigger and owned by
// exactly one evaluation call; nothing mutates it concurrently.
type Context struct {
	Number       int
	HeadSHA      string
	BaseRef      string
	BaseSHA      string
	ChangedFiles []string
	// Description is the PR body text, the source of allowlist directives.
	Description string
}

// Review is one submitted pull request review, in submission order.
type Review struct {
	Login       string
	State       string
	SubmittedAt time.Time
}

// Review states as reported by the API.
const (
	ReviewApproved         = "APPROVED"
	ReviewChangesRequested = "CHANGES_REQUESTED"
	ReviewCommented        = "COMMENTED"
	ReviewDismissed        = "DISMISSED"
)

// Comment is one issue comment on a pull request.
type Comment struct {
	ID   int64
	Body string
}

// CheckState is the observed state of one named status check on a commit.
// It normalizes check runs and legacy commit statuses into one shape.
type CheckState struct {
	Status     string // "queued", "in_progress", "completed"
	Conclusion string // set only when Status is "completed"
}

// CompletedSuccess reports whether the check finished with a success conclusion.
func (s CheckState) CompletedSuccess() bool {
	return s.Status == "completed" && s.Conclusion == "success"
}

// CompletedNonSuccess reports whether the check finished with any conclusion
// other than success (failure, cancelled, timed_out, action_required, ...).
func (s CheckState) CompletedNonSuccess() bool {
	return s.Status == "completed" && s.Conclusion != "success"
}
