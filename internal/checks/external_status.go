package checks

import (
	"context"
	"fmt"
	"strings"

	"mergegate/internal/policy"
	"mergegate/internal/pull"
)

// StatusLister reports the observed state of every named status signal on a
// commit.
type StatusLister interface {
	CheckStates(ctx context.Context, repo pull.Repo, sha string) (map[string]pull.CheckState, error)
}

// WaitingTitlePrefix marks an external_status result that is not terminal:
// some required checks have not completed yet. The orchestrator recognizes it
// and parks the evaluation instead of finalizing the status.
const WaitingTitlePrefix = "Waiting for: "

// IsWaiting reports whether a result signals an unresolved external_status
// wait rather than a terminal verdict.
func IsWaiting(r Result) bool {
	return strings.HasPrefix(r.Title, WaitingTitlePrefix)
}

// StatusClass is the classification of the required check set.
type StatusClass int

const (
	// StatusUnresolved means at least one required check is pending or missing
	// and none has failed.
	StatusUnresolved StatusClass = iota
	// StatusSuccess means every required check completed with success.
	StatusSuccess
	// StatusFailure means at least one required check completed without success.
	StatusFailure
)

// StatusOutcome is the result of classifying required check names against
// observed states.
type StatusOutcome struct {
	Class   StatusClass
	Pending []string // required order, pending or missing
	Failing []string // required order, completed non-success
}

// Classify maps each required name to completed-success, completed-non-success,
// or pending-or-missing, and derives the overall class. It is a pure function
// of its inputs: the reactive signal path and the fallback re-evaluation path
// both call it, so they can never diverge.
func Classify(required []string, states map[string]pull.CheckState) StatusOutcome {
	var out StatusOutcome
	for _, name := range required {
		st, ok := states[name]
		switch {
		case ok && st.CompletedSuccess():
			// satisfied
		case ok && st.CompletedNonSuccess():
			out.Failing = append(out.Failing, name)
		default:
			out.Pending = append(out.Pending, name)
		}
	}
	switch {
	case len(out.Failing) > 0:
		out.Class = StatusFailure
	case len(out.Pending) > 0:
		out.Class = StatusUnresolved
	default:
		out.Class = StatusSuccess
	}
	return out
}

// OutcomeResult renders a classification as a check result. The unresolved
// shape carries the waiting marker; the failure shape names the first failing
// check in the title and lists all of them in the summary.
func OutcomeResult(out StatusOutcome, required []string) Result {
	switch out.Class {
	case StatusSuccess:
		return success("All required checks passed", fmt.Sprintf("%d required checks completed successfully.", len(required)))
	case StatusFailure:
		return failure(
			fmt.Sprintf("Required check failed: %s", out.Failing[0]),
			fmt.Sprintf("Failed required checks: %s", strings.Join(out.Failing, ", ")),
		)
	default:
		return failure(
			WaitingTitlePrefix+strings.Join(out.Pending, ", "),
			fmt.Sprintf("Waiting for %d required checks to complete.", len(out.Pending)),
		)
	}
}

// ExternalStatus gates a rule on other status checks reported against the
// head commit. Unresolved results are not terminal; the orchestrator records
// a pending evaluation and resolves it reactively or on the next fallback
// pass.
type ExternalStatus struct {
	Statuses StatusLister
}

func (c *ExternalStatus) Type() policy.CheckType { return policy.CheckExternalStatus }

func (c *ExternalStatus) Description() string {
	return "Passes once every named external status check on the head commit has completed successfully; fails if any completes unsuccessfully or the configured timeout elapses."
}

func (c *ExternalStatus) Evaluate(ctx context.Context, repo pull.Repo, pr *pull.Context, rule policy.Rule) (Result, error) {
	states, err := c.Statuses.CheckStates(ctx, repo, pr.HeadSHA)
	if err != nil {
		return Result{}, err
	}
	out := Classify(rule.Config.Checks, states)
	return OutcomeResult(out, rule.Config.Checks), nil
}

// TimeoutResult is the terminal verdict for an external_status wait that
// exceeded its deadline.
func TimeoutResult(pending []string, timeoutMinutes int) Result {
	return failure(
		"Timed out waiting for required checks",
		fmt.Sprintf("Still waiting after %d minutes for: %s", timeoutMinutes, strings.Join(pending, ", ")),
	)
}
