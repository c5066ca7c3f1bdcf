package gate

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"mergegate/internal/checks"
	"mergegate/internal/match"
	"mergegate/internal/notify"
	"mergegate/internal/policy"
	"mergegate/internal/pull"
	"mergegate/internal/store"
)

// HandleCheckCompleted is the reactive resolution path: a status signal on a
// commit finished, so every parked external_status evaluation that waits on
// it gets another chance to settle. Signals for checks no parked rule cares
// about are ignored.
func (o *Orchestrator) HandleCheckCompleted(ctx context.Context, repo pull.Repo, sha, checkName string) {
	for _, p := range o.pending.ListPrefix(store.Prefix(repo, sha)) {
		if !p.Requires(checkName) {
			continue
		}
		o.resolvePending(ctx, p)
	}
}

// SweepExpired finalizes every parked evaluation whose timeout has elapsed,
// without waiting for a signal. The server runs it on a timer so a wait whose
// dependencies never report still reaches a terminal state.
func (o *Orchestrator) SweepExpired(ctx context.Context) {
	for _, p := range o.pending.ListPrefix("") {
		if p.Expired(o.now()) {
			o.resolvePending(ctx, p)
		}
	}
}

// resolvePending re-derives the verdict for one parked evaluation. The
// timeout is checked before the remote state, so an expired wait fails even
// when its dependencies would now pass.
func (o *Orchestrator) resolvePending(ctx context.Context, p store.PendingEvaluation) {
	name := o.checkName(p.RuleName)

	if p.Expired(o.now()) {
		res := checks.TimeoutResult(p.RequiredChecks, int(p.Timeout/time.Minute))
		o.finalizePending(ctx, p, name, res)
		return
	}

	states, err := o.states.CheckStates(ctx, p.Repo, p.HeadSHA)
	if err != nil {
		// Keep the entry; the next signal or fallback pass retries.
		slog.Error("check state query failed", "repo", p.Repo.String(), "sha", p.HeadSHA, "error", err)
		return
	}
	out := checks.Classify(p.RequiredChecks, states)
	if out.Class == checks.StatusUnresolved {
		return
	}
	o.finalizePending(ctx, p, name, checks.OutcomeResult(out, p.RequiredChecks))
}

func (o *Orchestrator) finalizePending(ctx context.Context, p store.PendingEvaluation, name string, res checks.Result) {
	res = o.overrideFromPolicy(ctx, p, res)
	if err := o.statuses.CompleteCheckRun(ctx, p.Repo, p.CheckRunID, name, string(res.Conclusion), res.Title, res.Summary, res.Details); err != nil {
		slog.Error("pending finalization failed", "repo", p.Repo.String(), "rule", p.RuleName, "error", err)
		return
	}
	o.pending.Delete(p.Key())
	o.republish(ctx, p, res)
}

// republish rebuilds the failure comment after a reactive resolution, so the
// comment and the status checks tell the same story. The just-finalized rule
// uses its terminal result; every other applicable rule is re-derived with a
// read-only pass, and rules still waiting stay out of the comment.
func (o *Orchestrator) republish(ctx context.Context, p store.PendingEvaluation, final checks.Result) {
	pr, err := o.pulls.PullContext(ctx, p.Repo, p.PRNumber)
	if err != nil {
		slog.Error("pull context rebuild failed", "repo", p.Repo.String(), "pr", p.PRNumber, "error", err)
		return
	}
	loaded, err := o.policies.Load(ctx, p.Repo, pr.BaseRef)
	if err != nil || loaded.State != policy.StateLoaded {
		return
	}

	var failures []notify.Failure
	evaluated := 0
	for _, rule := range loaded.Document.Rules {
		if !rule.AppliesToBranch(pr.BaseRef) {
			continue
		}
		if !match.Any(pr.ChangedFiles, rule.On.Paths.Include, rule.On.Paths.Exclude) {
			continue
		}
		evaluated++
		res := final
		if rule.Name != p.RuleName {
			res = o.dryRunRule(ctx, p.Repo, pr, rule)
			if rule.CheckType == policy.CheckExternalStatus && checks.IsWaiting(res) {
				continue
			}
		}
		if res.Conclusion == checks.ConclusionFailure && rule.Notifiable() {
			failures = append(failures, notify.Failure{Rule: rule.Name, Title: res.Title})
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Rule < failures[j].Rule })

	if len(failures) > 0 {
		o.notifier.Publish(ctx, p.Repo, pr.Number, failures)
	} else if evaluated > 0 {
		o.notifier.Publish(ctx, p.Repo, pr.Number, nil)
	}
}

// overrideFromPolicy re-reads the (cached) document so a reactive resolution
// honors the rule's failure_message the same way the direct path does.
func (o *Orchestrator) overrideFromPolicy(ctx context.Context, p store.PendingEvaluation, res checks.Result) checks.Result {
	loaded, err := o.policies.Load(ctx, p.Repo, p.BaseRef)
	if err != nil || loaded.State != policy.StateLoaded {
		return res
	}
	rule, ok := loaded.Document.RuleByName(p.RuleName)
	if !ok {
		return res
	}
	return applyFailureOverride(rule, res)
}
