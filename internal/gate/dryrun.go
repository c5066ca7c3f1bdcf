package gate

import (
	"context"
	"fmt"
	"strings"

	"mergegate/internal/checks"
	"mergegate/internal/match"
	"mergegate/internal/policy"
	"mergegate/internal/pull"
)

// RuleReport is one rule's outcome from a read-only evaluation pass.
type RuleReport struct {
	Rule       policy.Rule
	Applicable bool
	// SkipReason explains a non-applicable rule.
	SkipReason string
	Waiting    bool
	Result     checks.Result
}

// DryRun evaluates every rule against the pull request without writing
// status checks, pending entries, or comments. It backs the one-shot CLI
// evaluation.
func (o *Orchestrator) DryRun(ctx context.Context, repo pull.Repo, pr *pull.Context) ([]RuleReport, error) {
	loaded, err := o.policies.Load(ctx, repo, pr.BaseRef)
	if err != nil {
		return nil, err
	}
	switch loaded.State {
	case policy.StateMissing:
		return nil, nil
	case policy.StateInvalid:
		return nil, fmt.Errorf("invalid configuration document:\n- %s", strings.Join(loaded.Errors, "\n- "))
	}

	var reports []RuleReport
	for _, rule := range loaded.Document.Rules {
		rep := RuleReport{Rule: rule}
		switch {
		case !rule.AppliesToBranch(pr.BaseRef):
			rep.SkipReason = fmt.Sprintf("base branch %q is not targeted", pr.BaseRef)
		case !match.Any(pr.ChangedFiles, rule.On.Paths.Include, rule.On.Paths.Exclude):
			rep.SkipReason = "no changed files match"
		default:
			rep.Applicable = true
			rep.Result = o.dryRunRule(ctx, repo, pr, rule)
			rep.Waiting = rule.CheckType == policy.CheckExternalStatus && checks.IsWaiting(rep.Result)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (o *Orchestrator) dryRunRule(ctx context.Context, repo pull.Repo, pr *pull.Context, rule policy.Rule) (res checks.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = internalErrorResult()
		}
	}()
	// A read-only pass must not nudge reviewers, whatever the rule says.
	rule.Config.RequestReviewers = false

	check, err := o.registry.Resolve(rule.CheckType)
	if err != nil {
		return internalErrorResult()
	}
	res, err = check.Evaluate(ctx, repo, pr, rule)
	if err != nil {
		return internalErrorResult()
	}
	return applyFailureOverride(rule, res)
}
