// Package gate contains the rule evaluation orchestrator: it matches rules to
// a pull request, fans the applicable ones out concurrently, reconciles each
// result with the remote status-check record, parks unresolved external
// status waits, and aggregates failures into the notification comment.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mergegate/internal/checks"
	"mergegate/internal/match"
	"mergegate/internal/notify"
	"mergegate/internal/policy"
	"mergegate/internal/pull"
	"mergegate/internal/store"
)

// DefaultCheckPrefix namespaces every status check this engine writes.
const DefaultCheckPrefix = "mergegate"

// ConfigCheckSlug is the reserved name for the configuration-error check,
// distinct from every per-rule check.
const ConfigCheckSlug = "config"

// StatusAPI is the remote status-check surface the orchestrator writes to.
type StatusAPI interface {
	FindCheckRun(ctx context.Context, repo pull.Repo, sha, name string) (int64, bool, error)
	CreateCheckRun(ctx context.Context, repo pull.Repo, sha, name, title, summary string) (int64, error)
	StartCheckRun(ctx context.Context, repo pull.Repo, id int64, name, title, summary string) error
	CompleteCheckRun(ctx context.Context, repo pull.Repo, id int64, name, conclusion, title, summary, details string) error
}

// PullAPI rebuilds evaluation contexts and enumerates open pull requests.
type PullAPI interface {
	PullContext(ctx context.Context, repo pull.Repo, number int) (*pull.Context, error)
	OpenPullNumbers(ctx context.Context, repo pull.Repo, base string) ([]int, error)
}

// Notifier maintains the sticky failure comment.
type Notifier interface {
	Publish(ctx context.Context, repo pull.Repo, number int, failures []notify.Failure)
}

// PolicyLoader resolves the configuration document for a repository.
type PolicyLoader interface {
	Load(ctx context.Context, repo pull.Repo, ref string) (policy.LoadResult, error)
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Statuses StatusAPI
	Pulls    PullAPI
	States   checks.StatusLister
	Registry *checks.Registry
	Pending  store.PendingStore
	Notifier Notifier
	Policies PolicyLoader
}

// Options tunes the orchestrator; zero values take defaults.
type Options struct {
	CheckPrefix string
	BatchSize   int
	BatchDelay  time.Duration
}

// Orchestrator owns the lifetime of a single evaluation pass. It is safe for
// concurrent use across triggers; there is no global lock.
type Orchestrator struct {
	statuses StatusAPI
	pulls    PullAPI
	states   checks.StatusLister
	registry *checks.Registry
	pending  store.PendingStore
	notifier Notifier
	policies PolicyLoader

	prefix     string
	batchSize  int
	batchDelay time.Duration

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, opts Options) *Orchestrator {
	prefix := opts.CheckPrefix
	if prefix == "" {
		prefix = DefaultCheckPrefix
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	batchDelay := opts.BatchDelay
	if batchDelay <= 0 {
		batchDelay = 2 * time.Second
	}
	return &Orchestrator{
		statuses:   deps.Statuses,
		pulls:      deps.Pulls,
		states:     deps.States,
		registry:   deps.Registry,
		pending:    deps.Pending,
		notifier:   deps.Notifier,
		policies:   deps.Policies,
		prefix:     prefix,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		now:        time.Now,
	}
}

func (o *Orchestrator) checkName(rule string) string {
	return o.prefix + "/" + rule
}

// EvaluatePR runs every applicable rule against the pull request and
// reconciles status checks and the notification comment. Replaying it with
// unchanged inputs converges to the same remote state.
func (o *Orchestrator) EvaluatePR(ctx context.Context, repo pull.Repo, pr *pull.Context) error {
	loaded, err := o.policies.Load(ctx, repo, pr.BaseRef)
	if err != nil {
		return err
	}
	switch loaded.State {
	case policy.StateMissing:
		slog.Debug("no policy document", "repo", repo.String(), "pr", pr.Number)
		return nil
	case policy.StateInvalid:
		return o.reportConfigError(ctx, repo, pr.HeadSHA, loaded.Errors)
	}

	outcomes := o.evaluateRules(ctx, repo, pr, loaded.Document.Rules)

	var failures []notify.Failure
	evaluated := 0
	for _, out := range outcomes {
		if !out.evaluated {
			continue
		}
		evaluated++
		if out.waiting {
			continue
		}
		if out.result.Conclusion == checks.ConclusionFailure && out.rule.Notifiable() {
			failures = append(failures, notify.Failure{Rule: out.rule.Name, Title: out.result.Title})
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Rule < failures[j].Rule })

	if len(failures) > 0 {
		o.notifier.Publish(ctx, repo, pr.Number, failures)
	} else if evaluated > 0 {
		o.notifier.Publish(ctx, repo, pr.Number, nil)
	}
	return nil
}

// reportConfigError surfaces schema violations as one dedicated failing
// check; no rule evaluation happens on an invalid document.
func (o *Orchestrator) reportConfigError(ctx context.Context, repo pull.Repo, sha string, errs []string) error {
	name := o.checkName(ConfigCheckSlug)
	summary := "The configuration document is invalid:\n"
	for _, e := range errs {
		summary += "- " + e + "\n"
	}

	id, found, err := o.statuses.FindCheckRun(ctx, repo, sha, name)
	if err != nil {
		return err
	}
	if !found {
		if id, err = o.statuses.CreateCheckRun(ctx, repo, sha, name, "Invalid configuration", summary); err != nil {
			return err
		}
	}
	return o.statuses.CompleteCheckRun(ctx, repo, id, name, string(checks.ConclusionFailure), "Invalid configuration", summary, "")
}

type ruleOutcome struct {
	rule      policy.Rule
	evaluated bool
	waiting   bool
	result    checks.Result
}

// evaluateRules fans out one goroutine per branch-applicable rule and waits
// for all of them to settle. A rule that errors or panics yields a failing
// internal-error outcome without disturbing its siblings.
func (o *Orchestrator) evaluateRules(ctx context.Context, repo pull.Repo, pr *pull.Context, rules []policy.Rule) []ruleOutcome {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes []ruleOutcome
	)
	for _, rule := range rules {
		if !rule.AppliesToBranch(pr.BaseRef) {
			continue
		}
		wg.Add(1)
		go func(rule policy.Rule) {
			defer wg.Done()
			out := o.runRule(ctx, repo, pr, rule)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		}(rule)
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) runRule(ctx context.Context, repo pull.Repo, pr *pull.Context, rule policy.Rule) (out ruleOutcome) {
	out.rule = rule
	defer func() {
		if r := recover(); r != nil {
			slog.Error("rule evaluation panicked", "repo", repo.String(), "pr", pr.Number, "rule", rule.Name, "panic", r)
			out = o.failInternal(ctx, repo, pr, rule, fmt.Errorf("panic: %v", r))
		}
	}()

	name := o.checkName(rule.Name)

	if !match.Any(pr.ChangedFiles, rule.On.Paths.Include, rule.On.Paths.Exclude) {
		// Non-matching rule: overwrite an existing record to success so a
		// required check stays satisfiable, but never create one from
		// scratch.
		id, found, err := o.statuses.FindCheckRun(ctx, repo, pr.HeadSHA, name)
		if err != nil {
			slog.Error("check run lookup failed", "repo", repo.String(), "rule", rule.Name, "error", err)
			return out
		}
		if found {
			if err := o.statuses.CompleteCheckRun(ctx, repo, id, name, string(checks.ConclusionSuccess), "Not applicable", "No changed files match this rule.", ""); err != nil {
				slog.Error("not-applicable overwrite failed", "repo", repo.String(), "rule", rule.Name, "error", err)
			}
		}
		return out
	}

	id, found, err := o.statuses.FindCheckRun(ctx, repo, pr.HeadSHA, name)
	if err != nil {
		return o.failInternal(ctx, repo, pr, rule, err)
	}
	if found {
		if err := o.statuses.StartCheckRun(ctx, repo, id, name, "Evaluating", "Rule evaluation is in progress."); err != nil {
			return o.failInternal(ctx, repo, pr, rule, err)
		}
	} else {
		if id, err = o.statuses.CreateCheckRun(ctx, repo, pr.HeadSHA, name, "Evaluating", "Rule evaluation is in progress."); err != nil {
			return o.failInternal(ctx, repo, pr, rule, err)
		}
	}

	check, err := o.registry.Resolve(rule.CheckType)
	if err != nil {
		return o.completeInternal(ctx, repo, pr, rule, id, err)
	}
	res, err := check.Evaluate(ctx, repo, pr, rule)
	if err != nil {
		return o.completeInternal(ctx, repo, pr, rule, id, err)
	}

	if rule.CheckType == policy.CheckExternalStatus && checks.IsWaiting(res) {
		p := o.pendingFor(repo, pr, rule, id)
		if p.Expired(o.now()) {
			res = checks.TimeoutResult(p.RequiredChecks, int(p.Timeout/time.Minute))
		} else {
			// Not terminal: leave the record in progress with the waiting
			// text and park the evaluation for reactive resolution.
			if err := o.statuses.StartCheckRun(ctx, repo, id, name, res.Title, res.Summary); err != nil {
				slog.Error("waiting status update failed", "repo", repo.String(), "rule", rule.Name, "error", err)
			}
			o.pending.Set(p)
			out.evaluated = true
			out.waiting = true
			out.result = res
			return out
		}
	}

	res = applyFailureOverride(rule, res)
	if err := o.statuses.CompleteCheckRun(ctx, repo, id, name, string(res.Conclusion), res.Title, res.Summary, res.Details); err != nil {
		return o.failInternal(ctx, repo, pr, rule, err)
	}
	if rule.CheckType == policy.CheckExternalStatus {
		o.pending.Delete(store.Key(repo, pr.HeadSHA, rule.Name))
	}

	out.evaluated = true
	out.result = res
	return out
}

// pendingFor builds the wait record, preserving the original creation time
// when the rule was already parked so re-evaluation cannot reset the timeout
// clock.
func (o *Orchestrator) pendingFor(repo pull.Repo, pr *pull.Context, rule policy.Rule, checkRunID int64) store.PendingEvaluation {
	p := store.PendingEvaluation{
		Repo:           repo,
		PRNumber:       pr.Number,
		HeadSHA:        pr.HeadSHA,
		BaseRef:        pr.BaseRef,
		RuleName:       rule.Name,
		RequiredChecks: rule.Config.Checks,
		CheckRunID:     checkRunID,
		CreatedAt:      o.now(),
		Timeout:        time.Duration(rule.Config.ExternalStatusTimeoutMinutes()) * time.Minute,
	}
	if prev, ok := o.pending.Get(p.Key()); ok {
		p.CreatedAt = prev.CreatedAt
	}
	return p
}

func internalErrorResult() checks.Result {
	return checks.Result{
		Conclusion: checks.ConclusionFailure,
		Title:      "Internal error",
		Summary:    "The rule could not be evaluated. This is an engine problem, not a problem with the pull request; re-run the check or contact the operators.",
	}
}

// completeInternal finalizes an already in-progress check run as an internal
// error.
func (o *Orchestrator) completeInternal(ctx context.Context, repo pull.Repo, pr *pull.Context, rule policy.Rule, id int64, cause error) ruleOutcome {
	slog.Error("rule evaluation failed", "repo", repo.String(), "pr", pr.Number, "rule", rule.Name, "error", cause)
	res := internalErrorResult()
	name := o.checkName(rule.Name)
	if err := o.statuses.CompleteCheckRun(ctx, repo, id, name, string(res.Conclusion), res.Title, res.Summary, res.Details); err != nil {
		slog.Error("internal error status write failed", "repo", repo.String(), "rule", rule.Name, "error", err)
	}
	return ruleOutcome{rule: rule, evaluated: true, result: res}
}

// failInternal is completeInternal for the case where no in-progress record
// id is at hand; it finds or creates one best-effort so the rule still ends
// in a crisp terminal state.
func (o *Orchestrator) failInternal(ctx context.Context, repo pull.Repo, pr *pull.Context, rule policy.Rule, cause error) ruleOutcome {
	slog.Error("rule evaluation failed", "repo", repo.String(), "pr", pr.Number, "rule", rule.Name, "error", cause)
	res := internalErrorResult()
	name := o.checkName(rule.Name)

	id, found, err := o.statuses.FindCheckRun(ctx, repo, pr.HeadSHA, name)
	if err == nil && !found {
		id, err = o.statuses.CreateCheckRun(ctx, repo, pr.HeadSHA, name, res.Title, res.Summary)
	}
	if err == nil {
		err = o.statuses.CompleteCheckRun(ctx, repo, id, name, string(res.Conclusion), res.Title, res.Summary, res.Details)
	}
	if err != nil {
		slog.Error("internal error status write failed", "repo", repo.String(), "rule", rule.Name, "error", err)
	}
	return ruleOutcome{rule: rule, evaluated: true, result: res}
}

// applyFailureOverride swaps in the rule's custom failure text, each part
// individually. Success output is never overridden.
func applyFailureOverride(rule policy.Rule, res checks.Result) checks.Result {
	if res.Conclusion != checks.ConclusionFailure || rule.FailureMessage == nil {
		return res
	}
	if rule.FailureMessage.Title != "" {
		res.Title = rule.FailureMessage.Title
	}
	if rule.FailureMessage.Summary != "" {
		res.Summary = rule.FailureMessage.Summary
	}
	return res
}
