package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergegate/internal/notify"
	"mergegate/internal/policy"
	"mergegate/internal/pull"
	"mergegate/internal/store"
)

func parked(h *harness, ruleName string, required []string, createdAt time.Time) store.PendingEvaluation {
	id := h.statuses.seed("mergegate/" + ruleName)
	p := store.PendingEvaluation{
		Repo:           testRepo,
		PRNumber:       7,
		HeadSHA:        "abc123",
		BaseRef:        "main",
		RuleName:       ruleName,
		RequiredChecks: required,
		CheckRunID:     id,
		CreatedAt:      createdAt,
		Timeout:        30 * time.Minute,
	}
	h.pending.Set(p)
	return p
}

func TestHandleCheckCompletedFinalizesOnSuccess(t *testing.T) {
	states := map[string]pull.CheckState{
		"lint":      {Status: "completed", Conclusion: "success"},
		"typecheck": {Status: "completed", Conclusion: "success"},
	}
	h := newHarness(loaded(), states)
	p := parked(h, "wait-for-ci", []string{"lint", "typecheck"}, time.Now())

	h.orch.HandleCheckCompleted(context.Background(), testRepo, "abc123", "typecheck")

	got, ok := h.statuses.done["mergegate/wait-for-ci"]
	require.True(t, ok)
	assert.Equal(t, "success", got.conclusion)
	_, still := h.pending.Get(p.Key())
	assert.False(t, still, "a finalized wait must be forgotten")
}

func TestHandleCheckCompletedFinalizesOnFailure(t *testing.T) {
	states := map[string]pull.CheckState{
		"lint":      {Status: "completed", Conclusion: "failure"},
		"typecheck": {Status: "completed", Conclusion: "success"},
	}
	h := newHarness(loaded(), states)
	parked(h, "wait-for-ci", []string{"lint", "typecheck"}, time.Now())

	h.orch.HandleCheckCompleted(context.Background(), testRepo, "abc123", "lint")

	got := h.statuses.done["mergegate/wait-for-ci"]
	assert.Equal(t, "failure", got.conclusion)
	assert.Equal(t, "Required check failed: lint", got.title)
}

func TestHandleCheckCompletedIgnoresUnrelatedSignals(t *testing.T) {
	h := newHarness(loaded(), nil)
	p := parked(h, "wait-for-ci", []string{"lint"}, time.Now())

	h.orch.HandleCheckCompleted(context.Background(), testRepo, "abc123", "deploy-preview")

	assert.Empty(t, h.statuses.done)
	_, still := h.pending.Get(p.Key())
	assert.True(t, still)
}

func TestHandleCheckCompletedKeepsUnresolvedWaits(t *testing.T) {
	states := map[string]pull.CheckState{
		"lint": {Status: "completed", Conclusion: "success"},
		// typecheck still missing
	}
	h := newHarness(loaded(), states)
	p := parked(h, "wait-for-ci", []string{"lint", "typecheck"}, time.Now())

	h.orch.HandleCheckCompleted(context.Background(), testRepo, "abc123", "lint")

	assert.Empty(t, h.statuses.done)
	_, still := h.pending.Get(p.Key())
	assert.True(t, still, "a partially resolved wait stays parked")
}

func TestHandleCheckCompletedTimeoutWinsOverLateSuccess(t *testing.T) {
	states := map[string]pull.CheckState{
		"lint": {Status: "completed", Conclusion: "success"},
	}
	h := newHarness(loaded(), states)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := parked(h, "wait-for-ci", []string{"lint"}, start)
	h.orch.now = func() time.Time { return start.Add(31 * time.Minute) }

	h.orch.HandleCheckCompleted(context.Background(), testRepo, "abc123", "lint")

	got := h.statuses.done["mergegate/wait-for-ci"]
	assert.Equal(t, "failure", got.conclusion)
	assert.Equal(t, "Timed out waiting for required checks", got.title)
	assert.Contains(t, got.summary, "30 minutes")
	_, still := h.pending.Get(p.Key())
	assert.False(t, still)
}

func TestHandleCheckCompletedAppliesFailureOverride(t *testing.T) {
	wait := rule("wait-for-ci", policy.CheckExternalStatus)
	wait.Config.Checks = []string{"lint"}
	wait.FailureMessage = &policy.FailureMessage{Title: "CI must pass first"}

	states := map[string]pull.CheckState{
		"lint": {Status: "completed", Conclusion: "failure"},
	}
	h := newHarness(loaded(wait), states)
	parked(h, "wait-for-ci", []string{"lint"}, time.Now())

	h.orch.HandleCheckCompleted(context.Background(), testRepo, "abc123", "lint")

	assert.Equal(t, "CI must pass first", h.statuses.done["mergegate/wait-for-ci"].title)
}

func TestHandleCheckCompletedRepublishesFailureComment(t *testing.T) {
	wait := rule("wait-for-ci", policy.CheckExternalStatus)
	wait.Config.Checks = []string{"lint"}
	changelog := rule("changelog", policy.CheckFilePresence)

	states := map[string]pull.CheckState{
		"lint": {Status: "completed", Conclusion: "failure"},
	}
	h := newHarness(loaded(wait, changelog), states,
		stubCheck{typ: policy.CheckFilePresence, res: failResult("Missing CHANGELOG")})
	h.pulls.contexts[7] = testPR()
	parked(h, "wait-for-ci", []string{"lint"}, time.Now())

	h.orch.HandleCheckCompleted(context.Background(), testRepo, "abc123", "lint")

	assert.Equal(t, "failure", h.statuses.done["mergegate/wait-for-ci"].conclusion)
	require.Len(t, h.notifier.published, 1, "a reactive failure must refresh the comment")
	assert.Equal(t, []notify.Failure{
		{Rule: "changelog", Title: "Missing CHANGELOG"},
		{Rule: "wait-for-ci", Title: "Required check failed: lint"},
	}, h.notifier.published[0])
}

func TestHandleCheckCompletedClearsCommentAfterSuccess(t *testing.T) {
	wait := rule("wait-for-ci", policy.CheckExternalStatus)
	wait.Config.Checks = []string{"lint"}

	states := map[string]pull.CheckState{
		"lint": {Status: "completed", Conclusion: "success"},
	}
	h := newHarness(loaded(wait), states)
	h.pulls.contexts[7] = testPR()
	parked(h, "wait-for-ci", []string{"lint"}, time.Now())

	h.orch.HandleCheckCompleted(context.Background(), testRepo, "abc123", "lint")

	assert.Equal(t, "success", h.statuses.done["mergegate/wait-for-ci"].conclusion)
	require.Len(t, h.notifier.published, 1)
	assert.Empty(t, h.notifier.published[0], "a fully passing PR publishes the all-clear")
}

func TestSweepExpiredOnlyTouchesExpiredEntries(t *testing.T) {
	h := newHarness(loaded(), nil)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	old := parked(h, "old-wait", []string{"lint"}, start)
	fresh := parked(h, "fresh-wait", []string{"lint"}, start.Add(25*time.Minute))
	h.orch.now = func() time.Time { return start.Add(31 * time.Minute) }

	h.orch.SweepExpired(context.Background())

	assert.Contains(t, h.statuses.done, "mergegate/old-wait")
	assert.NotContains(t, h.statuses.done, "mergegate/fresh-wait")
	_, oldStill := h.pending.Get(old.Key())
	assert.False(t, oldStill)
	_, freshStill := h.pending.Get(fresh.Key())
	assert.True(t, freshStill)
}

func TestEvaluateBranchBatchesWithPauses(t *testing.T) {
	h := newHarness(policy.LoadResult{State: policy.StateMissing}, nil)
	h.pulls.open = []int{1, 2, 3, 4, 5, 6, 7}
	for _, n := range h.pulls.open {
		h.pulls.contexts[n] = &pull.Context{Number: n, HeadSHA: "sha", BaseRef: "main"}
	}

	var pauses []time.Duration
	h.orch.batchSize = 3
	h.orch.batchDelay = 2 * time.Second
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	require.NoError(t, h.orch.EvaluateBranch(context.Background(), testRepo, "main"))

	assert.Len(t, h.pulls.requested, 7, "every open PR gets evaluated")
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, pauses,
		"a pause separates batches but never trails the last one")
}
