package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mergegate/internal/pull"
)

// EvaluatePRNumber rebuilds the evaluation context from the API and runs a
// full evaluation pass.
func (o *Orchestrator) EvaluatePRNumber(ctx context.Context, repo pull.Repo, number int) error {
	pr, err := o.pulls.PullContext(ctx, repo, number)
	if err != nil {
		return err
	}
	return o.EvaluatePR(ctx, repo, pr)
}

// EvaluateBranch re-evaluates every open pull request targeting the branch,
// typically after a push changed what the base trees look like.
func (o *Orchestrator) EvaluateBranch(ctx context.Context, repo pull.Repo, branch string) error {
	numbers, err := o.pulls.OpenPullNumbers(ctx, repo, branch)
	if err != nil {
		return err
	}
	return o.evaluateBatches(ctx, repo, numbers)
}

// Backfill evaluates every open pull request in the repository, regardless of
// base branch. Used when the engine is first enabled on a repository.
func (o *Orchestrator) Backfill(ctx context.Context, repo pull.Repo) error {
	numbers, err := o.pulls.OpenPullNumbers(ctx, repo, "")
	if err != nil {
		return err
	}
	return o.evaluateBatches(ctx, repo, numbers)
}

// evaluateBatches fans out in fixed-size batches with a pause between them so
// a large backlog cannot drain the API budget in one burst. One failing PR
// does not stop the sweep.
func (o *Orchestrator) evaluateBatches(ctx context.Context, repo pull.Repo, numbers []int) error {
	for start := 0; start < len(numbers); start += o.batchSize {
		end := min(start+o.batchSize, len(numbers))

		var wg sync.WaitGroup
		for _, n := range numbers[start:end] {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				if err := o.EvaluatePRNumber(ctx, repo, n); err != nil {
					slog.Error("pull request evaluation failed", "repo", repo.String(), "pr", n, "error", err)
				}
			}(n)
		}
		wg.Wait()

		if end < len(numbers) {
			if err := o.pause(ctx, o.batchDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) pause(ctx context.Context, d time.Duration) error {
	if o.sleep != nil {
		return o.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
