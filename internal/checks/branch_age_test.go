package checks

import (
	"context"
	"strings"
	"testing"
	"time"

	"mergegate/internal/policy"
	"mergegate/internal/pull"
)

type fakeCompare struct {
	mergeBase time.Time
	ok        bool
	err       error
}

func (f *fakeCompare) MergeBaseTime(ctx context.Context, repo pull.Repo, base, head string) (time.Time, bool, error) {
	return f.mergeBase, f.ok, f.err
}

func TestBranchAgeEvaluate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := pull.Repo{Owner: "acme", Name: "api"}
	pr := &pull.Context{BaseRef: "main", BaseSHA: "b", HeadSHA: "h"}
	rule := policy.Rule{
		Name:      "fresh-branch",
		CheckType: policy.CheckBranchAge,
		Config:    policy.RuleConfig{MaxAgeDays: 14},
	}

	tests := []struct {
		name           string
		mergeBase      time.Time
		ok             bool
		wantConclusion Conclusion
		wantInSummary  string
	}{
		{
			name:           "exactly at the limit passes",
			mergeBase:      now.AddDate(0, 0, -14),
			ok:             true,
			wantConclusion: ConclusionSuccess,
		},
		{
			name:           "one day past the limit fails",
			mergeBase:      now.AddDate(0, 0, -15),
			ok:             true,
			wantConclusion: ConclusionFailure,
			wantInSummary:  "14-day limit",
		},
		{
			name:           "fresh branch passes",
			mergeBase:      now.Add(-36 * time.Hour),
			ok:             true,
			wantConclusion: ConclusionSuccess,
		},
		{
			name:           "missing timestamp is an explicit failure",
			ok:             false,
			wantConclusion: ConclusionFailure,
			wantInSummary:  "no commit timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := &BranchAge{
				Compare: &fakeCompare{mergeBase: tt.mergeBase, ok: tt.ok},
				now:     func() time.Time { return now },
			}
			res, err := check.Evaluate(context.Background(), repo, pr, rule)
			if err != nil {
				t.Fatalf("Evaluate error: %v", err)
			}
			if res.Conclusion != tt.wantConclusion {
				t.Fatalf("conclusion = %s, want %s (summary: %s)", res.Conclusion, tt.wantConclusion, res.Summary)
			}
			if tt.wantInSummary != "" && !strings.Contains(res.Summary, tt.wantInSummary) {
				t.Fatalf("summary %q should contain %q", res.Summary, tt.wantInSummary)
			}
		})
	}
}

func TestBranchAgeFailureSuggestsRebase(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	check := &BranchAge{
		Compare: &fakeCompare{mergeBase: now.AddDate(0, 0, -30), ok: true},
		now:     func() time.Time { return now },
	}
	rule := policy.Rule{Config: policy.RuleConfig{MaxAgeDays: 14}}
	pr := &pull.Context{BaseRef: "release", BaseSHA: "b", HeadSHA: "h"}

	res, err := check.Evaluate(context.Background(), pull.Repo{Owner: "acme", Name: "api"}, pr, rule)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if !strings.Contains(res.Summary, "Rebase onto release") {
		t.Fatalf("summary %q should suggest rebasing onto the base branch", res.Summary)
	}
}
