package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mergegate/internal/checks"
	"mergegate/internal/gate"
	"mergegate/internal/pull"
)

var checkCmd = &cobra.Command{
	Use:   "check OWNER/REPO NUMBER",
	Short: "Evaluate one pull request without writing anything",
	Long: `Evaluate every policy rule against a pull request and print the outcome.

This is a read-only pass: no status checks are created, no comments are
posted, and no reviewers are requested. Use it to preview what the webhook
server would report.

Exit codes:
	0 = every applicable rule passed (or was skipped)
	1 = at least one rule failed
	3 = fatal error (evaluation did not run)

Examples:
	mergegate check acme/api 42`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		repo, number, err := parseTarget(args[0], args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		cfg.LoadEnv()
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}
		setupLogging("text", cfg.GitHub.Verbose)

		ctx := cmd.Context()
		eng, err := buildEngine(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		pr, err := eng.service.PullContext(ctx, repo, number)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: fetch pull request: %v\n", err)
			os.Exit(3)
		}
		reports, err := eng.orchestrator.DryRun(ctx, repo, pr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}
		if reports == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s has no rule document; nothing to evaluate\n", repo)
			return
		}

		os.Exit(printReports(cmd, repo, number, reports))
	},
}

func parseTarget(repoArg, numberArg string) (pull.Repo, int, error) {
	owner, name, ok := strings.Cut(repoArg, "/")
	if !ok || owner == "" || name == "" {
		return pull.Repo{}, 0, fmt.Errorf("invalid repository %q: expected OWNER/REPO", repoArg)
	}
	number, err := strconv.Atoi(numberArg)
	if err != nil || number <= 0 {
		return pull.Repo{}, 0, fmt.Errorf("invalid pull request number %q", numberArg)
	}
	return pull.Repo{Owner: owner, Name: name}, number, nil
}

func printReports(cmd *cobra.Command, repo pull.Repo, number int, reports []gate.RuleReport) int {
	w := cmd.OutOrStdout()
	pass := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)
	wait := color.New(color.FgYellow, color.Bold)
	skip := color.New(color.Faint)

	fmt.Fprintf(w, "%s#%d\n\n", repo, number)

	failed := 0
	for _, rep := range reports {
		switch {
		case !rep.Applicable:
			skip.Fprintf(w, "SKIP  %s", rep.Rule.Name)
			skip.Fprintf(w, "  (%s)\n", rep.SkipReason)
		case rep.Waiting:
			wait.Fprintf(w, "WAIT  %s", rep.Rule.Name)
			fmt.Fprintf(w, "  %s\n", rep.Result.Title)
		case rep.Result.Conclusion == checks.ConclusionSuccess:
			pass.Fprintf(w, "PASS  %s", rep.Rule.Name)
			fmt.Fprintf(w, "  %s\n", rep.Result.Title)
		default:
			failed++
			fail.Fprintf(w, "FAIL  %s", rep.Rule.Name)
			fmt.Fprintf(w, "  %s\n", rep.Result.Title)
			if rep.Result.Summary != "" {
				fmt.Fprintf(w, "      %s\n", rep.Result.Summary)
			}
		}
	}

	fmt.Fprintf(w, "\n%d rule(s), %d failing\n", len(reports), failed)
	if failed > 0 {
		return 1
	}
	return 0
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
