package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mergegate/internal/config"
	"mergegate/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var cfg = config.New()

var rootCmd = &cobra.Command{
	Use:   "mergegate",
	Short: "Evaluate merge-gating policy rules against GitHub pull requests",
	Long: `Mergegate evaluates repository-defined policy rules against pull requests
and reports each rule as a commit status check.

Rules live in the repository itself (.github/mergegate.yml) and cover file
presence, companion-file pairing, external status gating, branch age, and
approval requirements.

Examples:
	# Show available commands and global flags
	mergegate --help

	# Run the webhook server
	mergegate serve

	# Evaluate one pull request without writing anything
	mergegate check acme/api 42

	# List rule types
	mergegate rules list`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.GitHub.Verbose, flags.FlagVerbose, false, "Enable verbose logging (prints every GitHub API call and full error details)")
	rootCmd.PersistentFlags().StringVar(&cfg.GitHub.BaseURL, flags.FlagAPIURL, "", "GitHub API base URL (for GitHub Enterprise)")
	rootCmd.PersistentFlags().StringVar(&cfg.Policy.Path, flags.FlagPolicyPath, cfg.Policy.Path, "Repository-relative path of the rule document")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
