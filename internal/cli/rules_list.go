package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mergegate/internal/checks"
)

var rulesListQuiet bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the available rule types",
	Long: `Inspect the rule check types this build supports.

Each rule in a repository's document names one of these check types; the type
determines which evaluation algorithm runs.

Examples:
  # List all check types
  mergegate rules list
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported check types",
	Long: `List every check type registered in this build, sorted by name.

Examples:
  mergegate rules list
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, c := range newRegistry(nil).List() {
			if rulesListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), c.Type())
			} else {
				printCheckType(cmd.OutOrStdout(), c)
			}
		}
		return nil
	},
}

func printCheckType(w io.Writer, c checks.Check) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "CHECK TYPE: %s\n", c.Type())
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, c.Description())
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesListCmd.Flags().BoolVarP(&rulesListQuiet, "quiet", "q", false, "Only print check type names")
}
