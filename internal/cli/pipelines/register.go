// Package pipelines provides the commands that act on pipeline definitions:
// check, list, deploy and history.
package pipelines

import (
	"github.com/spf13/cobra"
)

// Register adds the pipeline commands to the root command.
func Register(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newHistoryCmd())
}
