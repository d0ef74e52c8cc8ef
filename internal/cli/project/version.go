package project

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/build"
	"github.com/vertex-deployer/deployer/internal/cli/shared"
)

// SourceURL is the project source URL.
const SourceURL = "https://github.com/vertex-deployer/deployer"

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Display version information",
		Example: `  vertex-deployer version
  vertex-deployer version --plain`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plain, _ := cmd.Flags().GetBool("plain")
			if plain {
				fmt.Fprintln(cmd.OutOrStdout(), build.Info())
				return nil
			}
			printPrettyVersion(cmd)
			return nil
		},
	}
	cmd.GroupID = shared.GroupProject
	cmd.Flags().Bool("plain", false, "Single line output for scripts")
	return cmd
}

func printPrettyVersion(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(out, "%s %s\n", cyan("vertex-deployer"), build.Version)
	fmt.Fprintf(out, "  %s %s\n", dim("commit:  "), build.Commit)
	fmt.Fprintf(out, "  %s %s\n", dim("built:   "), build.BuildDate)
	fmt.Fprintf(out, "  %s %s %s/%s\n", dim("go:      "), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(out, "  %s %s\n", dim("source:  "), SourceURL)
}
