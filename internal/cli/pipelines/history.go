package pipelines

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/cli/shared"
	"github.com/vertex-deployer/deployer/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [pipeline-name]",
		Short: "Show recent deploys",
		Long: `Show the deploys started from this directory, newest first.

Each deploy is recorded in .vertex-deployer/history.yaml with its steps,
tags, config, the created job or schedule and its final status.`,
		Example: `  vertex-deployer history
  vertex-deployer history dummy_pipeline --limit 5
  vertex-deployer history --clear`,
		Args:              cobra.MaximumNArgs(1),
		RunE:              runHistory,
		ValidArgsFunction: completePipelineNames,
	}
	cmd.GroupID = shared.GroupPipelines
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of deploys to show (0 for all)")
	cmd.Flags().Bool("clear", false, "Remove every recorded deploy")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if clearAll, _ := cmd.Flags().GetBool("clear"); clearAll {
		if err := history.Clear(historyDir); err != nil {
			return err
		}
		fmt.Fprintln(out, "History cleared.")
		return nil
	}

	f, err := history.Load(historyDir)
	if err != nil {
		return err
	}
	var name string
	if len(args) == 1 {
		name = args[0]
	}
	limit, _ := cmd.Flags().GetInt("limit")
	entries := history.Filter(f.Entries, name, limit)
	if len(entries) == 0 {
		fmt.Fprintln(out, "No deploys recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tPIPELINE\tSTEPS\tSTATUS\tDURATION\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Pipeline,
			strings.Join(e.Steps, ","),
			statusText(e.Status),
			valueOr(e.Duration, "-"),
			entryDetail(e),
		)
	}
	return tw.Flush()
}

func statusText(s history.Status) string {
	switch s {
	case history.StatusCompleted:
		return color.GreenString(string(s))
	case history.StatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func entryDetail(e history.Entry) string {
	switch {
	case e.Error != "":
		return oneLine(e.Error)
	case e.JobName != "" && e.Schedule != "":
		return e.JobName + " " + e.Schedule
	case e.JobName != "":
		return e.JobName
	case e.Schedule != "":
		return e.Schedule
	}
	return ""
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
