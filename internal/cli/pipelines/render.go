package pipelines

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/vertex-deployer/deployer/internal/check"
)

var reportHeader = []string{
	"Status", "Pipeline", "Pipeline Error Message",
	"Config File", "Attribute", "Config Error Type", "Config Error Message",
}

// renderReport prints the check results as a table followed by a summary
// line.
func renderReport(w io.Writer, report *check.Report, withWarnings bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(reportHeader, "\t"))
	for _, r := range report.Rows(withWarnings) {
		fmt.Fprintln(tw, strings.Join([]string{
			r.Status.Glyph(),
			r.Pipeline,
			oneLine(r.PipelineErrorMessage),
			r.ConfigFile,
			r.Attribute,
			r.ConfigErrorType,
			oneLine(r.ConfigErrorMessage),
		}, "\t"))
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(w, summary(report))
}

func summary(report *check.Report) string {
	failed := failedPipelines(report)
	text := fmt.Sprintf("%d pipeline(s) checked, %d failed", len(report.Outcomes), failed)
	if failed > 0 {
		return color.RedString(text)
	}
	return color.GreenString(text)
}

func failedPipelines(report *check.Report) int {
	n := 0
	for _, o := range report.Outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

// oneLine folds a multi-line message so it fits a table cell.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
