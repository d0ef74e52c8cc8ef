package errors

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// FormatError renders err with colors for terminal output.
func FormatError(err *CLIError) string {
	if err == nil {
		return ""
	}
	return format(err, true)
}

// FormatErrorPlain renders err without ANSI escapes.
func FormatErrorPlain(err *CLIError) string {
	if err == nil {
		return ""
	}
	return format(err, false)
}

func format(err *CLIError, colored bool) string {
	header := fmt.Sprintf("%s:", err.Category)
	usageLabel := "Usage:"
	fixLabel := "To fix this:"
	if colored {
		header = color.New(color.FgRed, color.Bold).Sprint(header)
		usageLabel = color.New(color.FgYellow).Sprint(usageLabel)
		fixLabel = color.New(color.FgCyan).Sprint(fixLabel)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", header, err.Message)
	if err.Usage != "" {
		fmt.Fprintf(&b, "\n%s\n  %s\n", usageLabel, err.Usage)
	}
	if len(err.Remediation) > 0 {
		fmt.Fprintf(&b, "\n%s\n", fixLabel)
		for i, step := range err.Remediation {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
	}
	return b.String()
}

// PrintError writes err to stderr.
func PrintError(err *CLIError) {
	FprintError(os.Stderr, err)
}

// FprintError writes err to w, colored unless color output is disabled.
func FprintError(w io.Writer, err *CLIError) {
	if err == nil {
		return
	}
	if color.NoColor {
		fmt.Fprint(w, FormatErrorPlain(err))
		return
	}
	fmt.Fprint(w, FormatError(err))
}

// FormatSimpleError renders a plain error under the given category.
func FormatSimpleError(err error, cat ErrorCategory) string {
	if err == nil {
		return ""
	}
	if cliErr := AsCLIError(err); cliErr != nil {
		return FormatErrorPlain(cliErr)
	}
	return FormatErrorPlain(&CLIError{Category: cat, Message: err.Error()})
}
