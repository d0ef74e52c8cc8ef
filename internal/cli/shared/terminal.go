package shared

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/vertex-deployer/deployer/internal/progress"
)

// NewDisplay returns a progress display on the command's error stream.
// Spinners and colors are enabled only when that stream is the terminal.
func NewDisplay(cmd *cobra.Command) *progress.Display {
	w := cmd.ErrOrStderr()
	caps := progress.TerminalCapabilities{}
	if f, ok := w.(*os.File); ok && f == os.Stderr {
		caps = progress.DetectTerminalCapabilities(f)
	}
	return progress.NewDisplay(w, caps)
}
