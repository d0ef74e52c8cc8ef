package pipelines

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/vertex-deployer/deployer/internal/cli/shared"
	"github.com/vertex-deployer/deployer/internal/ctxlog"
	"github.com/vertex-deployer/deployer/internal/settings"
	"github.com/vertex-deployer/deployer/internal/testutil"
)

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

// projectSettings returns the default settings rooted at proj.
func projectSettings(t *testing.T, proj *testutil.Project) *settings.DeployerSettings {
	t.Helper()
	s, err := settings.Load("")
	require.NoError(t, err)
	s.PipelinesRootPath = proj.PipelinesRoot
	s.ConfigRootPath = proj.ConfigsRoot
	return s
}

// execute runs cmd from the project root, where the check scratch directory
// is created.
func execute(t *testing.T, cmd *cobra.Command, s *settings.DeployerSettings, dir string, args ...string) cmdResult {
	t.Helper()
	t.Chdir(dir)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx = shared.WithSettings(ctx, "", s)
	err := cmd.ExecuteContext(ctx)
	return cmdResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}
