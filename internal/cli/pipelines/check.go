package pipelines

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/check"
	"github.com/vertex-deployer/deployer/internal/cli/shared"
	clierrors "github.com/vertex-deployer/deployer/internal/errors"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [pipeline-name...]",
		Short: "Check that pipelines compile and that their configs are valid",
		Long: `Check pipelines without deploying them.

For each pipeline: load the definition, compile it, then validate every
config file of the pipeline against its parameters. Missing parameters,
values of the wrong type and unknown parameters are errors. Parameters left
to their default value are reported as warnings.

Every pipeline is checked even when an earlier one fails.`,
		Example: `  # Check one pipeline and all its configs
  vertex-deployer check dummy_pipeline

  # Check every pipeline and fail the build on error
  vertex-deployer check --all --raise-error

  # Check a single config file
  vertex-deployer check dummy_pipeline --config-filepath vertex/configs/dummy_pipeline/test.json`,
		RunE:              runCheck,
		ValidArgsFunction: completePipelineNames,
	}
	cmd.GroupID = shared.GroupPipelines

	f := cmd.Flags()
	f.BoolP("all", "a", false, "Check every pipeline under the pipelines root")
	f.StringP("config-filepath", "f", "", "Check only this config file (requires a single pipeline)")
	f.Bool("raise-error", false, "Exit with status 1 when a check fails")
	f.Bool("warn-defaults", true, "Show parameters that fall back to their default value")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := shared.Settings(ctx)

	all := shared.BoolFlag(cmd, "all", s.Check.All)
	names, err := resolvePipelines(s, "check", args, all)
	if err != nil {
		return err
	}

	configPath := shared.StringFlag(cmd, "config-filepath", s.Check.ConfigFilepath)
	if configPath != "" && len(names) != 1 {
		return clierrors.InvalidFlagCombination("--config-filepath", "several pipelines",
			"a config file belongs to a single pipeline")
	}

	reqs := make([]check.Request, 0, len(names))
	for _, name := range names {
		req := check.Request{Pipeline: name}
		if configPath != "" {
			req.ConfigPaths = []string{configPath}
		}
		reqs = append(reqs, req)
	}

	checker := check.New(s.PipelinesRootPath, s.ConfigRootPath)
	stop := shared.NewDisplay(cmd).Spin(fmt.Sprintf("Checking %d pipeline(s)", len(reqs)))
	report, err := checker.Validate(ctx, reqs)
	stop()
	if err != nil {
		return err
	}

	renderReport(cmd.OutOrStdout(), report, shared.BoolFlag(cmd, "warn-defaults", s.Check.WarnDefaults))

	if report.HasErrors() && shared.BoolFlag(cmd, "raise-error", s.Check.RaiseError) {
		clierrors.FprintError(cmd.ErrOrStderr(), clierrors.ChecksFailed(failedPipelines(report)))
		return shared.NewExitError(shared.ExitChecksFailed)
	}
	return nil
}
