// vertex-deployer - Compile, upload, run and schedule Vertex AI Pipelines
// Source: https://github.com/vertex-deployer/deployer

// Package cli wires the Cobra command tree of vertex-deployer: pipeline
// commands (check, list, deploy), project commands (init, create, version)
// and settings management (config).
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/cli/pipelines"
	"github.com/vertex-deployer/deployer/internal/cli/project"
	"github.com/vertex-deployer/deployer/internal/cli/shared"
	"github.com/vertex-deployer/deployer/internal/ctxlog"
	clierrors "github.com/vertex-deployer/deployer/internal/errors"
	"github.com/vertex-deployer/deployer/internal/settings"
)

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vertex-deployer",
		Short: "Check, compile, upload, run and schedule Vertex AI Pipelines",
		Long: `vertex-deployer

Validate pipeline definitions against their run configs, then compile,
upload, run and schedule them on Vertex AI Pipelines.

Source: https://github.com/vertex-deployer/deployer`,
		Example: `  # Set up a project and a first pipeline
  vertex-deployer init --pipeline dummy_pipeline

  # Check every pipeline against its configs
  vertex-deployer check --all --raise-error

  # Compile, upload and run with a given config
  vertex-deployer deploy dummy_pipeline --upload --run \
    --env-file example.env --config-name config_test.json`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupCommand,
	}

	rootCmd.AddGroup(&cobra.Group{ID: shared.GroupPipelines, Title: "Pipeline Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: shared.GroupProject, Title: "Project Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: shared.GroupConfiguration, Title: "Configuration:"})
	rootCmd.SetHelpCommandGroupID(shared.GroupConfiguration)
	rootCmd.SetCompletionCommandGroupID(shared.GroupConfiguration)

	rootCmd.PersistentFlags().String("settings", settings.FileName, "Path to the deployer settings file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warning, error or critical (default from settings)")

	pipelines.Register(rootCmd)
	project.Register(rootCmd)
	return rootCmd
}

// setupCommand loads settings and installs the logger for every subcommand.
func setupCommand(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("settings")
	s, err := settings.Load(path)
	if err != nil {
		return clierrors.SettingsParseError(path, err)
	}

	level := s.LogLevel
	if cmd.Flags().Changed("log-level") {
		level, _ = cmd.Flags().GetString("log-level")
	}
	logger := ctxlog.New(cmd.ErrOrStderr(), level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = ctxlog.WithLogger(ctx, logger)
	ctx = shared.WithSettings(ctx, path, s)
	cmd.SetContext(ctx)
	logger.Debug("Loaded settings.", "path", path, "pipelines_root", s.PipelinesRootPath, "configs_root", s.ConfigRootPath)
	return nil
}

// Execute runs the command tree with os.Args and returns the process exit
// code. Errors are printed to stderr.
func Execute(ctx context.Context) int {
	return Run(ctx, NewRootCmd(), nil)
}

// Run executes cmd with args (os.Args when nil) and maps the outcome to an
// exit code.
func Run(ctx context.Context, cmd *cobra.Command, args []string) int {
	if args != nil {
		cmd.SetArgs(args)
	}
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return shared.ExitSuccess
	}
	if shared.IsExitError(err) {
		return shared.ExitCode(err)
	}

	w := cmd.ErrOrStderr()
	if cliErr := clierrors.AsCLIError(err); cliErr != nil {
		clierrors.FprintError(w, cliErr)
		return exitCodeFor(cliErr)
	}
	// Cobra reports unknown commands and bad flags as plain errors.
	fmt.Fprint(w, clierrors.FormatSimpleError(err, clierrors.Argument))
	return shared.ExitInvalidArguments
}

func exitCodeFor(err *clierrors.CLIError) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.ExitTimeout
	}
	switch err.Category {
	case clierrors.Argument, clierrors.Configuration:
		return shared.ExitInvalidArguments
	case clierrors.Prerequisite:
		return shared.ExitMissingDependency
	default:
		return shared.ExitRuntimeFailure
	}
}
