package project

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/cli/shared"
	"github.com/vertex-deployer/deployer/internal/health"
	"github.com/vertex-deployer/deployer/internal/vertex"
)

// findCredentials locates Google credentials for the doctor command.
var findCredentials = vertex.FindCredentials

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the project is ready to deploy",
		Long: `Check the settings file, the pipelines and configs directories, the
Vertex variables and the Google credentials used by deploy.`,
		Example: `  vertex-deployer doctor
  vertex-deployer doctor --env-file prod.env`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
	cmd.GroupID = shared.GroupProject
	cmd.Flags().StringP("env-file", "e", "", "Dotenv file with the Vertex settings (default from settings)")
	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	envFile, _ := cmd.Flags().GetString("env-file")
	report := health.Run(ctx, health.Options{
		SettingsPath: shared.SettingsPath(ctx),
		EnvFile:      envFile,
		Credentials:  findCredentials,
	})

	out := cmd.OutOrStdout()
	for _, c := range report.Checks {
		var mark string
		switch {
		case c.Passed:
			mark = color.GreenString("✓")
		case c.Optional:
			mark = color.YellowString("!")
		default:
			mark = color.RedString("✗")
		}
		fmt.Fprintf(out, "%s %s: %s\n", mark, c.Name, c.Message)
	}
	if !report.Passed {
		return shared.NewExitError(shared.ExitMissingDependency)
	}
	return nil
}
