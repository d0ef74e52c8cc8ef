package project

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/cli/shared"
	"github.com/vertex-deployer/deployer/internal/configfile"
	clierrors "github.com/vertex-deployer/deployer/internal/errors"
	"github.com/vertex-deployer/deployer/internal/scaffold"
)

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <pipeline-name>...",
		Short: "Create pipelines with an example config",
		Long: `Create a pipeline definition under the pipelines root and an example
config file under {configs root}/{pipeline-name}/.

Pipeline names are lowercase identifiers: letters, digits and underscores,
starting with a letter.`,
		Example: `  vertex-deployer create churn_model
  vertex-deployer create churn_model --config-type yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCreate,
	}
	cmd.GroupID = shared.GroupProject
	cmd.Flags().StringP("config-type", "t", "", "Type of the example config: json, yaml, toml, py or hcl")
	return cmd
}

func runCreate(cmd *cobra.Command, args []string) error {
	s := shared.Settings(cmd.Context())

	ct, err := configfile.ParseType(shared.StringFlag(cmd, "config-type", s.Create.ConfigType))
	if err != nil {
		return clierrors.Wrap(err, clierrors.Argument, "Use one of: json, yaml, toml, py, hcl")
	}

	for _, name := range args {
		if err := scaffold.ValidateName(name); err != nil {
			return clierrors.Wrap(err, clierrors.Argument)
		}
	}
	for _, name := range args {
		results, err := scaffold.CreatePipeline(s.PipelinesRootPath, s.ConfigRootPath, name, ct)
		if errors.Is(err, scaffold.ErrPipelineExists) {
			return clierrors.Wrap(err, clierrors.Argument, "Choose another name or edit the existing pipeline")
		}
		if err != nil {
			return err
		}
		printResults(cmd.OutOrStdout(), results)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nNext: vertex-deployer check %s\n", args[0])
	return nil
}
