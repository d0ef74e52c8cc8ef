package pipelines

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/cli/shared"
	clierrors "github.com/vertex-deployer/deployer/internal/errors"
	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/vertex-deployer/deployer/internal/settings"
)

// availablePipelines lists the pipelines under the configured root.
func availablePipelines(s *settings.DeployerSettings) ([]string, error) {
	names, err := pipeline.List(s.PipelinesRootPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, clierrors.PipelinesRootMissing(s.PipelinesRootPath)
	}
	return names, err
}

// resolvePipelines validates the requested names, or returns every pipeline
// when all is set.
func resolvePipelines(s *settings.DeployerSettings, command string, names []string, all bool) ([]string, error) {
	available, err := availablePipelines(s)
	if err != nil {
		return nil, err
	}
	if all {
		if len(available) == 0 {
			return nil, clierrors.NewPrerequisiteError(
				fmt.Sprintf("no pipelines found in %s", s.PipelinesRootPath),
				"Run 'vertex-deployer create <pipeline-name>' to scaffold one",
			)
		}
		return available, nil
	}
	if len(names) == 0 {
		return nil, clierrors.MissingPipelineName(command)
	}
	for _, name := range names {
		if !slices.Contains(available, name) {
			return nil, clierrors.PipelineNotFound(name, available)
		}
	}
	return names, nil
}

// completePipelineNames offers the pipelines under the configured root that
// were not already given.
func completePipelineNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	names, err := availablePipelines(shared.Settings(ctx))
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	var out []string
	for _, name := range names {
		if strings.HasPrefix(name, toComplete) && !slices.Contains(args, name) {
			out = append(out, name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
