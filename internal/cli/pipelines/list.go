package pipelines

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/cli/shared"
	"github.com/vertex-deployer/deployer/internal/configfile"
	"github.com/vertex-deployer/deployer/internal/pipeline"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List pipelines",
		Example: `  # Pipeline names only
  vertex-deployer list

  # With the config files of each pipeline
  vertex-deployer list --with-configs

  # With the component graph of each pipeline
  vertex-deployer list --graph`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
	cmd.GroupID = shared.GroupPipelines

	cmd.Flags().Bool("with-configs", false, "Show the config files of each pipeline")
	cmd.Flags().Bool("graph", false, "Show the component dependency graph of each pipeline")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s := shared.Settings(ctx)
	out := cmd.OutOrStdout()

	names, err := availablePipelines(s)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintf(out, "No pipelines found in %s\n", s.PipelinesRootPath)
		return nil
	}

	withConfigs := shared.BoolFlag(cmd, "with-configs", s.List.WithConfigs)
	withGraph, _ := cmd.Flags().GetBool("graph")

	for _, name := range names {
		fmt.Fprintln(out, name)
		if withConfigs {
			configs, err := configfile.List(configfile.Dir(s.ConfigRootPath, name))
			if err != nil {
				return err
			}
			if len(configs) == 0 {
				fmt.Fprintln(out, "  (no config files)")
			}
			for _, c := range configs {
				fmt.Fprintf(out, "  %s\n", filepath.Base(c))
			}
		}
		if withGraph {
			fmt.Fprint(out, indent(graphOf(cmd, s.PipelinesRootPath, name)))
		}
	}
	return nil
}

func graphOf(cmd *cobra.Command, root, name string) string {
	p, err := pipeline.Load(cmd.Context(), root, name)
	if err != nil {
		return fmt.Sprintf("cannot load pipeline: %s\n", oneLine(err.Error()))
	}
	graph, err := pipeline.Compiler{}.Graph(p)
	if err != nil {
		return fmt.Sprintf("cannot build graph: %s\n", oneLine(err.Error()))
	}
	return graph.RenderASCII()
}

func indent(s string) string {
	var b []byte
	start := true
	for i := 0; i < len(s); i++ {
		if start && s[i] != '\n' {
			b = append(b, "  "...)
		}
		b = append(b, s[i])
		start = s[i] == '\n'
	}
	return string(b)
}
