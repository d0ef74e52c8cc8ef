package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/cli/shared"
	"github.com/vertex-deployer/deployer/internal/configfile"
	clierrors "github.com/vertex-deployer/deployer/internal/errors"
	"github.com/vertex-deployer/deployer/internal/scaffold"
	"github.com/vertex-deployer/deployer/internal/settings"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up a deployer project in the current directory",
		Long: `Write the settings file, create the pipelines and configs directories
and a template.env listing the Vertex variables. Existing files are kept.`,
		Example: `  vertex-deployer init
  vertex-deployer init --pipeline churn_model --config-type yaml`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
	cmd.GroupID = shared.GroupProject

	f := cmd.Flags()
	f.String("pipelines-root", "", "Directory of pipeline definitions")
	f.String("configs-root", "", "Directory of pipeline configs")
	f.StringP("config-type", "t", "", "Default config type for create")
	f.StringP("pipeline", "p", "", "Also create a first pipeline with this name")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	path := shared.SettingsPath(ctx)

	updates := map[string]string{}
	for flag, key := range map[string]string{
		"pipelines-root": "pipelines_root_path",
		"configs-root":   "config_root_path",
		"config-type":    "create.config_type",
	} {
		if v, _ := cmd.Flags().GetString(flag); cmd.Flags().Changed(flag) {
			updates[key] = v
		}
	}

	_, statErr := os.Stat(path)
	created := errors.Is(statErr, fs.ErrNotExist)
	if created {
		updates["pipelines_root_path"] = valueOr(updates["pipelines_root_path"], settings.DefaultPipelinesRoot)
		updates["config_root_path"] = valueOr(updates["config_root_path"], settings.DefaultConfigsRoot)
	}
	for _, key := range settings.SortedKeys() {
		v, ok := updates[key]
		if !ok {
			continue
		}
		if err := settings.SetValue(path, key, v); err != nil {
			return clierrors.Wrap(err, clierrors.Configuration)
		}
	}
	action := scaffold.Skipped
	if created {
		action = scaffold.Created
	}
	printResults(out, []scaffold.Result{{Path: path, Action: action}})

	s, err := settings.Load(path)
	if err != nil {
		return clierrors.SettingsParseError(path, err)
	}

	results, err := scaffold.InitLayout(filepath.Dir(path), s.PipelinesRootPath, s.ConfigRootPath)
	if err != nil {
		return err
	}
	printResults(out, results)

	if name, _ := cmd.Flags().GetString("pipeline"); name != "" {
		ct, err := configfile.ParseType(s.Create.ConfigType)
		if err != nil {
			return clierrors.Wrap(err, clierrors.Argument)
		}
		results, err := scaffold.CreatePipeline(
			resolve(filepath.Dir(path), s.PipelinesRootPath),
			resolve(filepath.Dir(path), s.ConfigRootPath), name, ct)
		if err != nil {
			return clierrors.Wrap(err, clierrors.Argument)
		}
		printResults(out, results)
	}

	fmt.Fprintf(out, "\nFill in %s, then run: vertex-deployer list\n", scaffold.EnvTemplateFile)
	return nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
