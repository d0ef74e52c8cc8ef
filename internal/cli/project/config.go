package project

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/cli/shared"
	clierrors "github.com/vertex-deployer/deployer/internal/errors"
	"github.com/vertex-deployer/deployer/internal/settings"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit deployer settings",
		Long: `Show and edit the settings file (vertex-deployer.yml by default).

Values are resolved in this order: VERTEX_DEPLOYER_* environment variables,
the settings file, built-in defaults. Nested keys use a dot in the file and
a double underscore in the environment, e.g. deploy.tags and
VERTEX_DEPLOYER_DEPLOY__TAGS.`,
	}
	cmd.GroupID = shared.GroupConfiguration

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the effective value of every setting and where it comes from",
		Args:  cobra.NoArgs,
		RunE:  runConfigList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List the available settings keys",
		Args:  cobra.NoArgs,
		RunE:  runConfigKeys,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a value in the settings file",
		Example: `  vertex-deployer config set deploy.tags latest,v2
  vertex-deployer config set check.raise_error true`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigSet,
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "unset <key>",
		Short:   "Remove a value from the settings file so the default applies",
		Example: `  vertex-deployer config unset deploy.tags`,
		Args:    cobra.ExactArgs(1),
		RunE:    runConfigUnset,
	})
	return cmd
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	path := shared.SettingsPath(cmd.Context())
	fileValues, err := settings.Values(path)
	if err != nil {
		return clierrors.SettingsParseError(path, err)
	}
	defaults := settings.Defaults()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
	for _, key := range settings.SortedKeys() {
		value, source := defaults[key], "default"
		if v, ok := fileValues[key]; ok {
			value, source = v, path
		}
		if v, ok := os.LookupEnv(envName(key)); ok {
			value, source = v, envName(key)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, formatSetting(value), source)
	}
	return tw.Flush()
}

func runConfigKeys(cmd *cobra.Command, _ []string) error {
	printKeys(cmd.OutOrStdout())
	return nil
}

func printKeys(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tDESCRIPTION")
	for _, key := range settings.SortedKeys() {
		schema := settings.KnownKeys[key]
		typ := schema.Type.String()
		if len(schema.AllowedValues) > 0 {
			typ = strings.Join(schema.AllowedValues, "|")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", key, typ, schema.Description)
	}
	_ = tw.Flush()
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	path := shared.SettingsPath(cmd.Context())
	if err := settings.SetValue(path, key, value); err != nil {
		return configKeyError(key, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, path)
	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	key := args[0]
	path := shared.SettingsPath(cmd.Context())
	if err := settings.UnsetValue(path, key); err != nil {
		return configKeyError(key, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Unset %s in %s\n", key, path)
	return nil
}

func configKeyError(key string, err error) error {
	var unknown settings.UnknownKeyError
	if errors.As(err, &unknown) {
		return clierrors.Wrap(err, clierrors.Argument, "Run 'vertex-deployer config keys' to see valid keys")
	}
	schema, _ := settings.KeySchemaFor(key)
	remediation := []string{"Expected a " + schema.Type.String()}
	if len(schema.AllowedValues) > 0 {
		remediation = []string{"Use one of: " + strings.Join(schema.AllowedValues, ", ")}
	}
	return clierrors.Wrap(err, clierrors.Configuration, remediation...)
}

// envName maps deploy.tags to VERTEX_DEPLOYER_DEPLOY__TAGS.
func envName(key string) string {
	return settings.EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "__"))
}

func formatSetting(v any) string {
	switch val := v.(type) {
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ",")
	case string:
		if val == "" {
			return `""`
		}
		return val
	default:
		return fmt.Sprint(val)
	}
}
