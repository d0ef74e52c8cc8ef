package shared

import (
	"github.com/spf13/cobra"
)

// StringFlag returns the flag value when it was set on the command line,
// fallback otherwise.
func StringFlag(cmd *cobra.Command, name, fallback string) string {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	v, _ := cmd.Flags().GetString(name)
	return v
}

// BoolFlag returns the flag value when it was set, fallback otherwise.
func BoolFlag(cmd *cobra.Command, name string, fallback bool) bool {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	v, _ := cmd.Flags().GetBool(name)
	return v
}

// StringSliceFlag returns the flag value when it was set, fallback otherwise.
func StringSliceFlag(cmd *cobra.Command, name string, fallback []string) []string {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	v, _ := cmd.Flags().GetStringSlice(name)
	return v
}
