// Package project provides the commands that set up and configure a
// deployer project: init, create, config, doctor and version.
package project

import (
	"github.com/spf13/cobra"
)

// Register adds the project commands to the root command.
func Register(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newVersionCmd())
}
