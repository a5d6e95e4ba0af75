package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped by the build.
var Version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "guestexec",
		Short: "In-guest command executor",
		Long: `Guestexec executes host-issued requests inside the guest: launching
programs and scripts, querying processes, and operating on the guest
filesystem, all under per-request impersonation.

Examples:
  guestexec serve --config=/etc/guestexec/agent.toml
  guestexec serve agent.toml
  guestexec version`,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file")

	root.AddCommand(
		createServeCommand(globalFlags),
		createVersionCommand(),
	)
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
			return err
		},
	}
}
