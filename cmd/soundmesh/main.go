package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orris-inc/soundmesh/internal/interfaces/cli/bootstrap"
	"github.com/orris-inc/soundmesh/internal/interfaces/cli/configcmd"
	"github.com/orris-inc/soundmesh/internal/interfaces/cli/migrate"
	"github.com/orris-inc/soundmesh/internal/interfaces/cli/resolve"
	"github.com/orris-inc/soundmesh/internal/interfaces/cli/server"
	"github.com/orris-inc/soundmesh/internal/interfaces/cli/watch"
	"github.com/orris-inc/soundmesh/internal/shared/version"
)

// @title Soundmesh fleet API
// @version 1.0
// @description Read-mostly status API over the audio node fleet.
// @BasePath /
func main() {
	flags := &bootstrap.Flags{}

	rootCmd := &cobra.Command{
		Use:          "soundmesh",
		Short:        "Soundmesh - a fleet client for remote audio nodes",
		Long:         `Soundmesh keeps voice sessions playing across a fleet of remote audio nodes, moving players off nodes that drop and balancing new ones by load.`,
		Version:      version.String(),
		SilenceUsage: true,
	}
	flags.Register(rootCmd)

	rootCmd.AddCommand(
		server.NewCommand(flags),
		migrate.NewCommand(flags),
		resolve.NewCommand(flags),
		watch.NewCommand(flags),
		configcmd.NewCommand(flags),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
