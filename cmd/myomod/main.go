// Command myomod decodes MyoMod hand telemetry, drives a skeleton from it
// and serves the result over HTTP and WebSocket.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "myomod",
		Short:        "MyoMod hand telemetry and pose synthesis",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to the YAML configuration")

	root.AddCommand(
		newServeCmd(&configPath),
		newSessionsCmd(&configPath),
		newReplayCmd(&configPath),
		newDecodeCmd(),
	)
	return root
}
