package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "liveclass-agent",
		Short: "Student-side live session agent: joins a session room, measures network quality, answers quiz pushes",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewJoinCmd(&configPath))
	cmd.AddCommand(NewSessionsCmd(&configPath))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}
