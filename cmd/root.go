package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harborsync/internal/config"
	"harborsync/internal/logger"
)

var (
	cfg   *config.Config
	debug bool
	token string
)

var rootCmd = &cobra.Command{
	Use:   "harborsync",
	Short: "Mirror a remote SFTP directory and chain Jellyfin library tasks",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		logger.Init(debug)

		var err error
		cfg, err = config.Load()
		return err
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL() string {
	return fmt.Sprintf("http://localhost:%d", cfg.Port)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("HARBORSYNC_TOKEN"), "API session token")
}
