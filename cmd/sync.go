package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"harborsync/internal/model"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Start a mirror run now",
	RunE: func(cmd *cobra.Command, args []string) error {
		var snap model.StatusSnapshot
		if err := postJSON("/api/sync/start", &snap); err != nil {
			return err
		}

		fmt.Printf("sync started: %s\n", snap.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
