package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"harborsync/internal/model"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active run and cancel the auto-sync timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		var snap model.StatusSnapshot
		if err := postJSON("/api/sync/stop", &snap); err != nil {
			return err
		}

		fmt.Printf("stop requested: %s\n", snap.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
