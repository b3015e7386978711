package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"harborsync/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var snap model.StatusSnapshot
		if err := getJSON("/api/status", &snap); err != nil {
			return err
		}

		fmt.Printf("state:    %s\n", snap.State)
		fmt.Printf("message:  %s\n", snap.Message)
		if snap.ActiveFile != "" {
			fmt.Printf("file:     %s (%d%%", snap.ActiveFile, snap.Progress)
			if snap.DownloadSpeed != "" {
				fmt.Printf(", %s", snap.DownloadSpeed)
			}
			fmt.Println(")")
		}
		fmt.Printf("stats:    %d files, %d bytes, %d errors\n",
			snap.Stats.FilesDownloaded, snap.Stats.BytesDownloaded, snap.Stats.Errors)
		if snap.LastError != "" {
			fmt.Printf("error:    %s\n", snap.LastError)
		}
		fmt.Printf("last run: %s\n", formatEpoch(snap.LastSyncTime))
		fmt.Printf("next run: %s\n", formatEpoch(snap.NextSyncTime))
		return nil
	},
}

func formatEpoch(ts *float64) string {
	if ts == nil {
		return "-"
	}
	return time.Unix(0, int64(*ts*float64(time.Second))).Format("2006-01-02 15:04:05")
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
