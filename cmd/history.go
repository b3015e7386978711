package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"harborsync/internal/model"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Transfers []model.TransferRecord `json:"transfers"`
		}
		if err := getJSON(fmt.Sprintf("/api/history?n=%d", historyN), &result); err != nil {
			return err
		}

		if len(result.Transfers) == 0 {
			fmt.Println("no transfers recorded")
			return nil
		}

		fmt.Printf("%-19s %-8s %-12s %s\n", "COMPLETED", "STATUS", "SIZE", "FILE")
		for _, rec := range result.Transfers {
			fmt.Printf("%-19s %-8s %-12d %s\n",
				rec.CompletedAt.Format("2006-01-02 15:04:05"), rec.Status, rec.Size, rec.Filename)
			if rec.ErrorMsg != "" {
				fmt.Printf("    error: %s\n", rec.ErrorMsg)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyN, "number", "n", 20, "number of transfers to show")
	rootCmd.AddCommand(historyCmd)
}
