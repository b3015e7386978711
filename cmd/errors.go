package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var errorsLimit int

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "View the sync error log",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Errors []string `json:"errors"`
		}
		if err := getJSON(fmt.Sprintf("/api/errors?limit=%d", errorsLimit), &result); err != nil {
			return err
		}

		if len(result.Errors) == 0 {
			fmt.Println("no errors recorded")
			return nil
		}
		for _, line := range result.Errors {
			fmt.Println(line)
		}
		return nil
	},
}

var errorsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the sync error log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/api/errors/clear", nil); err != nil {
			return err
		}
		fmt.Println("error log cleared")
		return nil
	},
}

func init() {
	errorsCmd.Flags().IntVar(&errorsLimit, "limit", 200, "maximum lines to show")
	errorsCmd.AddCommand(errorsClearCmd)
	rootCmd.AddCommand(errorsCmd)
}
