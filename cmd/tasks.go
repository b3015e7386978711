package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"harborsync/internal/model"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage Jellyfin scheduled tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tasks the Jellyfin server offers",
	RunE: func(cmd *cobra.Command, args []string) error {
		var tasks []model.JellyfinTask
		if err := getJSON("/api/jellyfin/tasks", &tasks); err != nil {
			return err
		}

		if len(tasks) == 0 {
			fmt.Println("no tasks available")
			return nil
		}

		for _, task := range tasks {
			hidden := ""
			if task.IsHidden {
				hidden = " (hidden)"
			}
			fmt.Printf("%-40s %s%s\n", task.Key, task.Name, hidden)
		}
		return nil
	},
}

var tasksRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the selected tasks now",
	RunE: func(cmd *cobra.Command, args []string) error {
		var snap model.StatusSnapshot
		if err := postJSON("/api/jellyfin/tasks/run", &snap); err != nil {
			return err
		}

		fmt.Printf("jellyfin run started: %s\n", snap.Message)
		return nil
	},
}

func init() {
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksRunCmd)
	rootCmd.AddCommand(tasksCmd)
}
