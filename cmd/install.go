package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harborsync/internal/autostart"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register the daemon to start on login",
	RunE: func(cmd *cobra.Command, args []string) error {
		starter := autostart.New()

		installed, err := starter.IsInstalled()
		if err != nil {
			return err
		}
		if installed {
			fmt.Println("already installed")
			return nil
		}

		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to resolve executable path: %w", err)
		}

		if err := starter.Install(execPath); err != nil {
			return err
		}

		fmt.Println("daemon registered to start on login")
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the login-time daemon registration",
	RunE: func(cmd *cobra.Command, args []string) error {
		starter := autostart.New()

		installed, err := starter.IsInstalled()
		if err != nil {
			return err
		}
		if !installed {
			fmt.Println("not installed")
			return nil
		}

		if err := starter.Uninstall(); err != nil {
			return err
		}

		fmt.Println("daemon registration removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}
