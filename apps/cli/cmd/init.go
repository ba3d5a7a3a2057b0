package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hookrelay/packages/core/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a hookrelay.yaml with the default settings",
	Long: `Write hookrelay.yaml in the current directory with every setting at its
default value, ready to edit.

Examples:
  hookrelay init
  hookrelay init --force`,
	Args: exactArgs(0),
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, config.ConfigFilenames[0])
	if !forceInit {
		if _, err := os.Stat(configFile); err == nil {
			return usageError(fmt.Errorf("file already exists: %s (use --force to overwrite)", configFile))
		}
	}

	if err := config.DefaultConfig().SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)
	fmt.Fprintf(cmd.OutOrStdout(), "\nRun 'hookrelay serve' to start the relay with these settings.\n")

	return nil
}
