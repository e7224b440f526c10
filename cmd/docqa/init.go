package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/docqa/internal/config"
	"github.com/spf13/cobra"
)

var flagForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := writeDefaultConfig(flagConfig, flagForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", flagConfig)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&flagForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

// writeDefaultConfig saves the default config to path. An existing file is kept unless force is set.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check config path: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	return config.Save(path, config.Default())
}
