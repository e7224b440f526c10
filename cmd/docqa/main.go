// Package main is the docqa CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hyperjump/docqa/internal/config"
	"github.com/hyperjump/docqa/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

var (
	flagConfig string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:          "docqa",
	Short:        "Ask questions about a PDF document",
	SilenceUsage: true,
	Long: `docqa indexes one document into a persisted vector index and answers
questions about it with a hosted chat-completion model.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the docqa version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "docqa version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads .env, then the config file at path. A missing file is an error only
// when the path was given explicitly; otherwise defaults plus DOCQA_* overrides are used.
// Returns the config and the path that was loaded ("" for defaults).
func loadConfig(path string, explicit bool) (*config.Config, string, error) {
	_ = godotenv.Load()

	var (
		cfg      *config.Config
		resolved string
	)
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, "", err
		}
		resolved = path
	} else if errors.Is(err, os.ErrNotExist) && !explicit {
		cfg = config.Default()
		config.ApplyEnv(cfg)
	} else {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, resolved, nil
}

// setup loads config and builds the logger for a command.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(flagConfig, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, nil, err
	}
	debugMode := cfg.Debug || flagDebug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	source := resolved
	if source == "" {
		source = "defaults"
	}
	logger.Debug("config loaded", zap.String("config_path", source), zap.Bool("debug", debugMode))
	return cfg, logger, nil
}
