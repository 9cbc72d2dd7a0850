package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "indexer",
	SilenceUsage:  true,
	SilenceErrors: true,
	Short:         "Build a SPIMI inverted index from a document collection",
}

type rootFlags struct {
	configPath string
	logLevel   string
}

var rootArgs rootFlags

func init() {
	rootCmd.PersistentFlags().StringVar(&rootArgs.configPath, "config", "",
		"Path to a YAML config file. SP_* environment variables override it.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.logLevel, "log-level", "",
		"Override the configured log level.")
	rootCmd.SetOut(os.Stdout)
	rootCmd.AddCommand(buildCmd)
}

// loadConfig reads the config and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootArgs.configPath)
	if err != nil {
		return nil, err
	}
	if rootArgs.logLevel != "" {
		cfg.Logging.Level = rootArgs.logLevel
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "indexer: %v\n", err)
		os.Exit(1)
	}
}
