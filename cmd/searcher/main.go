package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/metrics"
)

var rootCmd = &cobra.Command{
	Use:           "searcher",
	SilenceUsage:  true,
	SilenceErrors: true,
	Short:         "Evaluate boolean and ranked queries against a built index",
}

type rootFlags struct {
	configPath string
	logLevel   string
	dictionary string
	postings   string
}

var rootArgs rootFlags

func init() {
	rootCmd.PersistentFlags().StringVar(&rootArgs.configPath, "config", "",
		"Path to a YAML config file. SP_* environment variables override it.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.logLevel, "log-level", "",
		"Override the configured log level.")
	rootCmd.PersistentFlags().StringVarP(&rootArgs.dictionary, "dictionary", "d", "",
		"Dictionary file. Defaults to the configured path.")
	rootCmd.PersistentFlags().StringVarP(&rootArgs.postings, "postings", "p", "",
		"Postings file. Defaults to the configured path.")
	rootCmd.SetOut(os.Stdout)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

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

// indexPaths resolves the dictionary and postings files, preferring the
// command-line flags.
func indexPaths(cfg *config.Config) (dict, postings string) {
	dict, postings = cfg.Indexer.DictionaryPath(), cfg.Indexer.PostingsPath()
	if rootArgs.dictionary != "" {
		dict = filepath.Clean(rootArgs.dictionary)
	}
	if rootArgs.postings != "" {
		postings = filepath.Clean(rootArgs.postings)
	}
	return dict, postings
}

// openExecutor loads the index into a new Executor. When required is false
// a missing index leaves the executor empty until a reload.
func openExecutor(cfg *config.Config, m *metrics.Metrics, required bool) (*executor.Executor, error) {
	exec := executor.New(nil, cfg.Search, m)
	dict, postings := indexPaths(cfg)
	if err := exec.Load(dict, postings); err != nil {
		if required {
			return nil, err
		}
		exec.Close()
	}
	return exec, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "searcher: %v\n", err)
		os.Exit(1)
	}
}
