package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/searcher/runner"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate a file of queries, one result line per query",
	Example: `  # Boolean retrieval
  searcher run --mode boolean -d dictionary.txt -p postings.txt -q queries.txt -o output.txt

  # Ranked retrieval, top 10
  searcher run --mode ranked -q queries.txt -o output.txt

  # Relevance feedback: first line is the query, then relevant IDs
  searcher run --mode ranked --feedback -q q1.txt -o out1.txt`,
	Args: cobra.NoArgs,
	RunE: runCmdRun,
}

type runFlags struct {
	mode     string
	queries  string
	output   string
	limit    int
	feedback bool
}

var runArgs = runFlags{
	mode: string(executor.ModeBoolean),
}

func init() {
	runCmd.Flags().StringVar(&runArgs.mode, "mode", runArgs.mode,
		"Retrieval mode: boolean or ranked.")
	runCmd.Flags().StringVarP(&runArgs.queries, "queries", "q", "",
		"File with one query per line.")
	runCmd.Flags().StringVarP(&runArgs.output, "output", "o", "",
		"Result file. Defaults to stdout.")
	runCmd.Flags().IntVar(&runArgs.limit, "limit", 0,
		"Maximum results per query. Zero returns every boolean match and the configured default for ranked queries.")
	runCmd.Flags().BoolVar(&runArgs.feedback, "feedback", false,
		"Treat the query file as a ranked query followed by relevant document IDs.")
	_ = runCmd.MarkFlagRequired("queries")
}

func runCmdRun(cmd *cobra.Command, _ []string) error {
	mode, err := executor.ParseMode(runArgs.mode)
	if err != nil {
		return err
	}
	if runArgs.feedback && mode != executor.ModeRanked {
		return fmt.Errorf("--feedback requires --mode ranked")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec, err := openExecutor(cfg, metrics.New(nil), true)
	if err != nil {
		return err
	}
	defer exec.Close()

	in, err := os.Open(runArgs.queries)
	if err != nil {
		return fmt.Errorf("opening query file: %w", err)
	}
	defer in.Close()

	out := cmd.OutOrStdout()
	if runArgs.output != "" {
		f, err := os.Create(runArgs.output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	r := runner.New(exec, mode, runArgs.limit, cfg.Search.MaxConcurrentQueries)
	if runArgs.feedback {
		return r.RunFeedback(ctx, in, out)
	}
	_, err = r.Run(ctx, in, out)
	return err
}
