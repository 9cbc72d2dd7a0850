package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/spimi-search/pkg/postgres"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Index a collection into a dictionary and postings file",
	Example: `  # Index a CSV export
  indexer build --source csv --input dataset.csv -d dictionary.txt -p postings.txt

  # Index a directory of files named by document ID
  indexer build --source dir --input ./reuters --block-memory 1048576

  # Index the documents table configured under postgres:
  indexer build --source postgres --config configs/production.yaml`,
	Args: cobra.NoArgs,
	RunE: buildCmdRun,
}

type buildFlags struct {
	source      string
	input       string
	dictionary  string
	postings    string
	blockDir    string
	blockMemory int64
	mergeMemory int64
	keepBlocks  bool
}

var buildArgs buildFlags

func init() {
	buildCmd.Flags().StringVar(&buildArgs.source, "source", "csv",
		"Document source: csv, dir or postgres.")
	buildCmd.Flags().StringVarP(&buildArgs.input, "input", "i", "",
		"CSV file or directory to index. Ignored for the postgres source.")
	buildCmd.Flags().StringVarP(&buildArgs.dictionary, "dictionary", "d", "",
		"Output dictionary file. Defaults to the configured path.")
	buildCmd.Flags().StringVarP(&buildArgs.postings, "postings", "p", "",
		"Output postings file. Defaults to the configured path.")
	buildCmd.Flags().StringVar(&buildArgs.blockDir, "block-dir", "",
		"Directory for intermediate blocks.")
	buildCmd.Flags().Int64Var(&buildArgs.blockMemory, "block-memory", 0,
		"Approximate bytes of postings buffered before a block is flushed.")
	buildCmd.Flags().Int64Var(&buildArgs.mergeMemory, "merge-memory", 0,
		"Approximate bytes of merged postings buffered before they are written.")
	buildCmd.Flags().BoolVar(&buildArgs.keepBlocks, "keep-blocks", false,
		"Keep intermediate blocks after a successful build.")
}

func buildCmdRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBuildFlags(&cfg.Indexer)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSrc()

	opts := []indexer.Option{indexer.WithMetrics(metrics.New(nil))}
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt)
		defer producer.Close()
		opts = append(opts, indexer.WithNotifier(producer))
	}

	res, err := indexer.NewEngine(cfg.Indexer, opts...).Build(ctx, src)
	if err != nil {
		return err
	}
	cmd.Printf("indexed %d documents, %d terms, %d postings in %s\n",
		res.Docs, res.Terms, res.Postings, res.Duration.Round(time.Millisecond))
	cmd.Printf("dictionary: %s\npostings: %s\n", res.DictionaryPath, res.PostingsPath)
	return nil
}

// applyBuildFlags overrides the config. Paths given on the command line are
// relative to the working directory, not DataDir.
func applyBuildFlags(c *config.IndexerConfig) {
	if buildArgs.dictionary != "" {
		c.DictionaryFile = absPath(buildArgs.dictionary)
	}
	if buildArgs.postings != "" {
		c.PostingsFile = absPath(buildArgs.postings)
	}
	if buildArgs.blockDir != "" {
		c.BlockDir = absPath(buildArgs.blockDir)
	}
	if buildArgs.blockMemory > 0 {
		c.BlockMemoryBytes = buildArgs.blockMemory
	}
	if buildArgs.mergeMemory > 0 {
		c.MergeMemoryBytes = buildArgs.mergeMemory
	}
	if buildArgs.keepBlocks {
		c.KeepBlocks = true
	}
}

func openSource(ctx context.Context, cfg *config.Config) (corpus.Source, func(), error) {
	noop := func() {}
	switch buildArgs.source {
	case "csv":
		if buildArgs.input == "" {
			return nil, noop, fmt.Errorf("--input is required for the csv source")
		}
		return corpus.NewCSVSource(buildArgs.input), noop, nil
	case "dir":
		if buildArgs.input == "" {
			return nil, noop, fmt.Errorf("--input is required for the dir source")
		}
		return corpus.NewDirSource(buildArgs.input), noop, nil
	case "postgres":
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, noop, err
		}
		slog.Info("reading documents from postgres", "table", client.DocumentsTable())
		closeFn := func() {
			if err := client.Close(); err != nil {
				slog.Warn("closing postgres failed", "error", err)
			}
		}
		return corpus.NewPostgresSource(client.DB, client.DocumentsTable()), closeFn, nil
	}
	return nil, noop, fmt.Errorf("unknown source %q, want csv, dir or postgres", buildArgs.source)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
