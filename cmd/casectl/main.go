package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"case-retriever/internal/di"
	"case-retriever/internal/infra"
	"case-retriever/internal/infra/config"
	"case-retriever/internal/usecase"
)

var (
	version = "dev"

	// Global flags
	logLevel string

	// Run command flags
	batchSize int
	dryRun    bool
	docIDs    []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "casectl",
	Short:   "Operate the case retrieval service",
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Embed case documents that are missing vectors",
	Long: `Run a bulk embedding pass against the case corpus without going
through the HTTP server.

Documents that already carry a vector are skipped. Use --id to restrict
the run to specific documents.

Examples:
  # Embed everything still missing a vector
  casectl run

  # Embed two specific documents
  casectl run --id TC_101 --id US_7

  # See how much work a run would do
  casectl run --dry-run

  # Smaller batches against a throttled gateway
  casectl run --batch-size 25`,
	RunE: runBulkEmbed,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show embedding coverage of the corpus",
	RunE:  showStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd.Flags().IntVar(&batchSize, "batch-size", 0, "documents per embedding batch (0 uses the configured default)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be embedded without calling the gateway")
	runCmd.Flags().StringArrayVar(&docIDs, "id", nil, "restrict the run to specific document ids (repeatable)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// wireComponents builds the same dependency graph the server uses, minus the
// worker and HTTP pieces the CLI never starts.
func wireComponents(ctx context.Context, logger *slog.Logger) (*di.ApplicationComponents, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	pool, err := infra.NewPostgresDB(ctx, cfg.Database.URL, infra.PoolConfig{
		MaxConns: cfg.Database.PoolSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to db: %w", err)
	}

	components, err := di.NewApplicationComponents(cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("wire components: %w", err)
	}
	return components, pool.Close, nil
}

func runBulkEmbed(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down...", slog.String("signal", sig.String()))
		cancel()
	}()

	components, closePool, err := wireComponents(ctx, logger)
	if err != nil {
		return err
	}
	defer closePool()

	if dryRun {
		status, err := components.BulkEmbed.Status(ctx)
		if err != nil {
			return fmt.Errorf("get coverage: %w", err)
		}
		if len(docIDs) > 0 {
			fmt.Printf("Dry run: restricted to %d listed document(s); those already embedded are skipped.\n", len(docIDs))
		} else {
			fmt.Printf("Dry run: %d document(s) would be embedded with model %s.\n", status.Missing, status.Model)
		}
		return nil
	}

	job := components.Registry.Create(0)
	logger.Info("starting bulk embed",
		slog.String("job_id", job.ID),
		slog.Int("batch_size", batchSize),
		slog.Int("listed_ids", len(docIDs)),
	)

	output, err := components.BulkEmbed.Execute(ctx, job.ID, usecase.BulkEmbedInput{
		IDs:       docIDs,
		BatchSize: batchSize,
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("bulk embed interrupted")
			return nil
		}
		return fmt.Errorf("run bulk embed: %w", err)
	}

	fmt.Printf("Job %s finished:\n", output.JobID)
	fmt.Printf("  Total:     %d\n", output.Total)
	fmt.Printf("  Processed: %d\n", output.Processed)
	fmt.Printf("  Failed:    %d\n", output.Failed)
	fmt.Printf("  Tokens:    %d\n", output.Tokens)
	fmt.Printf("  Cost:      $%.6f\n", output.Cost)
	fmt.Printf("  Model:     %s\n", output.Model)
	fmt.Printf("  Duration:  %s\n", time.Duration(output.DurationMs)*time.Millisecond)
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	ctx := context.Background()
	components, closePool, err := wireComponents(ctx, logger)
	if err != nil {
		return err
	}
	defer closePool()

	status, err := components.BulkEmbed.Status(ctx)
	if err != nil {
		return fmt.Errorf("get coverage: %w", err)
	}

	fmt.Printf("Embedding Coverage:\n")
	fmt.Printf("  Total:    %d\n", status.Total)
	fmt.Printf("  Embedded: %d\n", status.Embedded)
	fmt.Printf("  Missing:  %d\n", status.Missing)
	fmt.Printf("  Coverage: %.1f%%\n", status.Coverage*100)
	fmt.Printf("  Model:    %s\n", status.Model)
	return nil
}
