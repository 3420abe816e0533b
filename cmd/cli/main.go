// Package main provides the listing-pipeline CLI. Uses Cobra for command
// parsing.
//
// Run with: go run ./cmd/cli analyze https://example.com/photo.jpg
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/app"
	"github.com/sellkit/listing-pipeline/internal/cache"
	"github.com/sellkit/listing-pipeline/internal/config"
	"github.com/sellkit/listing-pipeline/internal/pipeline"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "listing-cli",
		Short: "Listing pipeline CLI tools",
	}

	root.AddCommand(analyzeCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(usageCmd())
	return root
}

// cliApp builds the shared component graph with an in-memory cache store.
// The CLI is for one-off runs; persistent caching belongs to the server.
func cliApp(ctx context.Context) (*app.Components, *zap.Logger, error) {
	cfg, err := config.Load(os.Getenv("LISTING_CONFIG_PATH"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}

	components, err := app.Build(ctx, cfg, cache.NewMemoryStore(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building pipeline: %w", err)
	}
	return components, logger, nil
}

// signalContext cancels on SIGINT or SIGTERM so a long batch stops cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func analyzeCmd() *cobra.Command {
	var (
		skipPricing bool
		category    string
		llmModel    string
		showUsage   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <image-url>",
		Short: "Run the full pipeline for one image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			components, logger, err := cliApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			result := components.Pipeline.Process(ctx, args[0], pipeline.Options{
				SkipPricing:      skipPricing,
				CategoryOverride: category,
				Backend:          llmModel,
			})
			if err := printJSON(result); err != nil {
				return err
			}
			if showUsage {
				return printJSON(components.Monitor.Report())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipPricing, "skip-pricing", false, "Skip the price lookup providers")
	cmd.Flags().StringVar(&category, "category", "", "Force the item category instead of classifying")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "Generation backend to try first (anthropic, openai)")
	cmd.Flags().BoolVar(&showUsage, "show-usage", false, "Print the usage report after the run")
	return cmd
}

func batchCmd() *cobra.Command {
	var showUsage bool

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run the pipeline for every image URL in a file, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, err := readURLFile(args[0])
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs in %s", args[0])
			}
			if len(urls) > pipeline.MaxBatchSize {
				return fmt.Errorf("too many URLs: %d (max %d)", len(urls), pipeline.MaxBatchSize)
			}

			ctx, cancel := signalContext()
			defer cancel()

			components, logger, err := cliApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			batch := components.Pipeline.ProcessBatch(ctx, urls, pipeline.Options{})
			if err := printJSON(batch); err != nil {
				return err
			}
			if showUsage {
				return printJSON(components.Monitor.Report())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showUsage, "show-usage", false, "Print the usage report after the run")
	return cmd
}

func usageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show the configured usage alert limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("LISTING_CONFIG_PATH"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			// Counters are process-local, so a standalone invocation can
			// only show configuration. Live numbers come from the server's
			// usage endpoints or --show-usage on analyze/batch.
			return printJSON(cfg.Usage.Alerts)
		},
	}
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return urls, nil
}
