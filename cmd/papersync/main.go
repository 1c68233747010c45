package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-okabe/papersync/internal/common"
	"github.com/m-okabe/papersync/internal/drive"
	"github.com/m-okabe/papersync/internal/extract"
	"github.com/m-okabe/papersync/internal/gemini"
	"github.com/m-okabe/papersync/internal/ledger"
	"github.com/m-okabe/papersync/internal/notion"
	"github.com/m-okabe/papersync/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		once          = flag.Bool("once", false, "run a single sync cycle and exit (default is continuous monitoring)")
		checkNotion   = flag.Bool("check-notion", false, "verify the Notion database schema and exit")
		migrateLedger = flag.String("migrate-ledger", "", "import ids from a legacy processed_files.txt and exit")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := common.LoadConfig()

	if *checkNotion {
		// Schema check needs only the Notion credentials.
		if cfg.Notion.APIKey == "" || cfg.Notion.DatabaseID == "" {
			printError("Error: NOTION_API_KEY and NOTION_DATABASE_ID are required\n")
			os.Exit(1)
		}
		notionClient := newNotionClient(cfg, logger)
		if err := notionClient.CheckSchema(ctx); err != nil {
			logger.Error("notion database check failed", "error", err)
			os.Exit(1)
		}
		fmt.Println("Notion database is properly configured.")
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	led, err := ledger.Open(ctx, cfg.App.LedgerPath, logger)
	if err != nil {
		logger.Error("failed to open ledger", "path", cfg.App.LedgerPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := led.Close(); err != nil {
			logger.Warn("failed to close ledger", "error", err)
		}
	}()
	if err := led.Load(ctx); err != nil {
		logger.Error("failed to load ledger", "error", err)
		os.Exit(1)
	}

	if *migrateLedger != "" {
		n, err := led.MigrateFromTextFile(ctx, *migrateLedger)
		if err != nil {
			logger.Error("ledger migration failed", "path", *migrateLedger, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Migrated %d ids from %s\n", n, *migrateLedger)
		return
	}

	driveClient, err := drive.NewClient(ctx, cfg.Drive.CredentialsPath, cfg.Drive.FolderID, cfg.Drive.DownloadsDir, logger)
	if err != nil {
		logger.Error("failed to create drive client", "error", err)
		os.Exit(1)
	}

	extractor := extract.NewExtractor(extract.Config{
		Pdftotext: cfg.App.Pdftotext,
		MaxPages:  cfg.App.MaxPages,
		MaxChars:  cfg.App.MaxChars,
	}, driveClient, logger)

	geminiClient := gemini.NewClient(gemini.Config{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		Temperature:       cfg.Gemini.Temperature,
		Timeout:           cfg.Gemini.Timeout,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
		MaxRetries:        cfg.Gemini.MaxRetries,
	}, logger)

	notionClient := newNotionClient(cfg, logger)

	// Fail fast on a misconfigured target database instead of discovering it
	// per document.
	if err := notionClient.CheckSchema(ctx); err != nil {
		logger.Error("notion database check failed", "error", err)
		os.Exit(1)
	}

	orch := pipeline.NewOrchestrator(driveClient, extractor, geminiClient, notionClient, led, logger)

	if *once {
		stats, err := orch.RunOnce(ctx)
		if err != nil {
			logger.Error("sync cycle failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Cycle complete: processed=%d skipped=%d failed=%d filtered=%d\n",
			stats.Processed, stats.Skipped, stats.Failed, stats.Filtered)
		return
	}

	if err := orch.Run(ctx, cfg.App.CheckInterval); err != nil {
		logger.Error("pipeline stopped", "error", err)
		os.Exit(1)
	}
}

func newNotionClient(cfg *common.Config, logger *slog.Logger) *notion.Client {
	return notion.NewClient(notion.Config{
		APIKey:            cfg.Notion.APIKey,
		DatabaseID:        cfg.Notion.DatabaseID,
		Timeout:           cfg.Notion.Timeout,
		RequestsPerSecond: cfg.Notion.RequestsPerSecond,
		MaxRetries:        cfg.Notion.MaxRetries,
	}, logger)
}
