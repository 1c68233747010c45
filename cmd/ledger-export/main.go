package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/m-okabe/papersync/internal/export"
	"github.com/m-okabe/papersync/internal/ledger"
)

func main() {
	var (
		dbPath = flag.String("db", "processed_files.db", "path to the ledger database")
		out    = flag.String("out", "papers.xlsx", "output XLSX file path")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	led, err := ledger.Open(ctx, *dbPath, logger)
	if err != nil {
		logger.Error("failed to open ledger", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := led.Close(); err != nil {
			logger.Warn("failed to close ledger", "error", err)
		}
	}()

	svc := export.NewService(led, logger)
	data, err := svc.LedgerXLSX(ctx)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("failed to write workbook", "path", *out, "error", err)
		os.Exit(1)
	}

	stats, err := led.Stats(ctx)
	if err == nil {
		fmt.Printf("Exported %s (completed=%d failed=%d)\n",
			*out, stats[ledger.StatusCompleted], stats[ledger.StatusFailed])
	} else {
		fmt.Printf("Exported %s\n", *out)
	}
}
