package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuflow/invoice-extractor/constants"
	"github.com/docuflow/invoice-extractor/internal/aggregate"
	"github.com/docuflow/invoice-extractor/internal/common"
	"github.com/docuflow/invoice-extractor/internal/entity"
	"github.com/docuflow/invoice-extractor/internal/inference/openai"
	"github.com/docuflow/invoice-extractor/internal/jobs"
	"github.com/docuflow/invoice-extractor/internal/pool"
	"github.com/docuflow/invoice-extractor/internal/service"
	"github.com/docuflow/invoice-extractor/internal/store"
	"github.com/docuflow/invoice-extractor/internal/stream"
	"github.com/docuflow/invoice-extractor/internal/validate"

	exportsvc "github.com/docuflow/invoice-extractor/internal/export"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	// Parse CLI flags
	var (
		zipPath   = flag.String("zip", "", "path to a zip archive of invoice images (required)")
		masterCSV = flag.String("master", "", "path to the master dataset CSV (overrides MASTER_DATA_PATH)")
		out       = flag.String("out", "", "output XLSX report path (optional, defaults next to the archive)")
		dbPath    = flag.String("db", "", "sqlite database path for the row sink (optional)")
	)
	flag.Parse()

	if *zipPath == "" {
		printError("Error: --zip is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*zipPath), "validation_report.xlsx")
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	if *masterCSV != "" {
		cfg.Pipeline.MasterPath = *masterCSV
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	archiveBytes, err := os.ReadFile(*zipPath)
	if err != nil {
		logger.Error("failed to read archive", "path", *zipPath, "error", err)
		os.Exit(1)
	}

	// Inference client
	client := openai.NewClient(openai.Config{
		BaseURL:     cfg.Inference.BaseURL,
		Model:       cfg.Inference.Model,
		APIKey:      cfg.Inference.APIKey,
		Temperature: cfg.Inference.Temperature,
		MaxTokens:   cfg.Inference.MaxTokens,
		Timeout:     cfg.Inference.Timeout,
	}, logger)
	logger.Info("inference client initialized", "model", cfg.Inference.Model)

	// Optional relational sink
	var rows store.RowStore
	if *dbPath != "" {
		sqliteStore, err := store.OpenSQLite(*dbPath, logger)
		if err != nil {
			logger.Error("failed to open row sink", "error", err)
			os.Exit(1)
		}
		defer func() { _ = sqliteStore.Close() }()
		rows = sqliteStore
	} else if cfg.Database.DSN != "" {
		pgStore, err := store.OpenPostgres(ctx, store.PostgresConfig{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			logger.Error("failed to open row sink", "error", err)
			os.Exit(1)
		}
		defer func() { _ = pgStore.Close() }()
		rows = pgStore
	}

	// Wire the pipeline
	jobStore := jobs.NewStore(logger)
	workerPool := pool.New(client, jobStore, logger, pool.WithConcurrency(cfg.Pipeline.Concurrency))
	agg := aggregate.New(cfg.Pipeline.ProcessedPath, logger)
	validator := validate.New(validate.Config{
		ProcessedPath: cfg.Pipeline.ProcessedPath,
		MasterPath:    cfg.Pipeline.MasterPath,
	}, jobStore, logger)
	streamer := stream.New(jobStore, logger, stream.WithInterval(cfg.Pipeline.StreamInterval))

	svc := service.New(service.Config{
		ImageDir: cfg.Pipeline.ImageDir,
		Table:    cfg.Database.Table,
	}, jobStore, workerPool, agg, validator, streamer, rows, logger)

	// Submit and follow progress to completion
	jobID, err := svc.Submit(ctx, archiveBytes)
	if err != nil {
		logger.Error("failed to submit archive", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Submitted job %s\n", jobID)

	var final stream.Event
	for ev := range svc.StreamStatus(ctx, jobID) {
		switch ev.Type {
		case stream.EventProgress:
			fmt.Printf("  progress: %d/%d (%d%%)\n", ev.ItemsProcessed, ev.ItemsTotal, ev.Percentage)
		case stream.EventPartialResult:
			fmt.Printf("  partial result: %d rows extracted\n", ev.Result.RowsProcessed)
		case stream.EventFinal:
			final = ev
			fmt.Printf("  final: %s (%s)\n", ev.Status, ev.Message)
		case stream.EventError:
			printError("Error: %s\n", ev.Message)
			os.Exit(1)
		}
	}
	if final.Status != constants.JobStatusCompleted {
		printError("Job did not complete: %s\n", final.Message)
		os.Exit(1)
	}

	// Stream the validation run and collect it for the report
	var (
		records   []entity.ValidationRecord
		summary   *entity.ValidationSummary
		blocked   string
		collected = svc.StreamValidation(ctx, jobID)
	)
	for ev := range collected {
		switch ev.Type {
		case validate.EventRecord:
			records = append(records, *ev.Record)
			verdict := "ok"
			if !ev.Record.IsValid {
				verdict = "INVALID: " + strings.Join(ev.Record.Discrepancies, "; ")
			}
			fmt.Printf("  invoice %s: %s\n", ev.Record.InvoiceNumber, verdict)
		case validate.EventSummary:
			summary = ev.Summary
		case validate.EventPending, validate.EventUnavailable:
			blocked = ev.Message
		}
	}
	if summary == nil {
		printError("Validation unavailable: %s\n", blocked)
		os.Exit(1)
	}

	// Export the XLSX report
	reportBytes, err := exportsvc.NewService(logger).ValidationReportXLSX(records, summary)
	if err != nil {
		logger.Error("failed to build report", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, reportBytes, 0o644); err != nil {
		logger.Error("failed to write report", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Batch extraction complete!\n")
	fmt.Printf("- Items processed: %d/%d\n", final.ItemsProcessed, final.ItemsTotal)
	fmt.Printf("- Invoices validated: %d (%d valid, %d invalid)\n",
		summary.TotalInvoices, summary.ValidInvoices, summary.InvalidInvoices)
	fmt.Printf("- Report: %s\n", *out)
}
