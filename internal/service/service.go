// Package service exposes the extraction pipeline to the surrounding
// service layer: submission, status lookup and the two event streams.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/docuflow/invoice-extractor/constants"
	"github.com/docuflow/invoice-extractor/internal/aggregate"
	"github.com/docuflow/invoice-extractor/internal/archive"
	"github.com/docuflow/invoice-extractor/internal/entity"
	"github.com/docuflow/invoice-extractor/internal/jobs"
	"github.com/docuflow/invoice-extractor/internal/pool"
	"github.com/docuflow/invoice-extractor/internal/prompt"
	"github.com/docuflow/invoice-extractor/internal/store"
	"github.com/docuflow/invoice-extractor/internal/stream"
	"github.com/docuflow/invoice-extractor/internal/validate"
)

// Config holds the pipeline-level settings the facade needs.
type Config struct {
	// ImageDir is the root under which each job gets its own transient
	// image directory.
	ImageDir string
	// Table is the relational sink table, when a row store is attached.
	Table string
	// Prompt overrides the default invoice-field extraction prompt.
	Prompt string
}

// Service coordinates one extraction run per submitted archive. Job state
// lives only in the job store; nothing here survives a restart.
type Service struct {
	logger    *slog.Logger
	jobs      *jobs.Store
	pool      *pool.Pool
	agg       *aggregate.Aggregator
	validator *validate.Validator
	streamer  *stream.Streamer
	rows      store.RowStore
	cfg       Config
}

// New wires the facade. rows may be nil when no relational sink is
// configured.
func New(
	cfg Config,
	jobStore *jobs.Store,
	workerPool *pool.Pool,
	agg *aggregate.Aggregator,
	validator *validate.Validator,
	streamer *stream.Streamer,
	rows store.RowStore,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ImageDir == "" {
		cfg.ImageDir = "./images"
	}
	if cfg.Prompt == "" {
		cfg.Prompt = prompt.BuildInvoiceFieldPrompt()
	}
	return &Service{
		logger:    logger,
		jobs:      jobStore,
		pool:      workerPool,
		agg:       agg,
		validator: validator,
		streamer:  streamer,
		rows:      rows,
		cfg:       cfg,
	}
}

// Submit registers a new job for the archive and starts processing in the
// background. The returned identifier is immediately observable as PENDING;
// any failure before items are dispatched surfaces as a FAILED status, never
// as a submission error.
func (s *Service) Submit(ctx context.Context, archiveBytes []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.New().String()
	s.jobs.Create(id)
	s.logger.Info("service.submit", "job_id", id, "archive_bytes", len(archiveBytes))

	go s.run(id, archiveBytes)
	return id, nil
}

// GetStatus returns a snapshot of the job, or jobs.ErrJobNotFound.
func (s *Service) GetStatus(jobID string) (entity.Job, error) {
	return s.jobs.Get(jobID)
}

// StreamStatus exposes processing progress as a live event sequence.
func (s *Service) StreamStatus(ctx context.Context, jobID string) <-chan stream.Event {
	return s.streamer.Stream(ctx, jobID)
}

// StreamValidation exposes the reconciliation result as a lazy sequence of
// per-invoice records terminated by a summary.
func (s *Service) StreamValidation(ctx context.Context, jobID string) <-chan validate.Event {
	return s.validator.Stream(ctx, jobID)
}

// run drives one job to a terminal state. It owns the job's transient image
// directory for the duration of the run.
func (s *Service) run(id string, archiveBytes []byte) {
	ctx := context.Background()

	if err := s.jobs.Transition(id, constants.JobStatusProcessing, "starting image processing"); err != nil {
		s.logger.Error("service.run.transition_failed", "job_id", id, "error", err)
		return
	}

	imageDir := filepath.Join(s.cfg.ImageDir, id)
	paths, err := archive.Unpack(archiveBytes, imageDir, s.logger)
	if err != nil {
		s.fail(id, fmt.Sprintf("error during processing: %v", err))
		return
	}

	items := make([]entity.WorkItem, 0, len(paths))
	for _, p := range paths {
		items = append(items, entity.WorkItem{ImagePath: p, Prompt: s.cfg.Prompt})
	}
	if err := s.jobs.SetTotal(id, len(items)); err != nil {
		s.fail(id, fmt.Sprintf("error during processing: %v", err))
		return
	}

	outcomes := s.pool.Run(ctx, id, items)
	if len(items) == 0 {
		// the pool already moved the job to COMPLETED with "no items"
		return
	}

	records := s.agg.Flatten(outcomes)
	if err := s.agg.WriteProcessed(records); err != nil {
		s.fail(id, fmt.Sprintf("error during processing: %v", err))
		return
	}
	if err := s.jobs.SetResult(id, aggregate.BuildResult(records)); err != nil {
		s.logger.Error("service.run.set_result_failed", "job_id", id, "error", err)
	}

	s.agg.CleanupImages(imageDir)
	s.persistRows(ctx, id, records)

	if err := s.jobs.Transition(id, constants.JobStatusCompleted, "processing completed successfully"); err != nil {
		s.logger.Error("service.run.transition_failed", "job_id", id, "error", err)
		return
	}

	s.autoValidate(ctx, id)
}

// persistRows hands the row set to the relational sink when one is
// configured. A schema mismatch is reported, not retried; neither it nor a
// database fault fails the extraction job.
func (s *Service) persistRows(ctx context.Context, id string, records []entity.ExtractionRecord) {
	if s.rows == nil || len(records) == 0 {
		return
	}
	report, err := s.rows.InsertRecords(ctx, s.cfg.Table, records)
	switch {
	case err != nil:
		s.logger.Error("service.persist.failed", "job_id", id, "error", err)
	case report.Status == store.StatusSchemaMismatch:
		s.logger.Warn("service.persist.schema_mismatch", "job_id", id, "differences", report.Differences)
	default:
		s.logger.Info("service.persist.ok", "job_id", id, "rows", report.RowsInserted)
	}
}

// autoValidate runs a reconciliation pass after completion so the job
// carries a validation summary. A missing master dataset only degrades the
// validation stream; it is not an error here.
func (s *Service) autoValidate(ctx context.Context, id string) {
	_, summary, err := s.validator.Run(ctx)
	if err != nil {
		s.logger.Warn("service.validate.skipped", "job_id", id, "error", err)
		return
	}
	if err := s.jobs.SetValidation(id, summary); err != nil {
		s.logger.Error("service.validate.attach_failed", "job_id", id, "error", err)
	}
}

func (s *Service) fail(id, message string) {
	if err := s.jobs.Transition(id, constants.JobStatusFailed, message); err != nil {
		s.logger.Error("service.fail.transition_failed", "job_id", id, "error", err)
	}
}
