// Package pool fans work items out to a bounded set of workers calling the
// inference collaborator, and fans outcomes back in through one
// status-updating consumer.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docuflow/invoice-extractor/constants"
	"github.com/docuflow/invoice-extractor/internal/entity"
	"github.com/docuflow/invoice-extractor/internal/inference"
	"github.com/docuflow/invoice-extractor/internal/jobs"
)

// DefaultConcurrency caps in-flight inference calls per job.
const DefaultConcurrency = 5

type Pool struct {
	client      inference.Client
	jobs        *jobs.Store
	logger      *slog.Logger
	concurrency int
	itemTimeout time.Duration
}

type Option func(*Pool)

func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithItemTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.itemTimeout = d
		}
	}
}

func New(client inference.Client, store *jobs.Store, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		client:      client,
		jobs:        store,
		logger:      logger,
		concurrency: DefaultConcurrency,
		itemTimeout: 3 * time.Minute,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes every item with at most the configured number of in-flight
// inference calls. Item failures are captured as error outcomes and never
// cancel sibling work; the pool always attempts every item. After each
// completion a single consumer goroutine-side loop applies the atomic
// progress update to the job store, so workers never write shared state
// directly.
//
// Completion order is unspecified; outcomes carry item identity for
// correlation. An empty item list moves the job straight to COMPLETED.
func (p *Pool) Run(ctx context.Context, jobID string, items []entity.WorkItem) []entity.ItemOutcome {
	if len(items) == 0 {
		if err := p.jobs.Transition(jobID, constants.JobStatusCompleted, "no items"); err != nil {
			p.logger.Error("pool.run.transition_failed", "job_id", jobID, "error", err)
		}
		p.logger.Info("pool.run.empty", "job_id", jobID)
		return nil
	}

	start := time.Now()
	outCh := make(chan entity.ItemOutcome)
	sem := make(chan struct{}, p.concurrency)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item entity.WorkItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outCh <- p.processItem(ctx, item)
		}(item)
	}
	go func() {
		wg.Wait()
		close(outCh)
	}()

	// Single consumer: collect outcomes and issue progress updates in order
	// of completion.
	outcomes := make([]entity.ItemOutcome, 0, len(items))
	for outcome := range outCh {
		outcomes = append(outcomes, outcome)

		processed, total, err := p.jobs.IncrementProcessed(jobID)
		if err != nil {
			p.logger.Error("pool.progress.update_failed", "job_id", jobID, "error", err)
			continue
		}
		percentage := processed * 100 / total
		_ = p.jobs.SetMessage(jobID, fmt.Sprintf("processed %d/%d items", processed, total))
		p.logger.Info("pool.item.done",
			"job_id", jobID,
			"file", outcome.Filename,
			"ok", outcome.Success(),
			"processed", processed,
			"total", total,
			"percentage", percentage,
		)
	}

	p.logger.Info("pool.run.done",
		"job_id", jobID,
		"items", len(items),
		"failures", countFailures(outcomes),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return outcomes
}

// processItem issues one inference call. Errors, timeouts and panics all
// collapse into an error outcome.
func (p *Pool) processItem(ctx context.Context, item entity.WorkItem) (outcome entity.ItemOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = entity.ErrorOutcome(item.ImagePath, fmt.Errorf("panic: %v", r))
		}
	}()

	itemCtx := ctx
	if p.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, p.itemTimeout)
		defer cancel()
	}

	payload, err := p.client.Infer(itemCtx, item.Prompt, item.ImagePath)
	if err != nil {
		return entity.ErrorOutcome(item.ImagePath, err)
	}
	return entity.SuccessOutcome(item.ImagePath, payload)
}

func countFailures(outcomes []entity.ItemOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Success() {
			n++
		}
	}
	return n
}
