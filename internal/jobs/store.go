// Package jobs holds the process-wide job status store. It is the only
// cross-goroutine mutable state in the pipeline: workers, the validator and
// the streamer all go through its atomic operations.
package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docuflow/invoice-extractor/constants"
	"github.com/docuflow/invoice-extractor/internal/entity"
)

var (
	// ErrJobNotFound is returned for lookups of unknown job identifiers.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a status change would move the
	// state machine backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrResultAlreadySet guards the set-at-most-once result invariant.
	ErrResultAlreadySet = errors.New("job result already set")
)

// Store maps job identifiers to job state. Mutations are serialized per job
// so concurrent workers never lose progress updates; reads return snapshot
// copies.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*trackedJob
	log  *slog.Logger
}

type trackedJob struct {
	mu  sync.Mutex
	job entity.Job
}

func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		jobs: make(map[string]*trackedJob),
		log:  log,
	}
}

// Create installs a new job in PENDING.
func (s *Store) Create(id string) entity.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &trackedJob{job: entity.Job{
		ID:        id,
		Status:    constants.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}}
	s.jobs[id] = t
	s.log.Info("jobs.create", "job_id", id)
	return t.job.Clone()
}

func (s *Store) lookup(id string) (*trackedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return t, nil
}

// Get returns a snapshot copy of the job; the caller is never affected by
// writes that happen after the call returns.
func (s *Store) Get(id string) (entity.Job, error) {
	t, err := s.lookup(id)
	if err != nil {
		return entity.Job{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Clone(), nil
}

// Transition atomically advances the job's status. Only forward edges of
// PENDING → PROCESSING → {COMPLETED, FAILED} are permitted.
func (s *Store) Transition(id string, status constants.JobStatus, message string) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !constants.CanTransition(t.job.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.job.Status, status)
	}
	t.job.Status = status
	t.job.Message = message
	s.log.Info("jobs.transition", "job_id", id, "status", string(status), "message", message)
	return nil
}

// SetTotal records how many work items the job will process.
func (s *Store) SetTotal(id string, total int) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.job.ItemsTotal = total
	return nil
}

// IncrementProcessed bumps items_processed by one and returns the new
// counters. The count never exceeds items_total and never decreases.
func (s *Store) IncrementProcessed(id string) (processed, total int, err error) {
	t, err := s.lookup(id)
	if err != nil {
		return 0, 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.ItemsProcessed < t.job.ItemsTotal {
		t.job.ItemsProcessed++
	}
	return t.job.ItemsProcessed, t.job.ItemsTotal, nil
}

// SetMessage updates the human-readable progress message without touching
// the state machine.
func (s *Store) SetMessage(id, message string) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.job.Message = message
	return nil
}

// SetResult attaches the aggregate result. A job's result is set at most
// once.
func (s *Store) SetResult(id string, result *entity.Result) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job.Result != nil {
		return ErrResultAlreadySet
	}
	t.job.Result = result
	s.log.Info("jobs.result", "job_id", id, "rows", result.RowsProcessed)
	return nil
}

// SetValidation attaches (or refreshes) the latest validation summary.
func (s *Store) SetValidation(id string, summary *entity.ValidationSummary) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.job.Validation = summary
	return nil
}
