// Package stream exposes job store state as an ordered sequence of discrete
// events to one subscriber per job.
package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/docuflow/invoice-extractor/constants"
	"github.com/docuflow/invoice-extractor/internal/entity"
	"github.com/docuflow/invoice-extractor/internal/jobs"
)

// DefaultInterval balances responsiveness against polling overhead.
const DefaultInterval = 400 * time.Millisecond

// EventType tags entries in the status stream.
type EventType string

const (
	EventProgress      EventType = "progress"
	EventPartialResult EventType = "partial_result"
	EventFinal         EventType = "final"
	EventError         EventType = "error"
)

// Event is one discrete status observation. Progress events arrive in
// non-decreasing items_processed order; exactly one final event terminates
// the stream.
type Event struct {
	Type           EventType           `json:"type"`
	JobID          string              `json:"job_id"`
	Status         constants.JobStatus `json:"status,omitempty"`
	ItemsProcessed int                 `json:"items_processed"`
	ItemsTotal     int                 `json:"items_total"`
	Percentage     int                 `json:"percentage"`
	Message        string              `json:"message,omitempty"`
	Result         *entity.Result      `json:"result,omitempty"`
}

type Streamer struct {
	jobs     *jobs.Store
	logger   *slog.Logger
	interval time.Duration
}

type Option func(*Streamer)

func WithInterval(d time.Duration) Option {
	return func(s *Streamer) {
		if d > 0 {
			s.interval = d
		}
	}
}

func New(store *jobs.Store, logger *slog.Logger, opts ...Option) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Streamer{
		jobs:     store,
		logger:   logger,
		interval: DefaultInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stream polls the job store, holding a cursor of progress increments
// already delivered: each tick emits one event per unseen increment, a
// partial-result event once a result appears, and a single terminal event
// when the job reaches a terminal status. An unknown job id terminates the
// stream immediately with an error event. Cancelling the context stops the
// stream without affecting the job.
func (s *Streamer) Stream(ctx context.Context, jobID string) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		cursor := 0
		resultSent := false
		for {
			job, err := s.jobs.Get(jobID)
			if err != nil {
				s.logger.Warn("stream.status.unknown_job", "job_id", jobID)
				send(ctx, ch, Event{Type: EventError, JobID: jobID, Message: err.Error()})
				return
			}

			// every increment is delivered, even when a poll observes
			// several at once
			for cursor < job.ItemsProcessed {
				cursor++
				ev := Event{
					Type:           EventProgress,
					JobID:          jobID,
					Status:         job.Status,
					ItemsProcessed: cursor,
					ItemsTotal:     job.ItemsTotal,
					Percentage:     percentage(cursor, job.ItemsTotal),
				}
				if !send(ctx, ch, ev) {
					return
				}
			}

			if !resultSent && job.Result != nil {
				resultSent = true
				ev := Event{
					Type:           EventPartialResult,
					JobID:          jobID,
					Status:         job.Status,
					ItemsProcessed: job.ItemsProcessed,
					ItemsTotal:     job.ItemsTotal,
					Percentage:     job.Percentage(),
					Result:         job.Result,
				}
				if !send(ctx, ch, ev) {
					return
				}
			}

			if job.Status.Terminal() {
				send(ctx, ch, Event{
					Type:           EventFinal,
					JobID:          jobID,
					Status:         job.Status,
					ItemsProcessed: job.ItemsProcessed,
					ItemsTotal:     job.ItemsTotal,
					Percentage:     job.Percentage(),
					Message:        job.Message,
					Result:         job.Result,
				})
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func percentage(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return processed * 100 / total
}
