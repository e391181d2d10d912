package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/invoice-extractor/constants"
	"github.com/docuflow/invoice-extractor/internal/entity"
	"github.com/docuflow/invoice-extractor/internal/jobs"
)

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestStreamUnknownJobEmitsSingleError(t *testing.T) {
	s := New(jobs.NewStore(nil), nil, WithInterval(5*time.Millisecond))

	events := collect(s.Stream(context.Background(), "missing"))
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Contains(t, events[0].Message, "job not found")
}

func TestStreamDeliversEveryIncrementAndOneFinal(t *testing.T) {
	store := jobs.NewStore(nil)
	store.Create("job-1")
	require.NoError(t, store.Transition("job-1", constants.JobStatusProcessing, "working"))
	require.NoError(t, store.SetTotal("job-1", 3))
	for i := 0; i < 3; i++ {
		_, _, err := store.IncrementProcessed("job-1")
		require.NoError(t, err)
	}
	require.NoError(t, store.SetResult("job-1", &entity.Result{RowsProcessed: 4}))
	require.NoError(t, store.Transition("job-1", constants.JobStatusCompleted, "processing completed successfully"))

	s := New(store, nil, WithInterval(5*time.Millisecond))
	events := collect(s.Stream(context.Background(), "job-1"))

	// all increments are synthesized even though the job finished before the
	// first poll
	require.Len(t, events, 5)

	assert.Equal(t, EventProgress, events[0].Type)
	assert.Equal(t, 1, events[0].ItemsProcessed)
	assert.Equal(t, 33, events[0].Percentage)

	assert.Equal(t, EventProgress, events[1].Type)
	assert.Equal(t, 66, events[1].Percentage)

	assert.Equal(t, EventProgress, events[2].Type)
	assert.Equal(t, 100, events[2].Percentage)

	assert.Equal(t, EventPartialResult, events[3].Type)
	require.NotNil(t, events[3].Result)
	assert.Equal(t, 4, events[3].Result.RowsProcessed)

	assert.Equal(t, EventFinal, events[4].Type)
	assert.Equal(t, constants.JobStatusCompleted, events[4].Status)
	assert.Equal(t, "processing completed successfully", events[4].Message)
}

func TestStreamFollowsLiveProgress(t *testing.T) {
	store := jobs.NewStore(nil)
	store.Create("job-1")
	require.NoError(t, store.Transition("job-1", constants.JobStatusProcessing, "working"))
	require.NoError(t, store.SetTotal("job-1", 2))

	s := New(store, nil, WithInterval(5*time.Millisecond))
	ch := s.Stream(context.Background(), "job-1")

	go func() {
		for i := 0; i < 2; i++ {
			time.Sleep(15 * time.Millisecond)
			_, _, _ = store.IncrementProcessed("job-1")
		}
		time.Sleep(15 * time.Millisecond)
		_ = store.Transition("job-1", constants.JobStatusCompleted, "done")
	}()

	events := collect(ch)
	require.NotEmpty(t, events)

	var progress []int
	finals := 0
	for _, ev := range events {
		switch ev.Type {
		case EventProgress:
			progress = append(progress, ev.ItemsProcessed)
		case EventFinal:
			finals++
		}
	}
	assert.Equal(t, []int{1, 2}, progress)
	assert.Equal(t, 1, finals)
	assert.Equal(t, EventFinal, events[len(events)-1].Type)
}

func TestStreamFailedJobStillGetsFinal(t *testing.T) {
	store := jobs.NewStore(nil)
	store.Create("job-1")
	require.NoError(t, store.Transition("job-1", constants.JobStatusProcessing, "working"))
	require.NoError(t, store.Transition("job-1", constants.JobStatusFailed, "error during processing: bad archive"))

	s := New(store, nil, WithInterval(5*time.Millisecond))
	events := collect(s.Stream(context.Background(), "job-1"))

	require.Len(t, events, 1)
	assert.Equal(t, EventFinal, events[0].Type)
	assert.Equal(t, constants.JobStatusFailed, events[0].Status)
	assert.Contains(t, events[0].Message, "bad archive")
	assert.Nil(t, events[0].Result)
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	store := jobs.NewStore(nil)
	store.Create("job-1")
	require.NoError(t, store.Transition("job-1", constants.JobStatusProcessing, "working"))
	require.NoError(t, store.SetTotal("job-1", 10))

	ctx, cancel := context.WithCancel(context.Background())
	s := New(store, nil, WithInterval(5*time.Millisecond))
	ch := s.Stream(ctx, "job-1")

	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				// channel closed without the job ever finishing
				got, err := store.Get("job-1")
				require.NoError(t, err)
				assert.Equal(t, constants.JobStatusProcessing, got.Status)
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}
