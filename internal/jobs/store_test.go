package jobs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/invoice-extractor/constants"
	"github.com/docuflow/invoice-extractor/internal/entity"
)

func TestCreateAndGet(t *testing.T) {
	s := NewStore(nil)
	created := s.Create("job-1")
	assert.Equal(t, constants.JobStatusPending, created.Status)

	got, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, constants.JobStatusPending, got.Status)
	assert.Zero(t, got.ItemsProcessed)
}

func TestGetUnknownJob(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Get("missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestTransitionsAreForwardOnly(t *testing.T) {
	s := NewStore(nil)
	s.Create("job-1")

	require.NoError(t, s.Transition("job-1", constants.JobStatusProcessing, "working"))
	require.NoError(t, s.Transition("job-1", constants.JobStatusCompleted, "done"))

	// terminal states admit no exits
	err := s.Transition("job-1", constants.JobStatusProcessing, "again")
	require.ErrorIs(t, err, ErrInvalidTransition)
	err = s.Transition("job-1", constants.JobStatusFailed, "nope")
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)
}

func TestPendingCanFailDirectly(t *testing.T) {
	s := NewStore(nil)
	s.Create("job-1")
	require.NoError(t, s.Transition("job-1", constants.JobStatusFailed, "archive unreadable"))

	got, _ := s.Get("job-1")
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, "archive unreadable", got.Message)
	assert.Zero(t, got.ItemsProcessed)
}

func TestIncrementProcessedIsCappedAndMonotonic(t *testing.T) {
	s := NewStore(nil)
	s.Create("job-1")
	require.NoError(t, s.SetTotal("job-1", 2))

	p, total, err := s.IncrementProcessed("job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p)
	assert.Equal(t, 2, total)

	p, _, _ = s.IncrementProcessed("job-1")
	assert.Equal(t, 2, p)

	// never exceeds items_total
	p, _, _ = s.IncrementProcessed("job-1")
	assert.Equal(t, 2, p)
}

func TestConcurrentIncrementsLoseNoUpdates(t *testing.T) {
	const n = 200
	s := NewStore(nil)
	s.Create("job-1")
	require.NoError(t, s.SetTotal("job-1", n))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.IncrementProcessed("job-1")
		}()
	}
	wg.Wait()

	got, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, n, got.ItemsProcessed)
}

func TestResultIsSetAtMostOnce(t *testing.T) {
	s := NewStore(nil)
	s.Create("job-1")

	require.NoError(t, s.SetResult("job-1", &entity.Result{RowsProcessed: 2}))
	err := s.SetResult("job-1", &entity.Result{RowsProcessed: 5})
	require.ErrorIs(t, err, ErrResultAlreadySet)

	got, _ := s.Get("job-1")
	assert.Equal(t, 2, got.Result.RowsProcessed)
}

func TestGetReturnsSnapshotCopy(t *testing.T) {
	s := NewStore(nil)
	s.Create("job-1")
	require.NoError(t, s.SetResult("job-1", &entity.Result{
		RowsProcessed: 1,
		Columns:       []string{"invoice_number"},
	}))

	snap, err := s.Get("job-1")
	require.NoError(t, err)
	snap.Result.Columns[0] = "mutated"
	snap.Result.RowsProcessed = 99

	again, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, "invoice_number", again.Result.Columns[0])
	assert.Equal(t, 1, again.Result.RowsProcessed)
}

func TestPercentageFloors(t *testing.T) {
	j := entity.Job{ItemsTotal: 3, ItemsProcessed: 1}
	assert.Equal(t, 33, j.Percentage())
	j.ItemsProcessed = 2
	assert.Equal(t, 66, j.Percentage())
	j.ItemsProcessed = 3
	assert.Equal(t, 100, j.Percentage())

	empty := entity.Job{}
	assert.Equal(t, 0, empty.Percentage())
}
