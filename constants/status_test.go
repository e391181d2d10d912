package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(JobStatusPending, JobStatusProcessing))
	assert.True(t, CanTransition(JobStatusPending, JobStatusFailed))
	assert.True(t, CanTransition(JobStatusPending, JobStatusCompleted))
	assert.True(t, CanTransition(JobStatusProcessing, JobStatusCompleted))
	assert.True(t, CanTransition(JobStatusProcessing, JobStatusFailed))

	// no backward edges, no exits from terminal states
	assert.False(t, CanTransition(JobStatusProcessing, JobStatusPending))
	assert.False(t, CanTransition(JobStatusCompleted, JobStatusProcessing))
	assert.False(t, CanTransition(JobStatusFailed, JobStatusProcessing))
	assert.False(t, CanTransition(JobStatusCompleted, JobStatusFailed))
}

func TestTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestIsImagePath(t *testing.T) {
	assert.True(t, IsImagePath("scan.jpg"))
	assert.True(t, IsImagePath("dir/scan.JPEG"))
	assert.True(t, IsImagePath("scan.webp"))
	assert.False(t, IsImagePath("scan.pdf"))
	assert.False(t, IsImagePath("scan"))
}
