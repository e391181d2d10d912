package constants

// JobStatus is the canonical lifecycle status of an extraction job.
type JobStatus string

// Stable values (these exact strings appear in status payloads).
const (
	JobStatusPending    JobStatus = "PENDING"    // created, not yet dispatched
	JobStatusProcessing JobStatus = "PROCESSING" // worker pool running
	JobStatusCompleted  JobStatus = "COMPLETED"  // terminal success
	JobStatusFailed     JobStatus = "FAILED"     // terminal failure
)

// Terminal reports whether the status ends the job lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether the forward-only state machine permits
// moving from one status to another. Terminal states admit no exits.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing || to == JobStatusCompleted || to == JobStatusFailed
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}
