package entity

import (
	"time"

	"github.com/docuflow/invoice-extractor/constants"
)

// Job represents one submitted batch-extraction run for data transfer
// between layers. The job store owns the authoritative copy; everything
// handed out is a snapshot.
type Job struct {
	ID             string              `json:"id"`
	Status         constants.JobStatus `json:"status"`
	ItemsTotal     int                 `json:"items_total"`
	ItemsProcessed int                 `json:"items_processed"`
	Message        string              `json:"message,omitempty"`
	Result         *Result             `json:"result,omitempty"`
	Validation     *ValidationSummary  `json:"validation_result,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Percentage returns floor(processed/total*100), 0 when no items exist.
func (j *Job) Percentage() int {
	if j.ItemsTotal <= 0 {
		return 0
	}
	return j.ItemsProcessed * 100 / j.ItemsTotal
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (j *Job) Clone() Job {
	out := *j
	if j.Result != nil {
		r := *j.Result
		r.Columns = append([]string(nil), j.Result.Columns...)
		r.Preview = append([]ExtractionRecord(nil), j.Result.Preview...)
		out.Result = &r
	}
	if j.Validation != nil {
		v := *j.Validation
		out.Validation = &v
	}
	return out
}

// Result is the aggregate outcome of a completed job.
type Result struct {
	RowsProcessed int                `json:"rows_processed"`
	Columns       []string           `json:"columns"`
	Preview       []ExtractionRecord `json:"preview"`
}
