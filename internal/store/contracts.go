// Package store persists extraction records into a relational row sink.
// The sink checks or creates the target table and reports schema mismatches
// as structured results rather than errors.
package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/docuflow/invoice-extractor/internal/entity"
)

// Status is the outcome of a persistence attempt.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusSchemaMismatch Status = "schema_mismatch"
	StatusError          Status = "error"
)

// Report describes one persistence attempt. A schema mismatch is a regular
// report, not an error; the caller decides whether to retry after migrating.
type Report struct {
	Status       Status   `json:"status"`
	Message      string   `json:"message"`
	RowsInserted int      `json:"rows_inserted"`
	Differences  []string `json:"differences,omitempty"`
}

// RowStore is the persistence collaborator contract.
type RowStore interface {
	// InsertRecords ensures the target table matches the record layout and
	// inserts the rows. Infrastructure faults return a non-nil error along
	// with a StatusError report.
	InsertRecords(ctx context.Context, table string, records []entity.ExtractionRecord) (*Report, error)
	// ReadRecords reads every persisted row back in insertion order.
	ReadRecords(ctx context.Context, table string) ([]entity.ExtractionRecord, error)
	Close() error
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validIdent guards table names interpolated into DDL.
func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
