// Package validate reconciles a completed job's extraction records against
// the master reference dataset, keyed by invoice number.
package validate

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docuflow/invoice-extractor/constants"
	"github.com/docuflow/invoice-extractor/internal/entity"
	"github.com/docuflow/invoice-extractor/internal/jobs"
)

// DefaultTolerance is the absolute difference allowed when comparing
// monetary totals.
const DefaultTolerance = 0.01

// monetary fields compared at the invoice level, in emission order.
var totalFields = []string{"subtotal", "tax", "total"}

var (
	// ErrDatasetMissing marks an absent master or processed dataset.
	ErrDatasetMissing = errors.New("dataset missing")
	// ErrProcessedEmpty marks a processed dataset with no rows.
	ErrProcessedEmpty = errors.New("processed data is empty")
)

// EventType tags entries in the validation stream.
type EventType string

const (
	EventRecord      EventType = "record"
	EventSummary     EventType = "summary"
	EventPending     EventType = "pending"
	EventUnavailable EventType = "unavailable"
)

// Event is one entry in the validation stream: per-invoice records followed
// by a single summary, or a lone pending/unavailable signal.
type Event struct {
	Type    EventType                 `json:"type"`
	Record  *entity.ValidationRecord  `json:"record,omitempty"`
	Summary *entity.ValidationSummary `json:"summary,omitempty"`
	Message string                    `json:"message,omitempty"`
}

// Config locates the two datasets. The master path is injected explicitly;
// there is no filename-convention scanning.
type Config struct {
	ProcessedPath string
	MasterPath    string
	Tolerance     float64
}

type Validator struct {
	cfg    Config
	jobs   *jobs.Store
	logger *slog.Logger
}

func New(cfg Config, store *jobs.Store, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Validator{cfg: cfg, jobs: store, logger: logger}
}

// Stream lazily emits the validation sequence for a job. A job that is not
// yet COMPLETED (or unknown) yields a single pending signal; a missing
// dataset yields a single unavailable signal. Each call re-reads both
// datasets, so re-running on unchanged inputs yields identical records.
func (v *Validator) Stream(ctx context.Context, jobID string) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)

		job, err := v.jobs.Get(jobID)
		if err != nil || job.Status != constants.JobStatusCompleted {
			send(ctx, ch, Event{Type: EventPending, Message: "waiting for processing to complete"})
			return
		}

		records, summary, err := v.Run(ctx)
		if err != nil {
			v.logger.Warn("validate.stream.unavailable", "job_id", jobID, "error", err)
			send(ctx, ch, Event{Type: EventUnavailable, Message: err.Error()})
			return
		}

		for i := range records {
			if !send(ctx, ch, Event{Type: EventRecord, Record: &records[i]}) {
				return
			}
		}
		send(ctx, ch, Event{Type: EventSummary, Summary: summary})
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

// Run performs one full validation pass and returns the per-invoice records
// plus the terminal summary. Pure with respect to its inputs.
func (v *Validator) Run(ctx context.Context) ([]entity.ValidationRecord, *entity.ValidationSummary, error) {
	start := time.Now()

	master, err := readDataset(v.cfg.MasterPath)
	if err != nil {
		return nil, nil, fmt.Errorf("master data: %w", err)
	}
	processed, err := readDataset(v.cfg.ProcessedPath)
	if err != nil {
		return nil, nil, fmt.Errorf("processed data: %w", err)
	}
	if len(processed.order) == 0 {
		return nil, nil, ErrProcessedEmpty
	}

	records := make([]entity.ValidationRecord, 0, len(processed.order))
	for _, invoice := range processed.order {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		records = append(records, v.validateInvoice(invoice, processed.groups[invoice], master.groups[invoice]))
	}

	summary := summarize(records)
	v.logger.Info("validate.run.ok",
		"invoices", summary.TotalInvoices,
		"valid", summary.ValidInvoices,
		"invalid", summary.InvalidInvoices,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return records, summary, nil
}

// validateInvoice compares one processed invoice group against its master
// counterpart. First-occurrence semantics: document-level totals come from
// the first row of each group.
func (v *Validator) validateInvoice(invoice string, processed, master []entity.ExtractionRecord) entity.ValidationRecord {
	rec := entity.ValidationRecord{
		InvoiceNumber: invoice,
		IsValid:       true,
		Discrepancies: []string{},
		Totals:        make(map[string]entity.FieldComparison, len(totalFields)),
		LineItems:     []entity.LineItemComparison{},
	}

	if len(master) == 0 {
		rec.IsValid = false
		rec.Discrepancies = append(rec.Discrepancies, "Invoice not found in master data")
		return rec
	}

	mFirst, pFirst := master[0], processed[0]
	for _, field := range totalFields {
		mRaw := totalField(mFirst, field)
		pRaw := totalField(pFirst, field)

		mVal, mOK := parseAmount(mRaw)
		pVal, pOK := parseAmount(pRaw)
		if !mOK || !pOK {
			rec.IsValid = false
			rec.Discrepancies = append(rec.Discrepancies,
				fmt.Sprintf("Error comparing %s: master=%q, processed=%q", field, mRaw, pRaw))
			continue
		}

		diff := abs(mVal - pVal)
		rec.Totals[field] = entity.FieldComparison{Master: mVal, Processed: pVal, Difference: diff}
		if diff > v.cfg.Tolerance {
			rec.IsValid = false
			rec.Discrepancies = append(rec.Discrepancies,
				fmt.Sprintf("%s mismatch: master=%v, processed=%v", field, mVal, pVal))
		}
	}

	for _, pRow := range processed {
		if strings.TrimSpace(pRow.Item) == "" {
			continue
		}
		rec.LineItems = append(rec.LineItems, compareLineItem(pRow, master))
	}
	return rec
}

// compareLineItem matches the processed row against the closest master line
// item by item name (exact first, then case-insensitive).
func compareLineItem(pRow entity.ExtractionRecord, master []entity.ExtractionRecord) entity.LineItemComparison {
	var match *entity.ExtractionRecord
	for i := range master {
		if master[i].Item == pRow.Item {
			match = &master[i]
			break
		}
	}
	if match == nil {
		for i := range master {
			if strings.EqualFold(strings.TrimSpace(master[i].Item), strings.TrimSpace(pRow.Item)) {
				match = &master[i]
				break
			}
		}
	}

	pair := func(masterRaw, processedRaw string) entity.AmountPair {
		p, _ := parseAmount(processedRaw)
		out := entity.AmountPair{Processed: p}
		if match != nil {
			if m, ok := parseAmount(masterRaw); ok {
				out.Master = &m
			}
		}
		return out
	}

	var mQty, mPrice, mTotal string
	if match != nil {
		mQty, mPrice, mTotal = match.Quantity, match.UnitPrice, match.LineTotal
	}
	return entity.LineItemComparison{
		Item:      pRow.Item,
		Quantity:  pair(mQty, pRow.Quantity),
		UnitPrice: pair(mPrice, pRow.UnitPrice),
		LineTotal: pair(mTotal, pRow.LineTotal),
	}
}

func summarize(records []entity.ValidationRecord) *entity.ValidationSummary {
	s := &entity.ValidationSummary{TotalInvoices: len(records)}
	for _, r := range records {
		if r.IsValid {
			s.ValidInvoices++
		} else {
			s.InvalidInvoices++
		}
		if len(r.Discrepancies) > 0 {
			s.WithDiscrepancies++
		}
	}
	return s
}

func totalField(r entity.ExtractionRecord, field string) string {
	switch field {
	case "subtotal":
		return r.Subtotal
	case "tax":
		return r.Tax
	default:
		return r.Total
	}
}

// parseAmount parses a monetary value, tolerating currency symbols and
// thousands separators. Empty values count as zero, matching the reference
// dataset convention.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// dataset is a CSV file grouped by invoice number, preserving the order in
// which invoices first appear.
type dataset struct {
	order  []string
	groups map[string][]entity.ExtractionRecord
}

func readDataset(path string) (*dataset, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrDatasetMissing)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, path)
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return &dataset{groups: map[string][]entity.ExtractionRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	ds := &dataset{groups: make(map[string][]entity.ExtractionRecord)}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rec := entity.RecordFromRow(header, row)
		key := strings.TrimSpace(rec.InvoiceNumber)
		if key == "" {
			continue
		}
		if _, seen := ds.groups[key]; !seen {
			ds.order = append(ds.order, key)
		}
		ds.groups[key] = append(ds.groups[key], rec)
	}
	return ds, nil
}
