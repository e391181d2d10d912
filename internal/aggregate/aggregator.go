// Package aggregate flattens raw extraction payloads into tabular records
// and persists them to the processed-data sink for later reconciliation.
package aggregate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/docuflow/invoice-extractor/internal/entity"
	"github.com/docuflow/invoice-extractor/internal/inference"
)

// PreviewRows bounds the number of rows attached to a job result.
const PreviewRows = 5

type Aggregator struct {
	logger        *slog.Logger
	processedPath string
	schema        map[string]any
}

func New(processedPath string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		logger:        logger,
		processedPath: processedPath,
		schema:        inference.BuildInvoiceJSONSchema(),
	}
}

// ProcessedPath is the fixed, discoverable location of the tabular sink.
func (a *Aggregator) ProcessedPath() string {
	return a.processedPath
}

// Flatten parses each successful outcome as structured JSON and expands it
// into extraction records, one per line item (or a single record when the
// document has none). Malformed outcomes are skipped with a logged
// diagnostic; they never fail the batch.
func (a *Aggregator) Flatten(outcomes []entity.ItemOutcome) []entity.ExtractionRecord {
	records := make([]entity.ExtractionRecord, 0, len(outcomes))
	skipped := 0

	for _, outcome := range outcomes {
		if !outcome.Success() {
			continue
		}
		payload, err := a.parsePayload(outcome.Payload)
		if err != nil {
			skipped++
			a.logger.Warn("aggregate.flatten.skip", "file", outcome.Filename, "error", err)
			continue
		}
		records = append(records, flattenPayload(payload)...)
	}

	a.logger.Info("aggregate.flatten.ok", "outcomes", len(outcomes), "rows", len(records), "skipped", skipped)
	return records
}

func (a *Aggregator) parsePayload(raw string) (*invoicePayload, error) {
	doc, err := inference.ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	if err := inference.ValidateJSONAgainstSchema(a.schema, doc); err != nil {
		return nil, err
	}
	var payload invoicePayload
	if err := json.Unmarshal(doc, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

func flattenPayload(p *invoicePayload) []entity.ExtractionRecord {
	base := entity.ExtractionRecord{
		DocumentType:  string(p.Metadata.DocumentType),
		Confidence:    string(p.Metadata.Confidence),
		InvoiceNumber: string(p.InvoiceDetails.InvoiceNumber),
		InvoiceDate:   string(p.InvoiceDetails.InvoiceDate),
		DueDate:       string(p.InvoiceDetails.DueDate),
		Subtotal:      string(p.Amounts.Subtotal),
		Tax:           string(p.Amounts.Tax),
		Discount:      string(p.Amounts.Discount),
		Shipping:      string(p.Amounts.Shipping),
		Total:         string(p.Amounts.Total),
		CompanyName:   string(p.Company.Name),
		Street:        string(p.Company.Address.Street),
		City:          string(p.Company.Address.City),
		State:         string(p.Company.Address.State),
		PostalCode:    string(p.Company.Address.PostalCode),
		Country:       string(p.Company.Address.Country),
		Phone:         string(p.Company.Contact.Phone),
		Email:         string(p.Company.Contact.Email),
		Website:       string(p.Company.Contact.Website),
		TaxID:         string(p.Company.TaxID),
		Notes:         string(p.Notes),
		PaymentMethod: string(p.PaymentInfo.PaymentMethod),
	}

	if len(p.LineItems) == 0 {
		return []entity.ExtractionRecord{base}
	}

	rows := make([]entity.ExtractionRecord, 0, len(p.LineItems))
	for _, item := range p.LineItems {
		row := base
		row.Item = string(item.Item)
		row.Description = string(item.Description)
		row.Quantity = string(item.Quantity)
		row.UnitPrice = string(item.UnitPrice)
		row.LineTotal = string(item.Total)
		rows = append(rows, row)
	}
	return rows
}

// WriteProcessed writes the row set to the processed-data CSV sink,
// replacing any prior run (overwrite, not append).
func (a *Aggregator) WriteProcessed(records []entity.ExtractionRecord) error {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(a.processedPath), 0o755); err != nil {
		return fmt.Errorf("create sink dir: %w", err)
	}

	f, err := os.Create(a.processedPath)
	if err != nil {
		return fmt.Errorf("create processed sink: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(entity.RecordColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(r.Values()); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush processed sink: %w", err)
	}

	a.logger.Info("aggregate.sink.ok",
		"path", a.processedPath,
		"rows", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// BuildResult summarizes the row set for the job record: row count, column
// names and a bounded preview.
func BuildResult(records []entity.ExtractionRecord) *entity.Result {
	preview := records
	if len(preview) > PreviewRows {
		preview = preview[:PreviewRows]
	}
	return &entity.Result{
		RowsProcessed: len(records),
		Columns:       append([]string(nil), entity.RecordColumns...),
		Preview:       append([]entity.ExtractionRecord(nil), preview...),
	}
}

// CleanupImages removes the transient image files used for the run. Cleanup
// failures are logged and tolerated; they never fail the job.
func (a *Aggregator) CleanupImages(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		a.logger.Warn("aggregate.cleanup.read_failed", "dir", dir, "error", err)
		return
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			a.logger.Warn("aggregate.cleanup.remove_failed", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if err := os.Remove(dir); err != nil {
		a.logger.Debug("aggregate.cleanup.dir_kept", "dir", dir, "error", err)
	}
	a.logger.Info("aggregate.cleanup.ok", "dir", dir, "removed", removed)
}
