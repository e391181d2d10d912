package entity

// FieldComparison compares one monetary field between the master and
// processed datasets.
type FieldComparison struct {
	Master     float64 `json:"master"`
	Processed  float64 `json:"processed"`
	Difference float64 `json:"difference"`
}

// AmountPair holds a processed amount next to its master counterpart.
// Master is nil when no matching master line item exists.
type AmountPair struct {
	Master    *float64 `json:"master"`
	Processed float64  `json:"processed"`
}

// LineItemComparison compares one processed line item against the closest
// matching master line item (matched by item name).
type LineItemComparison struct {
	Item      string     `json:"item"`
	Quantity  AmountPair `json:"quantity"`
	UnitPrice AmountPair `json:"unit_price"`
	LineTotal AmountPair `json:"line_total"`
}

// ValidationRecord is the comparison result for one invoice. Derived data,
// recomputed on each validation run.
type ValidationRecord struct {
	InvoiceNumber string                     `json:"invoice_number"`
	IsValid       bool                       `json:"is_valid"`
	Discrepancies []string                   `json:"discrepancies"`
	Totals        map[string]FieldComparison `json:"totals"`
	LineItems     []LineItemComparison       `json:"line_items"`
}

// ValidationSummary counts outcomes across one validation run.
type ValidationSummary struct {
	TotalInvoices     int `json:"total_invoices"`
	ValidInvoices     int `json:"valid_invoices"`
	InvalidInvoices   int `json:"invalid_invoices"`
	WithDiscrepancies int `json:"invoices_with_discrepancies"`
}
