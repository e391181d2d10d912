package entity

// ExtractionRecord is the normalized flat row derived from one successfully
// processed document. A document with N line items expands to N records
// sharing the document-level fields; zero line items yields exactly one
// record with the item fields empty. Written once to the tabular sink and
// never mutated afterward.
type ExtractionRecord struct {
	DocumentType  string `json:"document_type"`
	Confidence    string `json:"confidence"`
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date"`
	DueDate       string `json:"due_date"`
	Subtotal      string `json:"subtotal"`
	Tax           string `json:"tax"`
	Discount      string `json:"discount"`
	Shipping      string `json:"shipping"`
	Total         string `json:"total"`
	CompanyName   string `json:"company_name"`
	Street        string `json:"street"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Website       string `json:"website"`
	TaxID         string `json:"tax_id"`
	Notes         string `json:"notes"`
	PaymentMethod string `json:"payment_method"`
	Item          string `json:"item"`
	Description   string `json:"description"`
	Quantity      string `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	LineTotal     string `json:"line_total"`
}

// RecordColumns is the canonical column order for the tabular sink.
var RecordColumns = []string{
	"document_type",
	"confidence",
	"invoice_number",
	"invoice_date",
	"due_date",
	"subtotal",
	"tax",
	"discount",
	"shipping",
	"total",
	"company_name",
	"street",
	"city",
	"state",
	"postal_code",
	"country",
	"phone",
	"email",
	"website",
	"tax_id",
	"notes",
	"payment_method",
	"item",
	"description",
	"quantity",
	"unit_price",
	"line_total",
}

// Values returns the record's fields in RecordColumns order.
func (r ExtractionRecord) Values() []string {
	return []string{
		r.DocumentType,
		r.Confidence,
		r.InvoiceNumber,
		r.InvoiceDate,
		r.DueDate,
		r.Subtotal,
		r.Tax,
		r.Discount,
		r.Shipping,
		r.Total,
		r.CompanyName,
		r.Street,
		r.City,
		r.State,
		r.PostalCode,
		r.Country,
		r.Phone,
		r.Email,
		r.Website,
		r.TaxID,
		r.Notes,
		r.PaymentMethod,
		r.Item,
		r.Description,
		r.Quantity,
		r.UnitPrice,
		r.LineTotal,
	}
}

// RecordFromRow rebuilds a record from a CSV row using its header. Unknown
// header columns are ignored; missing ones stay empty.
func RecordFromRow(header, row []string) ExtractionRecord {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(row) {
			fields[name] = row[i]
		}
	}
	return ExtractionRecord{
		DocumentType:  fields["document_type"],
		Confidence:    fields["confidence"],
		InvoiceNumber: fields["invoice_number"],
		InvoiceDate:   fields["invoice_date"],
		DueDate:       fields["due_date"],
		Subtotal:      fields["subtotal"],
		Tax:           fields["tax"],
		Discount:      fields["discount"],
		Shipping:      fields["shipping"],
		Total:         fields["total"],
		CompanyName:   fields["company_name"],
		Street:        fields["street"],
		City:          fields["city"],
		State:         fields["state"],
		PostalCode:    fields["postal_code"],
		Country:       fields["country"],
		Phone:         fields["phone"],
		Email:         fields["email"],
		Website:       fields["website"],
		TaxID:         fields["tax_id"],
		Notes:         fields["notes"],
		PaymentMethod: fields["payment_method"],
		Item:          fields["item"],
		Description:   fields["description"],
		Quantity:      fields["quantity"],
		UnitPrice:     fields["unit_price"],
		LineTotal:     fields["line_total"],
	}
}
