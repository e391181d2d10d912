package aggregate

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// flexString decodes a JSON scalar that models emit inconsistently: strings,
// numbers and null all normalize to their text form ("" for null).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	// numeric token: keep its source text so "10.50" stays "10.50"
	if _, err := strconv.ParseFloat(string(b), 64); err == nil {
		*f = flexString(b)
		return nil
	}
	// booleans and anything else degrade to their raw text
	*f = flexString(b)
	return nil
}

// invoicePayload is the nested shape the inference collaborator returns for
// one document.
type invoicePayload struct {
	Metadata struct {
		DocumentType flexString `json:"document_type"`
		Confidence   flexString `json:"confidence"`
	} `json:"metadata"`
	InvoiceDetails struct {
		InvoiceNumber flexString `json:"invoice_number"`
		InvoiceDate   flexString `json:"invoice_date"`
		DueDate       flexString `json:"due_date"`
	} `json:"invoice_details"`
	Amounts struct {
		Subtotal flexString `json:"subtotal"`
		Tax      flexString `json:"tax"`
		Discount flexString `json:"discount"`
		Shipping flexString `json:"shipping"`
		Total    flexString `json:"total"`
	} `json:"amounts"`
	Company struct {
		Name    flexString `json:"name"`
		TaxID   flexString `json:"tax_id"`
		Address struct {
			Street     flexString `json:"street"`
			City       flexString `json:"city"`
			State      flexString `json:"state"`
			PostalCode flexString `json:"postal_code"`
			Country    flexString `json:"country"`
		} `json:"address"`
		Contact struct {
			Phone   flexString `json:"phone"`
			Email   flexString `json:"email"`
			Website flexString `json:"website"`
		} `json:"contact"`
	} `json:"company"`
	LineItems []struct {
		Item        flexString `json:"item"`
		Description flexString `json:"description"`
		Quantity    flexString `json:"quantity"`
		UnitPrice   flexString `json:"unit_price"`
		Total       flexString `json:"total"`
	} `json:"line_items"`
	Notes       flexString `json:"notes"`
	PaymentInfo struct {
		PaymentMethod flexString `json:"payment_method"`
	} `json:"payment_info"`
}
