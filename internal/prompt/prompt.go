// Package prompt composes the instruction text sent to the inference
// collaborator alongside each document image.
package prompt

import "strings"

// BuildInvoiceFieldPrompt returns the prompt for extracting the structured
// invoice payload from a document image. The shape it demands matches the
// schema in internal/inference.
func BuildInvoiceFieldPrompt() string {
	parts := []string{
		"You are an intelligent data extractor for document images.",
		"Extract key information from the document image: document type, invoice details, amounts, company fields, and line items.",
		"Return ONLY a JSON object with this structure:",
		"'metadata' with 'document_type' and a 'confidence' between 0 and 1;",
		"'invoice_details' with 'invoice_number', 'invoice_date', 'due_date' (ISO-8601 dates, YYYY-MM-DD);",
		"'amounts' with 'subtotal', 'tax', 'discount', 'shipping', 'total';",
		"'company' with 'name', 'tax_id', an 'address' object (street, city, state, postal_code, country) and a 'contact' object (phone, email, website);",
		"'line_items' as an array of objects with 'item', 'description', 'quantity', 'unit_price', 'total';",
		"'notes' and a 'payment_info' object with 'payment_method'.",
		"If a field is not present or unclear, use null for it.",
		"If identifiers such as invoice numbers contain special characters like # or $, remove them before extracting the value.",
		"If numbers appear with abbreviations like 'k', 'm' or 'b' (e.g. 50k), convert them to full numeric values (e.g. 50000).",
		"If the document contains multiple line items, emit one object per item in 'line_items'.",
		"Do not include anything outside the JSON output. No explanations, just JSON.",
	}
	return strings.Join(parts, " ")
}

// BuildTextExtractionPrompt returns the prompt for plain text extraction
// from an image.
func BuildTextExtractionPrompt() string {
	parts := []string{
		"You are a highly accurate text extractor for images.",
		"Extract text exactly as it appears, removing special characters (e.g. #, $) from numbers like invoice or item numbers.",
		"Handle noisy or scanned documents carefully, extracting relevant text only.",
		"Output only the extracted text, with no extra commentary.",
	}
	return strings.Join(parts, " ")
}
