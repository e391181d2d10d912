package inference

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map describing the structured invoice payload the model must
// return. We pass this to the model as an output constraint and also use it
// locally to validate.
func BuildInvoiceJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"metadata": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"document_type": map[string]any{"type": "string"},
					"confidence":    map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
				},
			},
			"invoice_details": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"invoice_number": scalarProp(),
					"invoice_date":   map[string]any{"type": []any{"string", "null"}},
					"due_date":       map[string]any{"type": []any{"string", "null"}},
				},
			},
			"amounts": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"subtotal": scalarProp(),
					"tax":      scalarProp(),
					"discount": scalarProp(),
					"shipping": scalarProp(),
					"total":    scalarProp(),
				},
			},
			"company": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":   map[string]any{"type": []any{"string", "null"}},
					"tax_id": map[string]any{"type": []any{"string", "null"}},
					"address": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"street":      map[string]any{"type": []any{"string", "null"}},
							"city":        map[string]any{"type": []any{"string", "null"}},
							"state":       map[string]any{"type": []any{"string", "null"}},
							"postal_code": scalarProp(),
							"country":     map[string]any{"type": []any{"string", "null"}},
						},
					},
					"contact": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"phone":   map[string]any{"type": []any{"string", "null"}},
							"email":   map[string]any{"type": []any{"string", "null"}},
							"website": map[string]any{"type": []any{"string", "null"}},
						},
					},
				},
			},
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"item":        map[string]any{"type": []any{"string", "null"}},
						"description": map[string]any{"type": []any{"string", "null"}},
						"quantity":    scalarProp(),
						"unit_price":  scalarProp(),
						"total":       scalarProp(),
					},
				},
			},
			"notes": map[string]any{"type": []any{"string", "null"}},
			"payment_info": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"payment_method": map[string]any{"type": []any{"string", "null"}},
				},
			},
		},
	}
}

// scalarProp admits strings and numbers; models return money and id fields
// in either shape depending on the source document.
func scalarProp() map[string]any {
	return map[string]any{"type": []any{"string", "number", "null"}}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
