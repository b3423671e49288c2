// Package dataset holds the product records the assistant analyzes and parses
// uploaded replacements.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

var (
	// ErrInvalidJSON is returned when an upload is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON")
	// ErrNotArray is returned when an upload's top-level value is not an array.
	ErrNotArray = errors.New("JSON must be an array")
)

// productFields are the keys the soft shape check looks for on the first record.
var productFields = []string{"name", "price"}

// Dataset is an ordered list of raw JSON records. Records are kept verbatim so an
// upload round-trips exactly.
type Dataset struct {
	Name    string            `json:"name"`
	Records []json.RawMessage `json:"records"`
}

// Len returns the number of records
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// PrettyJSON renders the records as an indented JSON array.
func (d *Dataset) PrettyJSON() (string, error) {
	records := d.Records
	if records == nil {
		records = []json.RawMessage{}
	}
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal dataset: %w", err)
	}
	return string(out), nil
}

// Products decodes the records as products. It fails if any record does not fit.
func (d *Dataset) Products() ([]Product, error) {
	products := make([]Product, 0, len(d.Records))
	for i, rec := range d.Records {
		var p Product
		if err := json.Unmarshal(rec, &p); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		products = append(products, p)
	}
	return products, nil
}

// Parse validates an uploaded file. The top-level value must be an array; elements
// may be anything. Warnings report a soft mismatch with the product shape and never
// cause rejection.
func Parse(name string, raw []byte) (*Dataset, []string, error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return nil, nil, ErrInvalidJSON
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, nil, ErrNotArray
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	var warnings []string
	if len(records) > 0 && !looksLikeProduct(records[0]) {
		warnings = append(warnings, "uploaded data may not match the expected product shape")
	}

	return &Dataset{Name: name, Records: records}, warnings, nil
}

func looksLikeProduct(rec json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(rec, &obj); err != nil {
		return false
	}
	return lo.Every(lo.Keys(obj), productFields)
}
