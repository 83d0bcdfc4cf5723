package playground

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Document is the state the playground edits. Every edit is recorded as a
// history step holding the JSON encoding of the whole document.
type Document struct {
	Title string   `json:"title"`
	Count int      `json:"count"`
	Notes []string `json:"notes,omitempty"`
}

// Encode returns the snapshot stored in a step.
func (d Document) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// DecodeDocument parses a snapshot. Unknown fields are rejected so that a
// dropped blob from another tool is not silently adopted as an empty document.
func DecodeDocument(b []byte) (Document, error) {
	var d Document
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return d, nil
}

func (d Document) clone() Document {
	d.Notes = slices.Clone(d.Notes)
	return d
}
