// Package element models the structured output of the partitioning
// collaborator. The orchestration core treats the payload as opaque: it only
// serializes element lists between stages and hands them to chunkers,
// embedders, and destination stagers.
package element

import (
	"encoding/json"
	"fmt"
	"os"
)

// Element is one structured unit extracted from a raw document.
type Element struct {
	ID   string `json:"element_id"`
	Type string `json:"type"`
	Text string `json:"text"`

	// Metadata carries collaborator-defined fields (filename, page number,
	// parent element, ...) untouched by the core.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Embeddings is attached by the embed stage.
	Embeddings []float32 `json:"embeddings,omitempty"`
}

// WriteFile persists an element list as JSON at path.
func WriteFile(path string, els []Element) error {
	data, err := json.Marshal(els)
	if err != nil {
		return fmt.Errorf("marshal elements: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write elements: %w", err)
	}
	return nil
}

// ReadFile loads an element list previously persisted with WriteFile.
func ReadFile(path string) ([]Element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read elements: %w", err)
	}
	var els []Element
	if err := json.Unmarshal(data, &els); err != nil {
		return nil, fmt.Errorf("unmarshal elements: %w", err)
	}
	return els, nil
}
