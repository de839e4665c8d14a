package embedding

import (
	"context"
	"fmt"

	"github.com/corpusworks/ingest/internal/element"
)

// ElementEmbedder adapts an Embedder provider to the pipeline's embed stage:
// it collects element texts, calls the provider once per artifact, and
// attaches the returned vectors in place.
type ElementEmbedder struct {
	client Embedder
}

func NewElementEmbedder(client Embedder) *ElementEmbedder {
	return &ElementEmbedder{client: client}
}

// Embed implements the stage contract.
func (e *ElementEmbedder) Embed(ctx context.Context, els []element.Element) ([]element.Element, error) {
	if len(els) == 0 {
		return els, nil
	}

	texts := make([]string, len(els))
	for i, el := range els {
		texts[i] = el.Text
	}

	vectors, err := e.client.EmbedBatch(ctx, texts, "search_document")
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(els) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(els))
	}

	out := make([]element.Element, len(els))
	for i, el := range els {
		el.Embeddings = vectors[i]
		out[i] = el
	}
	return out, nil
}
