package pgvector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/element"
	"github.com/corpusworks/ingest/pkg/filedata"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

func TestStager_FlattensElementsToRows(t *testing.T) {
	els := []element.Element{
		{
			ID: "e1", Type: "NarrativeText", Text: "First paragraph.",
			Metadata:   map[string]any{"filename": "doc.txt"},
			Embeddings: []float32{0.1, 0.2},
		},
		{ID: "e2", Type: "Title", Text: "Heading"},
	}
	fd := filedata.FileData{Identifier: "s3://docs/doc.txt"}
	out := filepath.Join(t.TempDir(), "staged.json")

	if err := (&Stager{}).Stage(context.Background(), els, fd, out); err != nil {
		t.Fatal(err)
	}
	rows, err := readRows(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].ID != "e1" || rows[0].RecordID != "s3://docs/doc.txt" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if len(rows[0].Embedding) != 2 {
		t.Errorf("row 0 embedding dims = %d", len(rows[0].Embedding))
	}
	if len(rows[1].Embedding) != 0 {
		t.Errorf("row 1 should have no embedding: %+v", rows[1])
	}
}

func TestNewUploader_Validation(t *testing.T) {
	_, err := NewUploader(config.DatabaseConfig{Table: "elements"})
	if pipeerr.KindOf(err) != pipeerr.KindConfiguration {
		t.Errorf("missing host: kind = %v", pipeerr.KindOf(err))
	}
	_, err = NewUploader(config.DatabaseConfig{Host: "db"})
	if pipeerr.KindOf(err) != pipeerr.KindConfiguration {
		t.Errorf("missing table: kind = %v", pipeerr.KindOf(err))
	}
	if _, err := NewUploader(config.DatabaseConfig{Host: "db", Table: "elements"}); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
