package partition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/corpusworks/ingest/pkg/filedata"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testFD(name string) filedata.FileData {
	return filedata.FileData{
		Identifier:        "/src/" + name,
		ConnectorType:     "local",
		SourceIdentifiers: filedata.SourceIdentifiers{Filename: name},
	}
}

func TestPartitionText_BlankLineBlocks(t *testing.T) {
	path := writeTemp(t, "doc.txt", "First paragraph.\n\nSecond paragraph\nspanning two lines.\n\n\n\nThird.")
	els, err := PartitionText(path, testFD("doc.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(els) != 3 {
		t.Fatalf("got %d elements, want 3", len(els))
	}
	if els[1].Text != "Second paragraph\nspanning two lines." {
		t.Errorf("block 2 text = %q", els[1].Text)
	}
	for _, el := range els {
		if el.Type != "NarrativeText" {
			t.Errorf("type = %q, want NarrativeText", el.Type)
		}
		if el.Metadata["filename"] != "doc.txt" {
			t.Errorf("filename metadata = %v", el.Metadata["filename"])
		}
	}
}

func TestPartitionText_DeterministicIDs(t *testing.T) {
	content := "Alpha.\n\nBeta."
	a, err := PartitionText(writeTemp(t, "d.txt", content), testFD("d.txt"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := PartitionText(writeTemp(t, "d.txt", content), testFD("d.txt"))
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("element %d: IDs differ across identical runs", i)
		}
	}
	if a[0].ID == a[1].ID {
		t.Error("distinct elements share an ID")
	}
}

func TestPartitionMarkdown(t *testing.T) {
	md := `# Overview

Some intro text.

- first item
- second item

` + "```go\nfunc main() {}\n```\n"
	els, err := PartitionMarkdown(writeTemp(t, "readme.md", md), testFD("readme.md"))
	if err != nil {
		t.Fatal(err)
	}

	byType := map[string]int{}
	for _, el := range els {
		byType[el.Type]++
	}
	if byType["Title"] != 1 {
		t.Errorf("Title count = %d, want 1", byType["Title"])
	}
	if byType["NarrativeText"] < 1 {
		t.Error("missing NarrativeText element")
	}
	if byType["ListItem"] != 2 {
		t.Errorf("ListItem count = %d, want 2", byType["ListItem"])
	}
	if byType["CodeSnippet"] != 1 {
		t.Errorf("CodeSnippet count = %d, want 1", byType["CodeSnippet"])
	}

	if els[0].Type != "Title" || els[0].Text != "Overview" {
		t.Errorf("first element = %s %q, want Title Overview", els[0].Type, els[0].Text)
	}
	if lvl, ok := els[0].Metadata["heading_level"]; !ok || lvl != 1 {
		t.Errorf("heading_level = %v, want 1", lvl)
	}
}

func TestRegistry_UnsupportedExtension(t *testing.T) {
	r := Default()
	_, err := r.Partition(context.Background(), "/tmp/archive.zip", testFD("archive.zip"))
	if !errors.Is(err, pipeerr.ErrUnsupportedFileType) {
		t.Fatalf("err = %v, want ErrUnsupportedFileType", err)
	}
	// Unsupported types are permanent for the artifact, not run-fatal.
	if pipeerr.IsFatal(err) {
		t.Error("unsupported file type must not abort the run")
	}
}

func TestRegistry_CaseInsensitiveExtension(t *testing.T) {
	r := Default()
	path := writeTemp(t, "NOTES.TXT", "Hello.")
	els, err := r.Partition(context.Background(), path, testFD("NOTES.TXT"))
	if err != nil {
		t.Fatal(err)
	}
	if len(els) != 1 {
		t.Fatalf("got %d elements, want 1", len(els))
	}
}

func TestRegistry_SupportedExtensionsSorted(t *testing.T) {
	exts := Default().SupportedExtensions()
	for i := 1; i < len(exts); i++ {
		if exts[i-1] >= exts[i] {
			t.Fatalf("extensions not sorted: %v", exts)
		}
	}
}
