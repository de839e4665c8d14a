package local

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/stage"
	"github.com/corpusworks/ingest/pkg/filedata"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func collect(t *testing.T, ix *Indexer) []filedata.FileData {
	t.Helper()
	var out []filedata.FileData
	err := ix.Run(context.Background(), func(fd filedata.FileData) error {
		out = append(out, fd)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestIndexer_Walk(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.txt":        "alpha",
		"nested/b.md":  "beta",
		".hidden.txt":  "skip me",
		"nested/c.pdf": "gamma",
	})

	ix, err := NewIndexer(config.LocalConfig{InputDir: dir, Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	records := collect(t, ix)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3 (hidden files skipped)", len(records))
	}
	for _, fd := range records {
		if fd.Identifier == "" || fd.SourceIdentifiers.Filename == "" {
			t.Errorf("incomplete record: %+v", fd)
		}
		if fd.ConnectorType != "local" {
			t.Errorf("connector type = %q", fd.ConnectorType)
		}
		if fd.Metadata.FileSize == 0 {
			t.Errorf("%s: file size not recorded", fd.Identifier)
		}
	}
}

func TestIndexer_NonRecursive(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.txt":       "alpha",
		"nested/b.md": "beta",
	})

	ix, err := NewIndexer(config.LocalConfig{InputDir: dir, Recursive: false})
	if err != nil {
		t.Fatal(err)
	}
	records := collect(t, ix)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].SourceIdentifiers.Filename != "a.txt" {
		t.Errorf("record = %q", records[0].SourceIdentifiers.Filename)
	}
}

func TestIndexer_MissingInputDir(t *testing.T) {
	_, err := NewIndexer(config.LocalConfig{InputDir: "/does/not/exist"})
	if pipeerr.KindOf(err) != pipeerr.KindConfiguration {
		t.Fatalf("kind = %v, want configuration", pipeerr.KindOf(err))
	}
}

func TestDownloader_CopiesIntoScratch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"doc.txt": "content here"})

	d, err := NewDownloader(config.LocalConfig{InputDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	fd := filedata.FileData{
		Identifier: filepath.Join(dir, "doc.txt"),
		SourceIdentifiers: filedata.SourceIdentifiers{
			Filename: "doc.txt",
			Fullpath: filepath.Join(dir, "doc.txt"),
		},
	}
	scratch := t.TempDir()
	downs, err := d.Download(context.Background(), fd, scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(downs) != 1 {
		t.Fatalf("got %d downloads, want 1", len(downs))
	}
	data, err := os.ReadFile(downs[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "content here" {
		t.Errorf("scratch content = %q", data)
	}
}

func TestDownloader_VanishedFile(t *testing.T) {
	d, _ := NewDownloader(config.LocalConfig{})
	fd := filedata.FileData{
		Identifier: "/gone.txt",
		SourceIdentifiers: filedata.SourceIdentifiers{
			Filename: "gone.txt",
			Fullpath: "/does/not/exist/gone.txt",
		},
	}
	_, err := d.Download(context.Background(), fd, t.TempDir())
	if !errors.Is(err, pipeerr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUploader_WritesNamedOutputs(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output")
	u, err := NewUploader(config.LocalConfig{OutputDir: out})
	if err != nil {
		t.Fatal(err)
	}

	staged := filepath.Join(t.TempDir(), "staged.json")
	if err := os.WriteFile(staged, []byte(`[{"id":"e1"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	batch := []stage.Staged{{
		FileData: filedata.FileData{
			Identifier:        "/src/fake-text.txt",
			SourceIdentifiers: filedata.SourceIdentifiers{Filename: "fake-text.txt"},
		},
		Path: staged,
	}}
	if err := u.Upload(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(out, "fake-text.txt.json"))
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
}

func TestUploader_SameFilenameDifferentDirs(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output")
	u, err := NewUploader(config.LocalConfig{OutputDir: out})
	if err != nil {
		t.Fatal(err)
	}

	stagedDir := t.TempDir()
	var batch []stage.Staged
	for _, rel := range []string{"one/readme.txt", "two/readme.txt"} {
		staged := filepath.Join(stagedDir, filepath.Base(filepath.Dir(rel))+".json")
		if err := os.WriteFile(staged, []byte(`[{"id":"`+rel+`"}]`), 0o644); err != nil {
			t.Fatal(err)
		}
		batch = append(batch, stage.Staged{
			FileData: filedata.FileData{
				Identifier: "/src/" + rel,
				SourceIdentifiers: filedata.SourceIdentifiers{
					Filename: "readme.txt",
					RelPath:  rel,
				},
			},
			Path: staged,
		})
	}
	if err := u.Upload(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	for _, rel := range []string{"one/readme.txt", "two/readme.txt"} {
		data, err := os.ReadFile(filepath.Join(out, rel+".json"))
		if err != nil {
			t.Fatalf("missing output for %s: %v", rel, err)
		}
		var decoded []map[string]string
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded[0]["id"] != rel {
			t.Errorf("output for %s holds %q, files overwrote each other", rel, decoded[0]["id"])
		}
	}
}
