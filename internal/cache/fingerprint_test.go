package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/corpusworks/ingest/internal/config"
)

func TestFingerprint_Deterministic(t *testing.T) {
	type srcCfg struct {
		Bucket string
		Prefix string
	}
	a, err := Fingerprint("download", srcCfg{"docs", "reports/"}, "s3://docs/reports/q1.pdf")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Fingerprint("download", srcCfg{"docs", "reports/"}, "s3://docs/reports/q1.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("identical inputs: %q != %q", a, b)
	}
	if len(a) != fingerprintLen {
		t.Errorf("fingerprint length = %d, want %d", len(a), fingerprintLen)
	}
	if a != strings.ToLower(a) {
		t.Errorf("fingerprint not lowercase hex: %q", a)
	}
}

func TestFingerprint_SensitiveToEachInput(t *testing.T) {
	base, _ := Fingerprint("partition", "cfg-v1", "id-1", "hash-1")
	variants := []struct {
		name  string
		stage string
		parts []any
	}{
		{"stage", "chunk", []any{"cfg-v1", "id-1", "hash-1"}},
		{"config", "partition", []any{"cfg-v2", "id-1", "hash-1"}},
		{"identity", "partition", []any{"cfg-v1", "id-2", "hash-1"}},
		{"upstream hash", "partition", []any{"cfg-v1", "id-1", "hash-2"}},
	}
	for _, v := range variants {
		got, err := Fingerprint(v.stage, v.parts...)
		if err != nil {
			t.Fatal(err)
		}
		if got == base {
			t.Errorf("changing %s did not change the fingerprint", v.name)
		}
	}
}

func TestFingerprint_SecretsDoNotEnter(t *testing.T) {
	a, err := Fingerprint("upload_stage", config.DatabaseConfig{
		Host: "db", Table: "elements", Password: config.Secret("hunter2"),
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Fingerprint("upload_stage", config.DatabaseConfig{
		Host: "db", Table: "elements", Password: config.Secret("rotated"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("rotating a secret must not invalidate cache entries")
	}
}

func TestFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FileHash(path)
	if err != nil {
		t.Fatal(err)
	}
	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("FileHash = %q, want %q", got, want)
	}
}
