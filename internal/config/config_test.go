package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestSecret_Redaction(t *testing.T) {
	s := Secret("hunter2")

	if got := fmt.Sprintf("%s %v", s, s); strings.Contains(got, "hunter2") {
		t.Errorf("fmt leaked the secret: %q", got)
	}
	if s.String() != "[redacted]" {
		t.Errorf("String() = %q, want [redacted]", s.String())
	}
	if s.Reveal() != "hunter2" {
		t.Errorf("Reveal() = %q, want the real value", s.Reveal())
	}
}

func TestSecret_MarshalJSON(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Password: Secret("hunter2"), Table: "elements"}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("hunter2")) {
		t.Errorf("JSON leaked the secret: %s", data)
	}
	if !bytes.Contains(data, []byte("[redacted]")) {
		t.Errorf("JSON missing redaction marker: %s", data)
	}

	// Empty secrets serialize as empty, not as a phantom redaction.
	data, err = json.Marshal(struct{ S Secret }{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`""`)) {
		t.Errorf("empty secret serialized as %s", data)
	}
}

func TestSecret_UnmarshalJSON(t *testing.T) {
	var cfg struct {
		Password Secret `json:"password"`
	}
	if err := json.Unmarshal([]byte(`{"password":"hunter2"}`), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Password.Reveal() != "hunter2" {
		t.Errorf("unmarshal got %q", cfg.Password.Reveal())
	}
}

func TestSecret_LogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("connecting", slog.Any("password", Secret("hunter2")))
	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("slog leaked the secret: %s", buf.String())
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Run.Source != "local" || cfg.Run.Destination != "local" {
		t.Errorf("default connectors = %s/%s, want local/local", cfg.Run.Source, cfg.Run.Destination)
	}
	if cfg.Run.DownloadWorkers < 1 {
		t.Errorf("download workers = %d", cfg.Run.DownloadWorkers)
	}
	if cfg.Run.Reprocess || cfg.Run.ReDownload {
		t.Error("force flags must default off")
	}
	if cfg.Chunk.MaxCharacters != 0 {
		t.Errorf("chunking must default off, got max=%d", cfg.Chunk.MaxCharacters)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INGEST_SOURCE", "s3")
	t.Setenv("INGEST_DOWNLOAD_WORKERS", "16")
	t.Setenv("INGEST_REPROCESS", "true")
	t.Setenv("DB_PASSWORD", "supersecret")
	t.Setenv("CHUNK_MAX_CHARACTERS", "800")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Run.Source != "s3" {
		t.Errorf("source = %q", cfg.Run.Source)
	}
	if cfg.Run.DownloadWorkers != 16 {
		t.Errorf("download workers = %d", cfg.Run.DownloadWorkers)
	}
	if !cfg.Run.Reprocess {
		t.Error("reprocess flag not picked up")
	}
	if cfg.Database.Password.Reveal() != "supersecret" {
		t.Error("db password not picked up")
	}
	if cfg.Chunk.MaxCharacters != 800 {
		t.Errorf("chunk max = %d", cfg.Chunk.MaxCharacters)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db.internal", Port: 5433, User: "ingest",
		Password: Secret("pw"), Name: "corpus", SSLMode: "require",
	}
	want := "postgres://ingest:pw@db.internal:5433/corpus?sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
