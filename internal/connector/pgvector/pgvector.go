// Package pgvector implements a destination connector that writes embedded
// elements into a Postgres table with a pgvector column, one row per
// element. Rows are keyed by element ID, so re-uploading an artifact
// upserts rather than duplicates.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"

	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/connector"
	"github.com/corpusworks/ingest/internal/element"
	"github.com/corpusworks/ingest/internal/stage"
	"github.com/corpusworks/ingest/pkg/filedata"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

const connectorType = "pgvector"

// Register adds the pgvector destination to the registry.
func Register(reg *connector.Registry) {
	reg.RegisterDestination(connectorType, connector.DestinationEntry{
		NewStager: func(cfg *config.Config) (stage.UploadStager, error) {
			return &Stager{}, nil
		},
		NewUploader: func(cfg *config.Config) (stage.Uploader, error) {
			return NewUploader(cfg.Database)
		},
		Config: func(cfg *config.Config) any { return cfg.Database },
	})
}

// row is the staged on-disk shape, one JSON array entry per element, already
// carrying everything the insert statement needs.
type row struct {
	ID        string          `json:"id"`
	RecordID  string          `json:"record_id"`
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Metadata  json.RawMessage `json:"metadata"`
	Embedding []float32       `json:"embedding,omitempty"`
}

// Stager flattens embedded elements into insert-ready rows.
type Stager struct{}

func (st *Stager) Stage(ctx context.Context, els []element.Element, fd filedata.FileData, outPath string) error {
	rows := make([]row, len(els))
	for i, el := range els {
		meta, err := json.Marshal(el.Metadata)
		if err != nil {
			return fmt.Errorf("pgvector: marshal metadata for %s: %w", el.ID, err)
		}
		rows[i] = row{
			ID:        el.ID,
			RecordID:  fd.Identifier,
			Type:      el.Type,
			Text:      el.Text,
			Metadata:  meta,
			Embedding: el.Embeddings,
		}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

func readRows(path string) ([]row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("pgvector: decode staged rows %s: %w", path, err)
	}
	return rows, nil
}

// Uploader writes element rows through a lazily opened pgx pool. The pool is
// opened on first upload so a fully cached run never touches the database.
type Uploader struct {
	cfg config.DatabaseConfig

	once    sync.Once
	pool    *pgxpool.Pool
	connErr error
}

func NewUploader(cfg config.DatabaseConfig) (*Uploader, error) {
	if cfg.Host == "" {
		return nil, pipeerr.Configuration("pgvector: database host not set")
	}
	if cfg.Table == "" {
		return nil, pipeerr.Configuration("pgvector: table not set")
	}
	return &Uploader{cfg: cfg}, nil
}

func (u *Uploader) connect(ctx context.Context) (*pgxpool.Pool, error) {
	u.once.Do(func() {
		poolCfg, err := pgxpool.ParseConfig(u.cfg.DSN())
		if err != nil {
			u.connErr = pipeerr.Wrap(pipeerr.KindConfiguration, "pgvector: parse dsn", err)
			return
		}
		if u.cfg.MaxConns > 0 {
			poolCfg.MaxConns = u.cfg.MaxConns
		}
		if u.cfg.MinConns > 0 {
			poolCfg.MinConns = u.cfg.MinConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			u.connErr = pipeerr.Wrap(pipeerr.KindTransient, "pgvector: open pool", err)
			return
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			u.connErr = pipeerr.Wrap(pipeerr.KindTransient, "pgvector: ping", err)
			return
		}
		u.pool = pool
	})
	return u.pool, u.connErr
}

// Upload upserts every element of every artifact in the batch. Writes use a
// single pgx pipelined batch per artifact rather than one round-trip per
// element.
func (u *Uploader) Upload(ctx context.Context, batch []stage.Staged) error {
	pool, err := u.connect(ctx)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(`INSERT INTO %s (id, record_id, type, text, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			record_id = EXCLUDED.record_id,
			type = EXCLUDED.type,
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, pgx.Identifier{u.cfg.Table}.Sanitize())

	for _, s := range batch {
		rows, err := readRows(s.Path)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}

		pb := &pgx.Batch{}
		for _, r := range rows {
			var vec any
			if len(r.Embedding) > 0 {
				vec = pgvec.NewVector(r.Embedding)
			}
			pb.Queue(sql, r.ID, r.RecordID, r.Type, r.Text, r.Metadata, vec)
		}

		br := pool.SendBatch(ctx, pb)
		for range rows {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return pipeerr.Wrap(pipeerr.KindTransient,
					"pgvector: upsert elements for "+s.FileData.Identifier, err)
			}
		}
		if err := br.Close(); err != nil {
			return pipeerr.Wrap(pipeerr.KindTransient, "pgvector: close batch", err)
		}
	}
	return nil
}

func (u *Uploader) Close() error {
	if u.pool != nil {
		u.pool.Close()
	}
	return nil
}
