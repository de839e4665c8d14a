// Package neo4j implements a destination connector that models each source
// record as a Record node with one Element node per extracted element,
// linked by HAS_ELEMENT. Nodes merge by id, so re-uploading an artifact
// updates properties in place.
package neo4j

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/connector"
	"github.com/corpusworks/ingest/internal/element"
	"github.com/corpusworks/ingest/internal/stage"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

const connectorType = "neo4j"

const (
	// constraints create the indexes that make MERGE by id fast; without
	// them large uploads take minutes.
	createConstraintRecordID = `CREATE CONSTRAINT record_id IF NOT EXISTS FOR (r:Record) REQUIRE r.id IS UNIQUE`

	createConstraintElementID = `CREATE CONSTRAINT element_id IF NOT EXISTS FOR (e:Element) REQUIRE e.id IS UNIQUE`

	upsertRecord = `
MERGE (r:Record {id: $id})
SET r.connectorType = $connectorType,
    r.filename = $filename
`

	upsertElements = `
UNWIND $elements AS el
MATCH (r:Record {id: $recordId})
MERGE (e:Element {id: el.id})
SET e.type = el.type,
    e.text = el.text,
    e.metadata = el.metadata
MERGE (r)-[:HAS_ELEMENT {ordinal: el.ordinal}]->(e)
`
)

// Register adds the neo4j destination to the registry.
func Register(reg *connector.Registry) {
	reg.RegisterDestination(connectorType, connector.DestinationEntry{
		NewUploader: func(cfg *config.Config) (stage.Uploader, error) {
			return NewUploader(cfg.Neo4j)
		},
		Config: func(cfg *config.Config) any { return cfg.Neo4j },
	})
}

// Uploader writes record and element nodes through a lazily opened driver.
type Uploader struct {
	cfg config.Neo4jConfig

	once    sync.Once
	driver  neo4j.DriverWithContext
	connErr error
}

func NewUploader(cfg config.Neo4jConfig) (*Uploader, error) {
	if cfg.URI == "" {
		return nil, pipeerr.Configuration("neo4j: uri not set")
	}
	return &Uploader{cfg: cfg}, nil
}

func (u *Uploader) connect(ctx context.Context) (neo4j.DriverWithContext, error) {
	u.once.Do(func() {
		driver, err := neo4j.NewDriverWithContext(u.cfg.URI,
			neo4j.BasicAuth(u.cfg.User, u.cfg.Password.Reveal(), ""))
		if err != nil {
			u.connErr = pipeerr.Wrap(pipeerr.KindConfiguration, "neo4j: create driver", err)
			return
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			driver.Close(ctx)
			u.connErr = pipeerr.Wrap(pipeerr.KindTransient, "neo4j: verify connectivity", err)
			return
		}
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, err = neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
			if _, err := tx.Run(ctx, createConstraintRecordID, nil); err != nil {
				return struct{}{}, err
			}
			_, err := tx.Run(ctx, createConstraintElementID, nil)
			return struct{}{}, err
		})
		if err != nil {
			driver.Close(ctx)
			u.connErr = pipeerr.Wrap(pipeerr.KindTransient, "neo4j: ensure constraints", err)
			return
		}
		u.driver = driver
	})
	return u.driver, u.connErr
}

func (u *Uploader) Upload(ctx context.Context, batch []stage.Staged) error {
	driver, err := u.connect(ctx)
	if err != nil {
		return err
	}
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, s := range batch {
		els, err := element.ReadFile(s.Path)
		if err != nil {
			return err
		}

		params := make([]map[string]any, len(els))
		for i, el := range els {
			meta, err := json.Marshal(el.Metadata)
			if err != nil {
				return err
			}
			params[i] = map[string]any{
				"id":       el.ID,
				"type":     el.Type,
				"text":     el.Text,
				"metadata": string(meta),
				"ordinal":  i,
			}
		}

		_, err = neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, upsertRecord, map[string]any{
				"id":            s.FileData.Identifier,
				"connectorType": s.FileData.ConnectorType,
				"filename":      s.FileData.SourceIdentifiers.Filename,
			})
			if err != nil {
				return struct{}{}, err
			}
			_, err = tx.Run(ctx, upsertElements, map[string]any{
				"recordId": s.FileData.Identifier,
				"elements": params,
			})
			return struct{}{}, err
		})
		if err != nil {
			return pipeerr.Wrap(pipeerr.KindTransient,
				"neo4j: upsert record "+s.FileData.Identifier, err)
		}
	}
	return nil
}

func (u *Uploader) Close() error {
	if u.driver != nil {
		return u.driver.Close(context.Background())
	}
	return nil
}
