// Package valkey implements a destination connector that stores each
// artifact's staged elements document as a JSON value keyed by the source
// identifier. Suited for serving layers that look records up by key rather
// than querying by similarity.
package valkey

import (
	"context"
	"os"
	"sync"

	"github.com/valkey-io/valkey-go"

	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/connector"
	"github.com/corpusworks/ingest/internal/stage"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

const connectorType = "valkey"

// Register adds the valkey destination to the registry.
func Register(reg *connector.Registry) {
	reg.RegisterDestination(connectorType, connector.DestinationEntry{
		NewUploader: func(cfg *config.Config) (stage.Uploader, error) {
			return NewUploader(cfg.Valkey)
		},
		Config: func(cfg *config.Config) any { return cfg.Valkey },
	})
}

// Uploader writes one key per artifact. The client is opened lazily so a
// fully cached run never connects.
type Uploader struct {
	cfg config.ValkeyConfig

	once    sync.Once
	client  valkey.Client
	connErr error
}

func NewUploader(cfg config.ValkeyConfig) (*Uploader, error) {
	if cfg.Addr == "" {
		return nil, pipeerr.Configuration("valkey: address not set")
	}
	return &Uploader{cfg: cfg}, nil
}

func (u *Uploader) connect(ctx context.Context) (valkey.Client, error) {
	u.once.Do(func() {
		opts := valkey.ClientOption{
			InitAddress: []string{u.cfg.Addr},
			SelectDB:    u.cfg.DB,
		}
		if u.cfg.Password.IsSet() {
			opts.Password = u.cfg.Password.Reveal()
		}
		client, err := valkey.NewClient(opts)
		if err != nil {
			u.connErr = pipeerr.Wrap(pipeerr.KindTransient, "valkey: create client", err)
			return
		}
		// Verify connectivity
		if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
			client.Close()
			u.connErr = pipeerr.Wrap(pipeerr.KindTransient, "valkey: ping", err)
			return
		}
		u.client = client
	})
	return u.client, u.connErr
}

func (u *Uploader) Upload(ctx context.Context, batch []stage.Staged) error {
	client, err := u.connect(ctx)
	if err != nil {
		return err
	}
	for _, s := range batch {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return err
		}
		key := u.cfg.KeyPrefix + s.FileData.Identifier
		cmd := client.B().Set().Key(key).Value(string(data)).Build()
		if err := client.Do(ctx, cmd).Error(); err != nil {
			return pipeerr.Wrap(pipeerr.KindTransient, "valkey: set "+key, err)
		}
	}
	return nil
}

func (u *Uploader) Close() error {
	if u.client != nil {
		u.client.Close()
	}
	return nil
}
