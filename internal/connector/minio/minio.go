// Package minio implements a destination connector for MinIO using the
// native client. The generic s3 connector also speaks to MinIO through its
// S3 gateway; this one exists for deployments that hand out MinIO
// credentials directly.
package minio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/connector"
	"github.com/corpusworks/ingest/internal/stage"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

const connectorType = "minio"

// Register adds the MinIO destination to the registry.
func Register(reg *connector.Registry) {
	reg.RegisterDestination(connectorType, connector.DestinationEntry{
		NewUploader: func(cfg *config.Config) (stage.Uploader, error) {
			return NewUploader(cfg.MinIO)
		},
		Config: func(cfg *config.Config) any { return cfg.MinIO },
	})
}

// Uploader writes staged artifacts into a MinIO bucket. The client is built
// lazily on first upload so constructing the pipeline never needs the store
// to be reachable; a fully cached run that uploads nothing never connects.
type Uploader struct {
	cfg config.MinIOConfig

	once    sync.Once
	mc      *minio.Client
	connErr error
}

func NewUploader(cfg config.MinIOConfig) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, pipeerr.Configuration("minio: endpoint not set")
	}
	if cfg.Bucket == "" {
		return nil, pipeerr.Configuration("minio: bucket not set")
	}
	return &Uploader{cfg: cfg}, nil
}

func (u *Uploader) client(ctx context.Context) (*minio.Client, error) {
	u.once.Do(func() {
		mc, err := minio.New(u.cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(u.cfg.AccessKey, u.cfg.SecretKey.Reveal(), ""),
			Secure: u.cfg.UseSSL,
		})
		if err != nil {
			u.connErr = pipeerr.Wrap(pipeerr.KindConfiguration, "minio: create client", err)
			return
		}
		exists, err := mc.BucketExists(ctx, u.cfg.Bucket)
		if err != nil {
			u.connErr = pipeerr.Wrap(pipeerr.KindTransient, "minio: check bucket", err)
			return
		}
		if !exists {
			if err := mc.MakeBucket(ctx, u.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
				u.connErr = pipeerr.Wrap(pipeerr.KindTransient, "minio: create bucket", err)
				return
			}
		}
		u.mc = mc
	})
	return u.mc, u.connErr
}

func (u *Uploader) Upload(ctx context.Context, batch []stage.Staged) error {
	mc, err := u.client(ctx)
	if err != nil {
		return err
	}
	for _, s := range batch {
		info, err := os.Stat(s.Path)
		if err != nil {
			return err
		}
		f, err := os.Open(s.Path)
		if err != nil {
			return err
		}
		name := s.FileData.SourceIdentifiers.Filename
		if name == "" {
			name = filepath.Base(s.Path)
		}
		_, err = mc.PutObject(ctx, u.cfg.Bucket, name+".json", f, info.Size(), minio.PutObjectOptions{
			ContentType: "application/json",
		})
		f.Close()
		if err != nil {
			return pipeerr.Wrap(pipeerr.KindTransient, fmt.Sprintf("minio: upload %s", name), err)
		}
	}
	return nil
}

func (u *Uploader) Close() error { return nil }
