// Package s3 implements source and destination connectors for S3-compatible
// object stores. Works with both AWS S3 and path-style endpoints such as
// LocalStack.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/connector"
	"github.com/corpusworks/ingest/internal/stage"
	"github.com/corpusworks/ingest/pkg/filedata"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

const connectorType = "s3"

// Register adds the S3 source and destination to the registry.
func Register(reg *connector.Registry) {
	reg.RegisterSource(connectorType, connector.SourceEntry{
		NewIndexer: func(cfg *config.Config) (stage.Indexer, error) {
			return NewIndexer(cfg.S3)
		},
		NewDownloader: func(cfg *config.Config) (stage.Downloader, error) {
			return NewDownloader(cfg.S3)
		},
		Config: func(cfg *config.Config) any { return cfg.S3 },
	})
	reg.RegisterDestination(connectorType, connector.DestinationEntry{
		NewUploader: func(cfg *config.Config) (stage.Uploader, error) {
			return NewUploader(cfg.S3)
		},
		Config: func(cfg *config.Config) any { return cfg.S3 },
	})
}

func newClient(cfg config.S3Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, pipeerr.Configuration("s3: bucket not set")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindConfiguration, "s3: load aws config", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	}), nil
}

// Indexer lists objects under the configured prefix and emits one record
// per object.
type Indexer struct {
	client *s3.Client
	cfg    config.S3Config
}

func NewIndexer(cfg config.S3Config) (*Indexer, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Indexer{client: client, cfg: cfg}, nil
}

func (ix *Indexer) Run(ctx context.Context, emit func(filedata.FileData) error) error {
	paginator := s3.NewListObjectsV2Paginator(ix.client, &s3.ListObjectsV2Input{
		Bucket: &ix.cfg.Bucket,
		Prefix: &ix.cfg.Prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return pipeerr.Wrap(pipeerr.KindTransient, "s3: list objects", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := *obj.Key
			// Skip "directory" markers
			if strings.HasSuffix(key, "/") {
				continue
			}
			fd := filedata.FileData{
				Identifier:    "s3://" + ix.cfg.Bucket + "/" + key,
				ConnectorType: connectorType,
				SourceIdentifiers: filedata.SourceIdentifiers{
					Filename: path.Base(key),
					Fullpath: key,
					RelPath:  strings.TrimPrefix(key, ix.cfg.Prefix),
				},
				Metadata: filedata.SourceMetadata{
					URL:      "s3://" + ix.cfg.Bucket + "/" + key,
					FileType: strings.TrimPrefix(path.Ext(key), "."),
				},
			}
			if obj.Size != nil {
				fd.Metadata.FileSize = *obj.Size
			}
			if obj.LastModified != nil {
				fd.Metadata.DateModified = obj.LastModified.UTC().Format(time.RFC3339)
			}
			if obj.ETag != nil {
				fd.Metadata.Version = strings.Trim(*obj.ETag, `"`)
			}
			if err := emit(fd); err != nil {
				return err
			}
		}
	}
	return nil
}

// Downloader fetches one object into the scratch directory.
type Downloader struct {
	client *s3.Client
	cfg    config.S3Config
}

func NewDownloader(cfg config.S3Config) (*Downloader, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Downloader{client: client, cfg: cfg}, nil
}

func (d *Downloader) Download(ctx context.Context, fd filedata.FileData, scratchDir string) ([]stage.Downloaded, error) {
	key := fd.SourceIdentifiers.Fullpath
	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &d.cfg.Bucket,
		Key:    &key,
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", pipeerr.ErrNotFound, d.cfg.Bucket, key)
		}
		return nil, pipeerr.Wrap(pipeerr.KindTransient, "s3: get object "+key, err)
	}
	defer resp.Body.Close()

	localPath := filepath.Join(scratchDir, fd.SourceIdentifiers.Filename)
	f, err := os.Create(localPath)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return nil, pipeerr.Wrap(pipeerr.KindTransient, "s3: read object "+key, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return []stage.Downloaded{{FileData: fd, Path: localPath}}, nil
}

// Uploader writes staged artifacts as objects under the configured prefix.
type Uploader struct {
	client *s3.Client
	cfg    config.S3Config
}

func NewUploader(cfg config.S3Config) (*Uploader, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Uploader{client: client, cfg: cfg}, nil
}

func (u *Uploader) Upload(ctx context.Context, batch []stage.Staged) error {
	for _, s := range batch {
		f, err := os.Open(s.Path)
		if err != nil {
			return err
		}
		name := s.FileData.SourceIdentifiers.Filename
		if name == "" {
			name = filepath.Base(s.Path)
		}
		key := path.Join(u.cfg.Prefix, name+".json")
		contentType := "application/json"
		_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &u.cfg.Bucket,
			Key:         &key,
			Body:        f,
			ContentType: &contentType,
		})
		f.Close()
		if err != nil {
			return pipeerr.Wrap(pipeerr.KindTransient, "s3: put object "+key, err)
		}
	}
	return nil
}

func (u *Uploader) Close() error { return nil }
