// Package local implements filesystem source and destination connectors.
// The source walks a directory tree and the destination writes one JSON
// elements file per artifact into an output directory. It is also the
// connector the end-to-end tests run against.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/connector"
	"github.com/corpusworks/ingest/internal/stage"
	"github.com/corpusworks/ingest/pkg/filedata"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

const connectorType = "local"

// Register adds the local source and destination to the registry.
func Register(reg *connector.Registry) {
	reg.RegisterSource(connectorType, connector.SourceEntry{
		NewIndexer: func(cfg *config.Config) (stage.Indexer, error) {
			return NewIndexer(cfg.Local)
		},
		NewDownloader: func(cfg *config.Config) (stage.Downloader, error) {
			return NewDownloader(cfg.Local)
		},
		Config: func(cfg *config.Config) any { return cfg.Local },
	})
	reg.RegisterDestination(connectorType, connector.DestinationEntry{
		NewUploader: func(cfg *config.Config) (stage.Uploader, error) {
			return NewUploader(cfg.Local)
		},
		Config: func(cfg *config.Config) any { return cfg.Local },
	})
}

// Indexer walks the input directory and emits one record per regular file.
type Indexer struct {
	cfg config.LocalConfig
}

func NewIndexer(cfg config.LocalConfig) (*Indexer, error) {
	if cfg.InputDir == "" {
		return nil, pipeerr.Configuration("local: input directory not set")
	}
	info, err := os.Stat(cfg.InputDir)
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindConfiguration, "local: input directory not accessible", err)
	}
	if !info.IsDir() {
		return nil, pipeerr.Configuration("local: input path is not a directory: " + cfg.InputDir)
	}
	return &Indexer{cfg: cfg}, nil
}

func (ix *Indexer) Run(ctx context.Context, emit func(filedata.FileData) error) error {
	root, err := filepath.Abs(ix.cfg.InputDir)
	if err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if !ix.cfg.Recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return emit(filedata.FileData{
			Identifier:    path,
			ConnectorType: connectorType,
			SourceIdentifiers: filedata.SourceIdentifiers{
				Filename: d.Name(),
				Fullpath: path,
				RelPath:  rel,
			},
			Metadata: filedata.SourceMetadata{
				DateModified: info.ModTime().UTC().Format(time.RFC3339),
				FileSize:     info.Size(),
				FileType:     strings.TrimPrefix(filepath.Ext(path), "."),
			},
		})
	})
}

// Downloader copies the indexed file into the scratch directory. Local files
// could be read in place, but copying keeps the cache layout uniform across
// connectors and protects the run from concurrent edits to the source tree.
type Downloader struct {
	cfg config.LocalConfig
}

func NewDownloader(cfg config.LocalConfig) (*Downloader, error) {
	return &Downloader{cfg: cfg}, nil
}

func (d *Downloader) Download(ctx context.Context, fd filedata.FileData, scratchDir string) ([]stage.Downloaded, error) {
	src := fd.SourceIdentifiers.Fullpath
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", pipeerr.ErrNotFound, src)
		}
		return nil, err
	}
	defer in.Close()

	dst := filepath.Join(scratchDir, fd.SourceIdentifiers.Filename)
	out, err := os.Create(dst)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	return []stage.Downloaded{{FileData: fd, Path: dst}}, nil
}

// Uploader copies staged artifacts into the output directory, one
// <name>.json per source file. The source-relative path is preserved so
// same-named files from different subdirectories cannot overwrite each
// other.
type Uploader struct {
	cfg config.LocalConfig
}

func NewUploader(cfg config.LocalConfig) (*Uploader, error) {
	if cfg.OutputDir == "" {
		return nil, pipeerr.Configuration("local: output directory not set")
	}
	return &Uploader{cfg: cfg}, nil
}

func (u *Uploader) Upload(ctx context.Context, batch []stage.Staged) error {
	if err := os.MkdirAll(u.cfg.OutputDir, 0o755); err != nil {
		return err
	}
	for _, s := range batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := s.FileData.SourceIdentifiers.RelPath
		if name == "" {
			name = s.FileData.SourceIdentifiers.Filename
		}
		if name == "" {
			name = filepath.Base(s.Path)
		}
		dst := filepath.Join(u.cfg.OutputDir, name+".json")
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := copyFile(s.Path, dst); err != nil {
			return fmt.Errorf("local: write %s: %w", dst, err)
		}
	}
	return nil
}

func (u *Uploader) Close() error { return nil }

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
