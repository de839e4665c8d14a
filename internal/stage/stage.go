// Package stage defines the uniform execution contracts every pipeline phase
// implements. Connectors supply the source-side (Indexer, Downloader) and
// destination-side (UploadStager, Uploader) implementations; partitioning,
// chunking, and embedding are collaborator transforms behind the same shape.
package stage

import (
	"context"

	"github.com/corpusworks/ingest/internal/element"
	"github.com/corpusworks/ingest/pkg/filedata"
)

// Stage names, also the working-directory subdirectory for each phase.
const (
	NameIndex       = "index"
	NameDownload    = "download"
	NamePartition   = "partition"
	NameChunk       = "chunk"
	NameEmbed       = "embed"
	NameUploadStage = "upload_stage"
	NameUpload      = "upload"
)

// Indexer lists a source and emits one FileData per discovered artifact.
// The sequence is lazy and finite; emit returning an error stops the listing.
// Re-running an unchanged source with unchanged config must reproduce the
// same sequence of identifiers.
type Indexer interface {
	Run(ctx context.Context, emit func(filedata.FileData) error) error
}

// Downloaded pairs an updated FileData with the local path holding its raw
// content.
type Downloaded struct {
	FileData filedata.FileData
	Path     string
}

// Downloader materializes one artifact's raw content under scratchDir and
// returns one or more results — more than one when a tabular source explodes
// an index entry into per-row artifacts. Implementations write only under
// scratchDir; the orchestrator commits outputs into the cache.
//
// Transient network or auth failures are reported as pipeerr.KindTransient
// and retried; a vanished source object is reported via pipeerr.ErrNotFound
// and drops the artifact.
type Downloader interface {
	Download(ctx context.Context, fd filedata.FileData, scratchDir string) ([]Downloaded, error)
}

// Partitioner extracts structured elements from one raw content file.
// Unsupported file types surface pipeerr.ErrUnsupportedFileType, recorded
// per artifact without aborting the run.
type Partitioner interface {
	Partition(ctx context.Context, path string, fd filedata.FileData) ([]element.Element, error)
}

// Chunker regroups partitioned elements. Pure transformation.
type Chunker interface {
	Chunk(ctx context.Context, els []element.Element) ([]element.Element, error)
}

// Embedder attaches vectors to elements. Remote model-call transient errors
// are retried with backoff by the stage runner.
type Embedder interface {
	Embed(ctx context.Context, els []element.Element) ([]element.Element, error)
}

// UploadStager reshapes an artifact's elements into the structure the
// destination's uploader needs, written to outPath. Performs no network I/O.
type UploadStager interface {
	Stage(ctx context.Context, els []element.Element, fd filedata.FileData, outPath string) error
}

// Staged pairs a FileData with its staged file, ready for upload.
type Staged struct {
	FileData filedata.FileData
	Path     string
}

// Uploader writes staged artifacts to the destination. It is the only stage
// permitted a live connection to the destination service, and constructs its
// client lazily on the first Upload call so the rest of the pipeline runs
// without the destination reachable. Close releases the client if one was
// ever built.
type Uploader interface {
	Upload(ctx context.Context, batch []Staged) error
	Close() error
}
