// Package pipeline orchestrates the ingest stages: it owns the
// working-directory layout, instantiates the configured connector chain,
// and drives execution stage by stage over the full artifact set. All
// artifacts complete one stage before any enters the next — each stage picks
// its own fan-out, and the hard barrier between stages is what makes an
// interrupted run resumable from the cache.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/corpusworks/ingest/internal/cache"
	"github.com/corpusworks/ingest/internal/config"
	"github.com/corpusworks/ingest/internal/connector"
	"github.com/corpusworks/ingest/internal/element"
	"github.com/corpusworks/ingest/internal/stage"
	"github.com/corpusworks/ingest/pkg/filedata"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

// Pipeline composes the ordered stage chain for one source/destination pair.
type Pipeline struct {
	cfg    *config.Config
	cache  *cache.Cache
	logger *slog.Logger

	sourceName string
	sourceCfg  any
	destName   string
	destCfg    any

	indexer     stage.Indexer
	downloader  stage.Downloader
	partitioner stage.Partitioner
	chunker     stage.Chunker  // nil disables the chunk stage
	embedder    stage.Embedder // nil disables the embed stage
	embedModel  string
	stager      stage.UploadStager // nil passes embedded artifacts through
	uploader    stage.Uploader

	partitionExts []string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the run logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithChunker enables the chunk stage.
func WithChunker(c stage.Chunker) Option {
	return func(p *Pipeline) { p.chunker = c }
}

// WithEmbedder enables the embed stage. model feeds the embed-stage
// fingerprint so switching models invalidates cached vectors.
func WithEmbedder(e stage.Embedder, model string) Option {
	return func(p *Pipeline) {
		p.embedder = e
		p.embedModel = model
	}
}

// New resolves the configured source and destination connectors from the
// registry and builds the stage chain. Configuration problems surface here,
// before any stage runs.
func New(cfg *config.Config, reg *connector.Registry, partitioner stage.Partitioner, exts []string, opts ...Option) (*Pipeline, error) {
	mode := cache.ModeNone
	if cfg.Run.ReDownload {
		mode = cache.ModeReDownload
	}
	if cfg.Run.Reprocess {
		mode = cache.ModeReprocess
	}
	c, err := cache.New(cfg.Run.WorkDir, mode)
	if err != nil {
		return nil, err
	}

	src, err := reg.Source(cfg.Run.Source)
	if err != nil {
		return nil, err
	}
	dst, err := reg.Destination(cfg.Run.Destination)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:           cfg,
		cache:         c,
		logger:        slog.Default(),
		sourceName:    cfg.Run.Source,
		destName:      cfg.Run.Destination,
		partitioner:   partitioner,
		partitionExts: exts,
	}
	for _, opt := range opts {
		opt(p)
	}

	if src.Config != nil {
		p.sourceCfg = src.Config(cfg)
	}
	if dst.Config != nil {
		p.destCfg = dst.Config(cfg)
	}

	if p.indexer, err = src.NewIndexer(cfg); err != nil {
		return nil, fmt.Errorf("build indexer: %w", err)
	}
	if p.downloader, err = src.NewDownloader(cfg); err != nil {
		return nil, fmt.Errorf("build downloader: %w", err)
	}
	if dst.NewStager != nil {
		if p.stager, err = dst.NewStager(cfg); err != nil {
			return nil, fmt.Errorf("build stager: %w", err)
		}
	}
	if p.uploader, err = dst.NewUploader(cfg); err != nil {
		return nil, fmt.Errorf("build uploader: %w", err)
	}
	return p, nil
}

// Run drives every stage over the full artifact set and returns the run
// summary. A fatal error halts stage advancement; cache entries already
// written stay on disk, so the next invocation resumes from them.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	logger := p.logger.With(slog.String("run_id", runID))
	summary := &Summary{RunID: runID}
	defer p.uploader.Close()

	logger.Info("run started",
		slog.String("source", p.sourceName),
		slog.String("destination", p.destName),
		slog.String("work_dir", p.cache.Root()))

	type phase struct {
		name    string
		workers int
		fn      stageFunc
		skip    bool
	}
	items, err := p.runIndex(ctx, summary, logger)
	if err != nil {
		return p.finish(summary, logger, err)
	}

	phases := []phase{
		{stage.NameDownload, p.cfg.Run.DownloadWorkers, p.downloadItem, false},
		{stage.NamePartition, p.cfg.Run.PartitionWorkers, p.partitionItem, false},
		{stage.NameChunk, p.cfg.Run.ChunkWorkers, p.chunkItem, p.chunker == nil},
		{stage.NameEmbed, p.cfg.Run.EmbedWorkers, p.embedItem, p.embedder == nil},
		{stage.NameUploadStage, p.cfg.Run.StageWorkers, p.stageItem, p.stager == nil},
	}
	for _, ph := range phases {
		if ph.skip {
			continue
		}
		logger.Info("stage started", slog.String("stage", ph.name), slog.Int("artifacts", len(items)))
		survivors, res, fails, err := p.runStage(ctx, ph.name, ph.workers, items, ph.fn)
		summary.addStage(res)
		summary.Failures = append(summary.Failures, fails...)
		if err != nil {
			return p.finish(summary, logger, err)
		}
		logger.Info("stage completed",
			slog.String("stage", ph.name),
			slog.Int("processed", res.Processed),
			slog.Int("cache_hits", res.CacheHits),
			slog.Int("failed", res.Failed))
		items = survivors
	}

	if err := p.runUpload(ctx, items, summary, logger); err != nil {
		return p.finish(summary, logger, err)
	}
	return p.finish(summary, logger, nil)
}

func (p *Pipeline) finish(summary *Summary, logger *slog.Logger, err error) (*Summary, error) {
	if err != nil {
		summary.Aborted = pipeerr.IsFatal(err)
		logger.Error("run failed", slog.String("error", err.Error()))
	}
	summary.Log(logger)
	return summary, err
}

// runIndex drives the source indexer sequentially (listing is typically one
// call) and materializes one index cache entry per discovered artifact.
// A duplicate identifier from a misbehaving indexer resolves to the same
// fingerprint and counts as a cache hit, never as a second artifact.
func (p *Pipeline) runIndex(ctx context.Context, summary *Summary, logger *slog.Logger) ([]item, error) {
	res := StageResult{Name: stage.NameIndex}
	logger.Info("stage started", slog.String("stage", stage.NameIndex))

	seen := make(map[string]bool)
	var items []item
	err := p.indexer.Run(ctx, func(fd filedata.FileData) error {
		if err := fd.Validate(); err != nil {
			res.Failed++
			summary.Failures = append(summary.Failures, Failure{
				Stage: stage.NameIndex, Identifier: fd.Identifier, Error: err.Error(),
			})
			return nil
		}
		if fd.ConnectorType == "" {
			fd.ConnectorType = p.sourceName
		}

		fp, err := cache.Fingerprint(stage.NameIndex, p.sourceName, p.sourceCfg, fd.Identifier)
		if err != nil {
			return err
		}
		if seen[fp] {
			res.CacheHits++
			return nil
		}
		seen[fp] = true

		path, hit, err := p.cache.GetOrCompute(ctx, stage.NameIndex, fp, ".json", func(tmp string) error {
			return fd.WriteFile(tmp)
		})
		if err != nil {
			return err
		}
		if hit {
			res.CacheHits++
			// Prefer the persisted record: it may carry metadata a
			// later stage of a previous run merged in.
			if prev, err := filedata.ReadFile(path); err == nil {
				fd = prev
			}
		} else {
			res.Processed++
		}
		items = append(items, item{fd: fd})
		return nil
	})

	summary.addStage(res)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	logger.Info("stage completed",
		slog.String("stage", stage.NameIndex),
		slog.Int("processed", res.Processed),
		slog.Int("cache_hits", res.CacheHits))
	return items, nil
}

// downloadItem materializes one artifact's raw content. The previous run's
// download directory is consulted first so an unchanged artifact costs no
// network call at all.
func (p *Pipeline) downloadItem(ctx context.Context, it item) ([]item, bool, error) {
	fp, err := p.downloadFingerprint(it.fd)
	if err != nil {
		return nil, false, err
	}

	if !p.cache.Forced(stage.NameDownload) {
		entries, err := p.cache.Scan(stage.NameDownload)
		if err != nil {
			return nil, false, err
		}
		if path, ok := entries[fp]; ok {
			out, err := p.downloadedItem(it.fd, path)
			if err != nil {
				return nil, false, err
			}
			return []item{out}, true, nil
		}
	}

	scratch, err := os.MkdirTemp("", "ingest-download-*")
	if err != nil {
		return nil, false, err
	}
	defer os.RemoveAll(scratch)

	downs, err := p.downloader.Download(ctx, it.fd, scratch)
	if err != nil {
		return nil, false, err
	}
	if len(downs) == 0 {
		return nil, false, fmt.Errorf("%w: downloader produced no content for %s",
			pipeerr.ErrNotFound, it.fd.Identifier)
	}

	out := make([]item, 0, len(downs))
	allHits := true
	for _, d := range downs {
		cfp := fp
		if d.FileData.Identifier != it.fd.Identifier {
			// Exploded child artifact: its own identity keys the entry.
			if cfp, err = p.downloadFingerprint(d.FileData); err != nil {
				return nil, false, err
			}
		}
		src := d.Path
		path, hit, err := p.cache.GetOrCompute(ctx, stage.NameDownload, cfp, filepath.Ext(src), func(tmp string) error {
			return copyFile(src, tmp)
		})
		if err != nil {
			return nil, false, err
		}
		if !hit {
			allHits = false
		}
		next, err := p.downloadedItem(d.FileData, path)
		if err != nil {
			return nil, false, err
		}
		out = append(out, next)
	}
	return out, allHits, nil
}

func (p *Pipeline) downloadFingerprint(fd filedata.FileData) (string, error) {
	return cache.Fingerprint(stage.NameDownload, p.sourceName, p.sourceCfg, fd.Identifier)
}

func (p *Pipeline) downloadedItem(fd filedata.FileData, path string) (item, error) {
	hash, err := cache.FileHash(path)
	if err != nil {
		return item{}, err
	}
	fd = fd.Merge(filedata.SourceMetadata{
		LocalPath:     path,
		DateProcessed: time.Now().UTC().Format(time.RFC3339),
	})
	return item{fd: fd, rawPath: path, rawHash: hash}, nil
}

// partitionItem extracts structured elements from the raw content file.
func (p *Pipeline) partitionItem(ctx context.Context, it item) ([]item, bool, error) {
	fp, err := cache.Fingerprint(stage.NamePartition, p.partitionExts, it.fd.Identifier, it.rawHash)
	if err != nil {
		return nil, false, err
	}
	path, hit, err := p.cache.GetOrCompute(ctx, stage.NamePartition, fp, ".json", func(tmp string) error {
		els, err := p.partitioner.Partition(ctx, it.rawPath, it.fd)
		if err != nil {
			return err
		}
		return element.WriteFile(tmp, els)
	})
	if err != nil {
		return nil, false, err
	}
	return p.withElements(it, path, hit)
}

func (p *Pipeline) chunkItem(ctx context.Context, it item) ([]item, bool, error) {
	fp, err := cache.Fingerprint(stage.NameChunk, p.cfg.Chunk, it.fd.Identifier, it.elementsHash)
	if err != nil {
		return nil, false, err
	}
	path, hit, err := p.cache.GetOrCompute(ctx, stage.NameChunk, fp, ".json", func(tmp string) error {
		els, err := element.ReadFile(it.elementsPath)
		if err != nil {
			return err
		}
		chunked, err := p.chunker.Chunk(ctx, els)
		if err != nil {
			return err
		}
		return element.WriteFile(tmp, chunked)
	})
	if err != nil {
		return nil, false, err
	}
	return p.withElements(it, path, hit)
}

func (p *Pipeline) embedItem(ctx context.Context, it item) ([]item, bool, error) {
	fp, err := cache.Fingerprint(stage.NameEmbed, p.embedModel, it.fd.Identifier, it.elementsHash)
	if err != nil {
		return nil, false, err
	}
	path, hit, err := p.cache.GetOrCompute(ctx, stage.NameEmbed, fp, ".json", func(tmp string) error {
		els, err := element.ReadFile(it.elementsPath)
		if err != nil {
			return err
		}
		embedded, err := p.embedder.Embed(ctx, els)
		if err != nil {
			return err
		}
		return element.WriteFile(tmp, embedded)
	})
	if err != nil {
		return nil, false, err
	}
	return p.withElements(it, path, hit)
}

func (p *Pipeline) withElements(it item, path string, hit bool) ([]item, bool, error) {
	hash, err := cache.FileHash(path)
	if err != nil {
		return nil, false, err
	}
	it.elementsPath = path
	it.elementsHash = hash
	return []item{it}, hit, nil
}

// stageItem reshapes an artifact for the destination. The phase only runs
// when the destination registered a stager; otherwise the elements file is
// uploaded as-is.
func (p *Pipeline) stageItem(ctx context.Context, it item) ([]item, bool, error) {
	fp, err := cache.Fingerprint(stage.NameUploadStage, p.destName, p.destCfg, it.fd.Identifier, it.elementsHash)
	if err != nil {
		return nil, false, err
	}
	ext := ".json"
	if h, ok := p.stager.(interface{ Extension() string }); ok {
		ext = h.Extension()
	}
	path, hit, err := p.cache.GetOrCompute(ctx, stage.NameUploadStage, fp, ext, func(tmp string) error {
		els, err := element.ReadFile(it.elementsPath)
		if err != nil {
			return err
		}
		return p.stager.Stage(ctx, els, it.fd, tmp)
	})
	if err != nil {
		return nil, false, err
	}
	it.stagedPath = path
	return []item{it}, hit, nil
}

// runUpload is terminal: staged artifacts are grouped into batches and
// written to the destination. Batch failures drop every artifact in the
// batch without touching sibling batches.
func (p *Pipeline) runUpload(ctx context.Context, items []item, summary *Summary, logger *slog.Logger) error {
	res := StageResult{Name: stage.NameUpload}
	if len(items) == 0 {
		summary.addStage(res)
		return nil
	}
	logger.Info("stage started", slog.String("stage", stage.NameUpload), slog.Int("artifacts", len(items)))

	batchSize := p.cfg.Run.UploadBatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	var batches [][]item
	for i := 0; i < len(items); i += batchSize {
		batches = append(batches, items[i:min(i+batchSize, len(items))])
	}

	workers := p.cfg.Run.UploadWorkers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return err
	}
	defer pool.Release()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		errs       = make([]error, len(batches))
		dispatched = make([]bool, len(batches))
	)
	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		dispatched[i] = true
		staged := make([]stage.Staged, len(batch))
		for j, it := range batch {
			staged[j] = stage.Staged{FileData: it.fd, Path: it.uploadPath()}
		}

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			err := retryTransient(ctx, p.logger, func() error {
				return p.uploader.Upload(ctx, staged)
			})
			if err != nil {
				errs[i] = err
				mu.Lock()
				for _, s := range staged {
					res.Failed++
					summary.Failures = append(summary.Failures, Failure{
						Stage: stage.NameUpload, Identifier: s.FileData.Identifier, Error: err.Error(),
					})
				}
				mu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = submitErr
		}
	}
	wg.Wait()

	// Only batches the uploader actually received count as uploaded;
	// batches never dispatched (cancellation) stay out of every tally.
	for i, batch := range batches {
		switch {
		case !dispatched[i]:
			res.Skipped += len(batch)
		case errs[i] == nil:
			res.Processed += len(batch)
		}
	}
	summary.Uploaded = res.Processed
	summary.addStage(res)

	for _, err := range errs {
		if err != nil && pipeerr.IsFatal(err) {
			return err
		}
	}
	if p.cfg.Run.FailureThreshold > 0 && res.Failed >= p.cfg.Run.FailureThreshold {
		return pipeerr.Newf(pipeerr.KindRunAborted,
			"failure threshold reached in stage %s (%d failed)", stage.NameUpload, res.Failed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Info("stage completed",
		slog.String("stage", stage.NameUpload),
		slog.Int("uploaded", res.Processed),
		slog.Int("failed", res.Failed))
	return nil
}

// copyFile is used to commit downloader scratch output into the cache; the
// scratch dir may live on a different filesystem, so rename is not an option.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
