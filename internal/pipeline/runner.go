package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/corpusworks/ingest/pkg/filedata"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

// item tracks one artifact's state as it moves through the stages.
type item struct {
	fd filedata.FileData

	rawPath string // download output
	rawHash string

	elementsPath string // latest partition/chunk/embed output
	elementsHash string

	stagedPath string // upload_stage output, empty when the stage is skipped
}

// uploadPath is what the uploader receives: the staged artifact when a
// stager ran, the embedded elements file otherwise.
func (it item) uploadPath() string {
	if it.stagedPath != "" {
		return it.stagedPath
	}
	return it.elementsPath
}

// stageFunc processes one artifact and returns zero or more downstream
// items. hit reports that the work was satisfied entirely from cache.
type stageFunc func(ctx context.Context, it item) (out []item, hit bool, err error)

// runStage fans items over a worker pool of the given size. Worker failures
// are isolated: one artifact's error drops only that artifact. A fatal error
// or the failure threshold stops dispatch of new work while in-flight
// workers finish.
func (p *Pipeline) runStage(ctx context.Context, name string, workers int, in []item, fn stageFunc) ([]item, StageResult, []Failure, error) {
	result := StageResult{Name: name}
	if len(in) == 0 {
		return nil, result, nil, nil
	}
	if workers < 1 {
		workers = 1
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, result, nil, err
	}
	defer pool.Release()

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	outs := make([][]item, len(in))
	hits := make([]bool, len(in))
	errs := make([]error, len(in))
	dispatched := make([]bool, len(in))

	var (
		wg       sync.WaitGroup
		failed   atomic.Int32
		fatalErr atomic.Value
	)

	for i, it := range in {
		if dispatchCtx.Err() != nil {
			break
		}
		dispatched[i] = true

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			err := retryTransient(dispatchCtx, p.logger, func() error {
				out, hit, err := fn(dispatchCtx, it)
				if err != nil {
					return err
				}
				outs[i] = out
				hits[i] = hit
				return nil
			})
			if err == nil {
				return
			}

			errs[i] = err
			if pipeerr.IsFatal(err) {
				fatalErr.CompareAndSwap(nil, err)
				stopDispatch()
				return
			}

			n := failed.Add(1)
			p.logger.Error("artifact failed",
				slog.String("stage", name),
				slog.String("identifier", it.fd.Identifier),
				slog.String("error", err.Error()))
			if p.cfg.Run.FailureThreshold > 0 && int(n) >= p.cfg.Run.FailureThreshold {
				stopDispatch()
			}
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = submitErr
		}
	}
	wg.Wait()

	var survivors []item
	var failures []Failure
	for i := range in {
		switch {
		case !dispatched[i]:
			result.Skipped++
		case errs[i] != nil:
			if !pipeerr.IsFatal(errs[i]) {
				result.Failed++
				failures = append(failures, Failure{
					Stage:      name,
					Identifier: in[i].fd.Identifier,
					Error:      errs[i].Error(),
				})
			}
		case outs[i] != nil || hits[i]:
			if hits[i] {
				result.CacheHits++
			} else {
				result.Processed++
			}
			survivors = append(survivors, outs[i]...)
		}
	}

	if v := fatalErr.Load(); v != nil {
		return survivors, result, failures, v.(error)
	}
	if p.cfg.Run.FailureThreshold > 0 && int(failed.Load()) >= p.cfg.Run.FailureThreshold {
		return survivors, result, failures, pipeerr.Newf(pipeerr.KindRunAborted,
			"failure threshold reached in stage %s (%d failed)", name, failed.Load())
	}
	if err := ctx.Err(); err != nil {
		return survivors, result, failures, err
	}
	return survivors, result, failures, nil
}
