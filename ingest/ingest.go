// Package ingest turns a corpus of images into indexed embeddings.
//
// A Pipeline pulls items from a corpus.Source, runs them through an
// extractor.Extractor on a bounded worker pool and upserts the resulting
// embeddings into a Sink. Individual item failures are collected; they do not
// abort the run.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/imgvec/corpus"
	"github.com/hupe1980/imgvec/extractor"
)

// Sink receives extracted embeddings. *imgvec.DB satisfies it.
type Sink interface {
	Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]string) error
}

// Failure records a single item that could not be ingested.
type Failure struct {
	ID  string
	Err error
}

// Result summarizes an ingestion run.
type Result struct {
	Succeeded int
	Failures  []Failure
}

// Failed returns the number of items that could not be ingested.
func (r *Result) Failed() int {
	return len(r.Failures)
}

// Options for the ingestion pipeline.
type Options struct {
	// Concurrency bounds the number of in-flight extractions.
	Concurrency int

	// Logger for per-item warnings. Defaults to a discarding logger.
	Logger *slog.Logger
}

// DefaultOptions are the recommended defaults.
var DefaultOptions = Options{
	Concurrency: 4,
}

// Pipeline ingests a corpus into a sink.
type Pipeline struct {
	extractor extractor.Extractor
	sink      Sink
	opts      Options
}

// New creates a new ingestion pipeline.
func New(e extractor.Extractor, sink Sink, optFns ...func(o *Options)) *Pipeline {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Pipeline{
		extractor: e,
		sink:      sink,
		opts:      opts,
	}
}

// Run drains the source and ingests every item. It returns the collected
// per-item failures alongside the success count. A non-nil error is only
// returned when the run as a whole could not proceed, e.g. the source failed
// or the context was canceled.
func (p *Pipeline) Run(ctx context.Context, src corpus.Source) (*Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	var (
		mu     sync.Mutex
		result Result
		srcErr error
	)

	for {
		item, err := src.Next(gctx)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			srcErr = err

			break
		}

		g.Go(func() error {
			if err := p.ingestOne(gctx, item); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}

				p.opts.Logger.WarnContext(gctx, "ingest item failed",
					"id", item.ID,
					"error", err,
				)

				mu.Lock()
				result.Failures = append(result.Failures, Failure{ID: item.ID, Err: err})
				mu.Unlock()

				return nil
			}

			mu.Lock()
			result.Succeeded++
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &result, err
	}

	if srcErr != nil {
		return &result, srcErr
	}

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].ID < result.Failures[j].ID
	})

	p.opts.Logger.InfoContext(ctx, "ingest run completed",
		"succeeded", result.Succeeded,
		"failed", result.Failed(),
	)

	return &result, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, item corpus.Item) error {
	embedding, err := p.extractor.Embed(ctx, item.Data)
	if err != nil {
		return err
	}

	return p.sink.Upsert(ctx, item.ID, embedding, item.Metadata)
}
