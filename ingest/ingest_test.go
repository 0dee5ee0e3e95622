package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/imgvec/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcExtractor struct {
	dimension int
	embed     func(ctx context.Context, image []byte) ([]float32, error)
}

func (f *funcExtractor) Embed(ctx context.Context, image []byte) ([]float32, error) {
	return f.embed(ctx, image)
}

func (f *funcExtractor) Dimension() int { return f.dimension }
func (f *funcExtractor) Name() string   { return "func" }

type memorySink struct {
	mu         sync.Mutex
	embeddings map[string][]float32
	err        error
}

func newMemorySink() *memorySink {
	return &memorySink{embeddings: make(map[string][]float32)}
}

func (s *memorySink) Upsert(_ context.Context, id string, embedding []float32, _ map[string]string) error {
	if s.err != nil {
		return s.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings[id] = embedding

	return nil
}

func testItems(n int) []corpus.Item {
	items := make([]corpus.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, corpus.Item{
			ID:   fmt.Sprintf("img-%03d", i),
			Data: []byte{byte(i)},
		})
	}
	return items
}

func TestPipeline_Run(t *testing.T) {
	e := &funcExtractor{
		dimension: 2,
		embed: func(_ context.Context, image []byte) ([]float32, error) {
			return []float32{float32(image[0]), 1}, nil
		},
	}

	sink := newMemorySink()
	p := New(e, sink, func(o *Options) {
		o.Concurrency = 8
	})

	result, err := p.Run(context.Background(), corpus.NewSliceSource(testItems(50)))
	require.NoError(t, err)

	assert.Equal(t, 50, result.Succeeded)
	assert.Empty(t, result.Failures)
	assert.Len(t, sink.embeddings, 50)
	assert.Equal(t, []float32{7, 1}, sink.embeddings["img-007"])
}

func TestPipeline_CollectsItemFailures(t *testing.T) {
	extractErr := errors.New("malformed image")

	e := &funcExtractor{
		dimension: 1,
		embed: func(_ context.Context, image []byte) ([]float32, error) {
			if image[0]%10 == 3 {
				return nil, extractErr
			}
			return []float32{1}, nil
		},
	}

	sink := newMemorySink()
	p := New(e, sink)

	result, err := p.Run(context.Background(), corpus.NewSliceSource(testItems(30)))
	require.NoError(t, err)

	assert.Equal(t, 27, result.Succeeded)
	require.Equal(t, 3, result.Failed())

	// Failures are sorted by ID.
	assert.Equal(t, "img-003", result.Failures[0].ID)
	assert.Equal(t, "img-013", result.Failures[1].ID)
	assert.Equal(t, "img-023", result.Failures[2].ID)
	assert.ErrorIs(t, result.Failures[0].Err, extractErr)
}

func TestPipeline_SinkFailureIsPerItem(t *testing.T) {
	e := &funcExtractor{
		dimension: 1,
		embed: func(context.Context, []byte) ([]float32, error) {
			return []float32{1}, nil
		},
	}

	sink := newMemorySink()
	sink.err = errors.New("sink unavailable")

	p := New(e, sink)

	result, err := p.Run(context.Background(), corpus.NewSliceSource(testItems(5)))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 5, result.Failed())
}

func TestPipeline_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})

	e := &funcExtractor{
		dimension: 1,
		embed: func(ctx context.Context, _ []byte) ([]float32, error) {
			select {
			case <-release:
				return []float32{1}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}

	sink := newMemorySink()
	p := New(e, sink, func(o *Options) {
		o.Concurrency = 2
	})

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, err := p.Run(ctx, corpus.NewSliceSource(testItems(100)))
		assert.ErrorIs(t, err, context.Canceled)
	}()

	cancel()
	<-done
}

type failingSource struct {
	after int
	seen  int
}

func (f *failingSource) Next(_ context.Context) (corpus.Item, error) {
	if f.seen >= f.after {
		return corpus.Item{}, errors.New("listing failed")
	}

	f.seen++

	return corpus.Item{ID: fmt.Sprintf("img-%d", f.seen), Data: []byte{1}}, nil
}

func (f *failingSource) Reset() error {
	f.seen = 0
	return nil
}

func TestPipeline_SourceFailureAbortsRun(t *testing.T) {
	e := &funcExtractor{
		dimension: 1,
		embed: func(context.Context, []byte) ([]float32, error) {
			return []float32{1}, nil
		},
	}

	sink := newMemorySink()
	p := New(e, sink)

	result, err := p.Run(context.Background(), &failingSource{after: 3})
	require.Error(t, err)
	assert.Equal(t, 3, result.Succeeded)
}
