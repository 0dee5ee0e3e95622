// Package corpus provides sources of raw images for ingestion.
//
// A Source is a lazy, finite, restartable iterator of (identifier, bytes)
// pairs. Ingestion streams items from a Source so a corpus never has to be
// materialized in memory.
package corpus

import (
	"context"
	"io"
)

// Item is a single enumerated image. It is ephemeral: nothing beyond the
// ingestion run that consumes it holds on to the raw bytes.
type Item struct {
	// ID uniquely identifies the image, e.g. a path or object key.
	ID string

	// Data is the raw image payload.
	Data []byte

	// Metadata carries opaque source information (e.g. source location)
	// stored alongside the vector.
	Metadata map[string]string
}

// Source enumerates a corpus of images.
type Source interface {
	// Next returns the next item. It returns io.EOF when the corpus is
	// exhausted.
	Next(ctx context.Context) (Item, error)

	// Reset restarts the iteration from the beginning.
	Reset() error
}

// Compile-time interface check.
var _ Source = (*SliceSource)(nil)

// SliceSource serves items from an in-memory slice. Useful for tests and
// small corpora.
type SliceSource struct {
	items []Item
	pos   int
}

// NewSliceSource creates a Source over the given items.
func NewSliceSource(items []Item) *SliceSource {
	return &SliceSource{items: items}
}

// Next returns the next item or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}

	if s.pos >= len(s.items) {
		return Item{}, io.EOF
	}

	item := s.items[s.pos]
	s.pos++

	return item, nil
}

// Reset restarts the iteration.
func (s *SliceSource) Reset() error {
	s.pos = 0
	return nil
}
