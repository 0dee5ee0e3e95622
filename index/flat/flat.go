// Package flat provides an exact brute-force index for vector storage and search.
//
// Every query computes the distance to every stored vector, which is O(N*D)
// and therefore only acceptable up to roughly tens of thousands of entries.
// Beyond that, use index/hnsw and accept a small, bounded recall loss.
package flat

import (
	"container/heap"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/imgvec/index"
	"github.com/hupe1980/imgvec/queue"
)

// Compile-time check to ensure Flat satisfies the index interface.
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// It must be > 0 and is enforced for all inserts and searches.
	Dimension int

	// DistanceType represents the type of distance function used for calculating distances between vectors.
	DistanceType index.DistanceType
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Dimension:    0,
	DistanceType: index.DistanceTypeSquaredL2,
}

// indexState holds the immutable state of the index for lock-free reads.
type indexState struct {
	vectors [][]float32
}

// Flat represents a flat index for vector storage and search.
// It uses a copy-on-write pattern for lock-free concurrent reads:
// readers always observe either the pre- or post-insert state, never a
// partially written vector.
type Flat struct {
	state        atomic.Value // holds *indexState
	writeMu      sync.Mutex   // Serializes writes only
	distanceFunc index.DistanceFunc
	opts         Options
}

// New creates a new instance of the flat index.
// Dimension must be set at creation time.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := index.ValidateOptions(opts.Dimension, opts.DistanceType); err != nil {
		return nil, err
	}

	f := &Flat{
		distanceFunc: index.NewDistanceFunc(opts.DistanceType),
		opts:         opts,
	}

	f.state.Store(&indexState{vectors: make([][]float32, 0)})

	return f, nil
}

// Name returns the index kind name.
func (*Flat) Name() string { return "Flat" }

// Dimension returns the fixed vector dimensionality of the index.
func (f *Flat) Dimension() int { return f.opts.Dimension }

// Len returns the number of stored vectors.
func (f *Flat) Len() int { return len(f.getState().vectors) }

// getState returns the current immutable state (lock-free read).
func (f *Flat) getState() *indexState {
	return f.state.Load().(*indexState)
}

// Insert adds a vector to the index and returns its internal node id.
func (f *Flat) Insert(v []float32) (uint32, error) {
	if len(v) != f.opts.Dimension {
		return 0, &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(v)}
	}

	// Copy so later mutations by the caller cannot affect the stored vector.
	vectorCopy := make([]float32, len(v))
	copy(vectorCopy, v)

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	oldState := f.getState()
	id := uint32(len(oldState.vectors))

	newVectors := make([][]float32, len(oldState.vectors), len(oldState.vectors)+1)
	copy(newVectors, oldState.vectors)
	newVectors = append(newVectors, vectorCopy)

	f.state.Store(&indexState{vectors: newVectors})

	return id, nil
}

// Vector returns the stored vector for the given node id.
func (f *Flat) Vector(id uint32) ([]float32, bool) {
	st := f.getState()
	if int(id) >= len(st.vectors) {
		return nil, false
	}

	return st.vectors[id], true
}

// KNNSearch performs a K-nearest neighbor search.
// The flat index is exact, so this is identical to BruteSearch; efSearch is ignored.
func (f *Flat) KNNSearch(q []float32, k int, efSearch int, filter index.FilterFunc) ([]index.SearchResult, error) {
	return f.BruteSearch(q, k, filter)
}

// BruteSearch performs an exact brute-force search over all stored vectors.
//
// Candidates tied with the k-th distance are all admitted, so the result may
// hold more than k entries; callers break the tie and trim.
func (f *Flat) BruteSearch(q []float32, k int, filter index.FilterFunc) ([]index.SearchResult, error) {
	if len(q) != f.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(q)}
	}

	st := f.getState()

	// Max-heap of the best k candidates seen so far.
	topCandidates := &queue.PriorityQueue{Order: true}
	heap.Init(topCandidates)

	for id, v := range st.vectors {
		if filter != nil && !filter(uint32(id)) {
			continue
		}

		dist, err := f.distanceFunc(q, v)
		if err != nil {
			return nil, err
		}

		if topCandidates.Len() < k {
			heap.Push(topCandidates, &queue.PriorityQueueItem{Node: uint32(id), Distance: dist})
			continue
		}

		largest, _ := topCandidates.Top().(*queue.PriorityQueueItem)
		if dist < largest.Distance {
			heap.Pop(topCandidates)
			heap.Push(topCandidates, &queue.PriorityQueueItem{Node: uint32(id), Distance: dist})
		}
	}

	if topCandidates.Len() == 0 {
		return nil, nil
	}

	// The heap's maximum is the k-th distance. Rescan collecting everything
	// at or below it, so boundary ties are never dropped by heap eviction
	// order.
	largest, _ := topCandidates.Top().(*queue.PriorityQueueItem)
	kth := largest.Distance

	results := make([]index.SearchResult, 0, topCandidates.Len())
	for id, v := range st.vectors {
		if filter != nil && !filter(uint32(id)) {
			continue
		}

		dist, err := f.distanceFunc(q, v)
		if err != nil {
			return nil, err
		}

		if dist <= kth {
			results = append(results, index.SearchResult{ID: uint32(id), Distance: dist})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}
