package imgvec

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/imgvec/codec"
	"github.com/hupe1980/imgvec/index"
	"github.com/hupe1980/imgvec/index/flat"
	"github.com/hupe1980/imgvec/index/hnsw"
)

// Metric selects the distance metric of a DB. It is fixed at creation time
// and recorded in persisted snapshots.
type Metric int

const (
	// Euclidean is the squared L2 distance.
	Euclidean Metric = iota

	// Cosine is 1 - cosine similarity, so lower is always better and the
	// sort order is uniform across metrics.
	Cosine
)

// String returns a string representation of the Metric.
func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "euclidean"
	case Cosine:
		return "cosine"
	default:
		return "unknown"
	}
}

func (m Metric) distanceType() index.DistanceType {
	if m == Cosine {
		return index.DistanceTypeCosine
	}
	return index.DistanceTypeSquaredL2
}

// Metadata is an opaque key-value mapping attached to an entry, e.g. the
// source location of the image.
type Metadata map[string]string

// Entry is a labeled vector for bulk insertion.
type Entry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// SearchResult is a single ranked search hit.
type SearchResult struct {
	// ID is the identifier of the matched entry.
	ID string

	// Distance between the query and the matched vector. Lower is better
	// for both metrics.
	Distance float32

	// Rank is the zero-based position in the result list.
	Rank int
}

// BulkInsertFailure names a single entry that failed validation during a
// bulk insert.
type BulkInsertFailure struct {
	ID  string
	Err error
}

// BulkInsertResult reports per-item outcomes of a bulk insert.
type BulkInsertResult struct {
	Succeeded int
	Failures  []BulkInsertFailure
}

// Failed returns the number of entries that could not be inserted.
func (r *BulkInsertResult) Failed() int {
	return len(r.Failures)
}

// DB is an embedded vector database mapping string identifiers to
// fixed-dimension embeddings.
//
// A DB supports one writer and many concurrent readers: searches run
// concurrently with each other and with ongoing inserts, and never observe a
// partially written vector.
type DB struct {
	dimension int
	metric    Metric
	kind      IndexKind
	efSearch  int

	metrics MetricsCollector
	logger  *Logger
	codec   codec.Codec

	closed atomic.Bool

	mu         sync.RWMutex
	idx        index.Index
	internal   map[string]uint32 // identifier -> live internal node id
	external   map[uint32]string // live internal node id -> identifier
	meta       map[string]Metadata
	tombstones *roaring.Bitmap // internal ids replaced by upsert or deleted
}

// New creates a new DB with the given vector dimension and distance metric.
// The index kind defaults to the exact flat index; pass WithHNSW to opt into
// approximate search.
func New(dimension int, metric Metric, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)

	idx, err := newIndex(dimension, metric, opts)
	if err != nil {
		return nil, translateError(err)
	}

	return &DB{
		dimension:  dimension,
		metric:     metric,
		kind:       opts.kind,
		efSearch:   opts.efSearch,
		metrics:    opts.metricsCollector,
		logger:     opts.logger,
		codec:      opts.codec,
		idx:        idx,
		internal:   make(map[string]uint32),
		external:   make(map[uint32]string),
		meta:       make(map[string]Metadata),
		tombstones: roaring.New(),
	}, nil
}

func newIndex(dimension int, metric Metric, opts options) (index.Index, error) {
	switch opts.kind {
	case IndexHNSW:
		return hnsw.New(func(o *hnsw.Options) {
			for _, fn := range opts.hnswOptions {
				fn(o)
			}
			// Dimension and metric are fixed by the DB handle, not tunable.
			o.Dimension = dimension
			o.DistanceType = metric.distanceType()
		})
	default:
		return flat.New(func(o *flat.Options) {
			o.Dimension = dimension
			o.DistanceType = metric.distanceType()
		})
	}
}

// Dimension returns the fixed vector dimension.
func (d *DB) Dimension() int { return d.dimension }

// Metric returns the distance metric fixed at creation time.
func (d *DB) Metric() Metric { return d.metric }

// Kind returns the configured index kind.
func (d *DB) Kind() IndexKind { return d.kind }

// Insert adds a labeled vector. Inserting an existing identifier replaces
// its vector and metadata (upsert), never duplicates.
func (d *DB) Insert(ctx context.Context, id string, vector []float32, metadata Metadata) error {
	start := time.Now()

	err := d.insert(id, vector, metadata)

	d.metrics.RecordInsert(time.Since(start), err)
	d.logger.LogInsert(ctx, id, len(vector), err)

	return err
}

// Upsert implements ingest.Sink. It is Insert under the name the ingestion
// pipeline expects.
func (d *DB) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]string) error {
	return d.Insert(ctx, id, embedding, metadata)
}

func (d *DB) insert(id string, vector []float32, metadata Metadata) error {
	if d.closed.Load() {
		return ErrClosed
	}

	if len(vector) != d.dimension {
		return &ErrDimensionMismatch{Expected: d.dimension, Actual: len(vector)}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	internalID, err := d.idx.Insert(vector)
	if err != nil {
		return translateError(err)
	}

	if old, ok := d.internal[id]; ok {
		d.tombstones.Add(old)
		delete(d.external, old)
	}

	d.internal[id] = internalID
	d.external[internalID] = id
	d.meta[id] = metadata

	return nil
}

// BulkInsert inserts many entries. Failures are reported per item and never
// abort the batch; all valid entries are queryable afterwards.
func (d *DB) BulkInsert(ctx context.Context, entries []Entry) *BulkInsertResult {
	start := time.Now()

	var result BulkInsertResult

	for _, entry := range entries {
		if err := d.insert(entry.ID, entry.Vector, entry.Metadata); err != nil {
			result.Failures = append(result.Failures, BulkInsertFailure{ID: entry.ID, Err: err})

			continue
		}

		result.Succeeded++
	}

	d.metrics.RecordBulkInsert(len(entries), result.Failed(), time.Since(start))
	d.logger.LogBulkInsert(ctx, len(entries), result.Failed())

	return &result
}

// Search returns the k nearest entries to the query vector, sorted by
// ascending distance with ties broken by ascending identifier. The result
// holds min(k, Count()) entries.
func (d *DB) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	start := time.Now()

	results, err := d.search(query, k)

	d.metrics.RecordSearch(k, time.Since(start), err)
	d.logger.LogSearch(ctx, k, len(results), err)

	return results, err
}

func (d *DB) search(query []float32, k int) ([]SearchResult, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}

	if k <= 0 {
		return nil, ErrInvalidK
	}

	if len(query) != d.dimension {
		return nil, &ErrDimensionMismatch{Expected: d.dimension, Actual: len(query)}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	filter := func(id uint32) bool {
		return !d.tombstones.Contains(id)
	}

	hits, err := d.idx.KNNSearch(query, k, d.efSearch, filter)
	if err != nil {
		return nil, translateError(err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		id, ok := d.external[hit.ID]
		if !ok {
			continue
		}

		results = append(results, SearchResult{ID: id, Distance: hit.Distance})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	// Indexes admit candidates tied with the k-th distance; the tie is
	// broken here by identifier, then trimmed back to k.
	if len(results) > k {
		results = results[:k]
	}

	for i := range results {
		results[i].Rank = i
	}

	return results, nil
}

// Delete removes an entry. Deleting an absent identifier is a no-op, not an
// error.
func (d *DB) Delete(ctx context.Context, id string) error {
	start := time.Now()

	err := d.delete(id)

	d.metrics.RecordDelete(time.Since(start), err)
	d.logger.LogDelete(ctx, id, err)

	return err
}

func (d *DB) delete(id string) error {
	if d.closed.Load() {
		return ErrClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	internalID, ok := d.internal[id]
	if !ok {
		return nil
	}

	d.tombstones.Add(internalID)
	delete(d.internal, id)
	delete(d.external, internalID)
	delete(d.meta, id)

	return nil
}

// Metadata returns the metadata stored for an identifier.
func (d *DB) Metadata(id string) (Metadata, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.meta[id]
	if !ok {
		return nil, ErrNotFound
	}

	return m, nil
}

// Count returns the number of live entries.
func (d *DB) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.internal)
}

// Close marks the DB closed. Subsequent operations return ErrClosed.
// Close is idempotent.
func (d *DB) Close() error {
	d.closed.Store(true)

	return nil
}

// entries returns a sorted snapshot of all live entries, used by
// persistence.
func (d *DB) entries() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Entry, 0, len(d.internal))

	for id, internalID := range d.internal {
		vector, ok := d.idx.Vector(internalID)
		if !ok {
			continue
		}

		out = append(out, Entry{ID: id, Vector: vector, Metadata: d.meta[id]})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}
