package imgvec

import (
	"log/slog"

	"github.com/hupe1980/imgvec/codec"
	"github.com/hupe1980/imgvec/index/hnsw"
)

// IndexKind selects the index structure backing a DB.
//
// This is an explicit exactness/approximation tradeoff:
//
//   - IndexFlat computes exact distances against every stored vector. Query
//     cost is O(N*D); fine below roughly tens of thousands of entries.
//   - IndexHNSW is an approximate graph index with sub-linear query cost and
//     a small, bounded recall loss. Use it beyond the flat threshold.
type IndexKind int

const (
	// IndexFlat is the exact brute-force index (default).
	IndexFlat IndexKind = iota

	// IndexHNSW is the approximate graph-based index.
	IndexHNSW
)

// String returns a string representation of the IndexKind.
func (k IndexKind) String() string {
	switch k {
	case IndexFlat:
		return "flat"
	case IndexHNSW:
		return "hnsw"
	default:
		return "unknown"
	}
}

type options struct {
	kind             IndexKind
	efSearch         int
	hnswOptions      []func(*hnsw.Options)
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures DB constructor/load behavior.
type Option func(*options)

// WithFlat selects the exact brute-force index. This is the default.
func WithFlat() Option {
	return func(o *options) {
		o.kind = IndexFlat
	}
}

// WithHNSW selects the approximate HNSW index and optionally tunes it.
//
// Example:
//
//	db, _ := imgvec.New(2048, imgvec.Euclidean, imgvec.WithHNSW(func(o *hnsw.Options) {
//	    o.M = 32
//	    o.EF = 400
//	}))
func WithHNSW(optFns ...func(*hnsw.Options)) Option {
	return func(o *options) {
		o.kind = IndexHNSW
		o.hnswOptions = optFns
	}
}

// WithEFSearch sets the default candidate list size for HNSW searches.
// Higher values improve recall but slow down search. Ignored by the flat
// index.
func WithEFSearch(efSearch int) Option {
	return func(o *options) {
		o.efSearch = efSearch
	}
}

// WithCodec configures the codec used for snapshot sections.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.
//
// Example with BasicMetricsCollector:
//
//	metrics := &imgvec.BasicMetricsCollector{}
//	db, _ := imgvec.New(2048, imgvec.Euclidean, imgvec.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
//
// Example with JSON logging:
//
//	logger := imgvec.NewJSONLogger(slog.LevelInfo)
//	db, _ := imgvec.New(2048, imgvec.Euclidean, imgvec.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		kind:             IndexFlat,
		efSearch:         100,
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
