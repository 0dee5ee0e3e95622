// Package index provides interfaces and types for vector search indexes.
//
// Two implementations exist: flat (exact brute-force search) and hnsw
// (approximate graph-based search). Which one to use is an explicit
// configuration choice made at creation time; see the package docs of
// index/flat and index/hnsw for the tradeoff.
package index

import (
	"fmt"

	"github.com/hupe1980/imgvec/metric"
)

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension is a named error type for an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

// Error returns the error message for an invalid dimension.
func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// DistanceFunc represents a function for calculating the distance between two vectors
type DistanceFunc func(v1, v2 []float32) (float32, error)

// DistanceType represents the type of distance function used for calculating distances between vectors.
type DistanceType int

// Constants representing different types of distance functions.
const (
	// DistanceTypeSquaredL2 is the squared euclidean distance.
	DistanceTypeSquaredL2 DistanceType = iota

	// DistanceTypeCosine is 1 - cosine similarity, so lower is always better.
	DistanceTypeCosine
)

// NewDistanceFunc returns a distance function based on the specified distance type.
func NewDistanceFunc(distanceType DistanceType) DistanceFunc {
	switch distanceType {
	case DistanceTypeSquaredL2:
		return metric.SquaredL2
	case DistanceTypeCosine:
		return metric.CosineDistance
	default:
		return nil
	}
}

// String returns a string representation of the DistanceType.
func (dt DistanceType) String() string {
	switch dt {
	case DistanceTypeSquaredL2:
		return "SquaredL2"
	case DistanceTypeCosine:
		return "Cosine"
	default:
		return "Unknown"
	}
}

// ValidateOptions validates dimension and distance type shared by all index kinds.
func ValidateOptions(dimension int, distanceType DistanceType) error {
	if dimension <= 0 {
		return &ErrInvalidDimension{Dimension: dimension}
	}

	if distanceType != DistanceTypeSquaredL2 && distanceType != DistanceTypeCosine {
		return fmt.Errorf("invalid distance type: %d", distanceType)
	}

	return nil
}

// SearchResult represents a search result.
type SearchResult struct {
	// ID is the internal node id of the search result.
	ID uint32

	// Distance is the distance between the query vector and the result vector.
	Distance float32
}

// FilterFunc decides whether an internal node id is eligible as a result.
// Used to hide tombstoned (replaced or deleted) nodes from searches.
type FilterFunc func(id uint32) bool

// Index represents an index for vector search.
//
// Implementations are safe for concurrent use by one writer and many readers;
// a search never observes a partially inserted vector.
type Index interface {
	// Insert adds a vector to the index and returns its internal node id.
	Insert(v []float32) (uint32, error)

	// KNNSearch performs a K-nearest neighbor search. For approximate
	// indexes efSearch controls the size of the candidate list; exact
	// indexes ignore it.
	KNNSearch(q []float32, k int, efSearch int, filter FilterFunc) ([]SearchResult, error)

	// BruteSearch performs an exact brute-force search.
	BruteSearch(q []float32, k int, filter FilterFunc) ([]SearchResult, error)

	// Vector returns the stored vector for an internal node id.
	Vector(id uint32) ([]float32, bool)

	// Dimension returns the fixed vector dimensionality of the index.
	Dimension() int

	// Len returns the number of nodes held by the index, including tombstones.
	Len() int
}
