// Package metric provides distance and similarity functions for float32 vectors.
//
// All functions that compare two vectors return an error when the vector
// sizes do not match. Distances are always minimized for best matches:
// CosineDistance is defined as 1 - cosine similarity so that callers can
// sort results ascending regardless of the configured metric.
package metric

import (
	"errors"
	"math"
)

// ErrSizeMismatch is returned when two vectors have different lengths.
var ErrSizeMismatch = errors.New("vector sizes do not match")

// Dot calculates the dot product of two float32 slices.
// Assumes vectors are the same length (caller's responsibility).
func Dot(v1, v2 []float32) float32 {
	var sum float32
	for i := range v1 {
		sum += v1[i] * v2[i]
	}
	return sum
}

// Magnitude calculates the magnitude (length) of a float32 slice.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// SquaredL2 calculates the squared L2 distance between two float32 slices.
func SquaredL2(v1, v2 []float32) (float32, error) {
	// Check if the vector sizes match
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}

	var sum float32
	for i := range v1 {
		d := v1[i] - v2[i]
		sum += d * d
	}

	return sum, nil
}

// CosineSimilarity calculates the cosine similarity between two float32 slices.
func CosineSimilarity(v1, v2 []float32) (float32, error) {
	// Check if the vector sizes match
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}

	dotProduct := Dot(v1, v2)
	magnitudeA := Magnitude(v1)
	magnitudeB := Magnitude(v2)

	// Avoid division by zero
	if magnitudeA == 0 || magnitudeB == 0 {
		return 0, nil
	}

	return dotProduct / (magnitudeA * magnitudeB), nil
}

// CosineDistance calculates 1 - cosine similarity, so that a smaller value
// always means a better match and sort order stays uniform across metrics.
func CosineDistance(v1, v2 []float32) (float32, error) {
	sim, err := CosineSimilarity(v1, v2)
	if err != nil {
		return 0, err
	}

	return 1 - sim, nil
}

// NormalizeL2 returns an L2-normalized copy of v.
// Returns false if v has zero L2 norm.
func NormalizeL2(v []float32) ([]float32, bool) {
	norm := Magnitude(v)
	if norm == 0 {
		return nil, false
	}

	out := make([]float32, len(v))
	inv := 1 / norm
	for i, x := range v {
		out[i] = x * inv
	}

	return out, true
}
