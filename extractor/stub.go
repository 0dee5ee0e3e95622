package extractor

import (
	"context"
	"hash/fnv"
	"math/rand"
)

// Compile-time interface check.
var _ Extractor = (*StubExtractor)(nil)

// StubExtractor is a deterministic test double. It derives a fixed vector
// from a hash of the preprocessed pixels, so identical images always embed
// to identical vectors without a model in the loop.
type StubExtractor struct {
	dimension  int
	preprocess PreprocessOptions
}

// NewStubExtractor creates a stub producing vectors of the given dimension.
func NewStubExtractor(dimension int) *StubExtractor {
	return &StubExtractor{
		dimension:  dimension,
		preprocess: DefaultPreprocessOptions,
	}
}

// Name identifies the extractor.
func (e *StubExtractor) Name() string { return "stub" }

// Dimension returns the vector dimensionality.
func (e *StubExtractor) Dimension() int { return e.dimension }

// Embed runs the shared preprocessing path and derives a deterministic
// pseudo-random vector from the pixel content.
func (e *StubExtractor) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewExtractionError("canceled", true, err)
	}

	tensor, err := Preprocess(image, e.preprocess)
	if err != nil {
		return nil, err
	}

	h := fnv.New64a()
	for _, v := range tensor.Data {
		h.Write([]byte{byte(v * 255)})
	}

	r := rand.New(rand.NewSource(int64(h.Sum64()))) // nolint gosec

	vec := make([]float32, e.dimension)
	for i := range vec {
		vec[i] = r.Float32()
	}

	return vec, nil
}
