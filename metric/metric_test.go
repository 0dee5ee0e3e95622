package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	t.Run("Distance", func(t *testing.T) {
		d, err := SquaredL2([]float32{0, 0, 0, 0}, []float32{1, 0, 0, 0})
		require.NoError(t, err)
		assert.Equal(t, float32(1), d)

		d, err = SquaredL2([]float32{1, 2, 3}, []float32{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, float32(0), d)
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		_, err := SquaredL2([]float32{1, 2}, []float32{1, 2, 3})
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})
}

func TestCosineDistance(t *testing.T) {
	t.Run("Identical", func(t *testing.T) {
		d, err := CosineDistance([]float32{1, 2, 3}, []float32{1, 2, 3})
		require.NoError(t, err)
		assert.InDelta(t, 0, d, 1e-6)
	})

	t.Run("Orthogonal", func(t *testing.T) {
		d, err := CosineDistance([]float32{1, 0}, []float32{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 1, d, 1e-6)
	})

	t.Run("Opposite", func(t *testing.T) {
		d, err := CosineDistance([]float32{1, 0}, []float32{-1, 0})
		require.NoError(t, err)
		assert.InDelta(t, 2, d, 1e-6)
	})

	t.Run("ZeroVector", func(t *testing.T) {
		// Zero magnitude yields zero similarity, not an error.
		d, err := CosineDistance([]float32{0, 0}, []float32{1, 0})
		require.NoError(t, err)
		assert.Equal(t, float32(1), d)
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		_, err := CosineDistance([]float32{1}, []float32{1, 2})
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})
}

func TestNormalizeL2(t *testing.T) {
	v, ok := NormalizeL2([]float32{3, 4})
	require.True(t, ok)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1, Magnitude(v), 1e-6)

	_, ok = NormalizeL2([]float32{0, 0})
	assert.False(t, ok)
}
