package flat

import (
	"sync"
	"testing"

	"github.com/hupe1980/imgvec/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, dimension int) *Flat {
	t.Helper()

	f, err := New(func(o *Options) {
		o.Dimension = dimension
	})
	require.NoError(t, err)

	return f
}

func TestFlat(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		_, err := New(func(o *Options) {
			o.Dimension = 0
		})
		assert.Error(t, err)
		assert.IsType(t, &index.ErrInvalidDimension{}, err)
	})

	t.Run("Insert", func(t *testing.T) {
		f := newTestIndex(t, 3)

		id, err := f.Insert([]float32{1.0, 2.0, 3.0})
		require.NoError(t, err)
		assert.Equal(t, uint32(0), id)

		// Test dimension mismatch error
		_, err = f.Insert([]float32{1.0, 2.0})
		assert.Error(t, err)
		assert.IsType(t, &index.ErrDimensionMismatch{}, err)
	})

	t.Run("InsertCopiesVector", func(t *testing.T) {
		f := newTestIndex(t, 2)

		v := []float32{1.0, 2.0}
		id, err := f.Insert(v)
		require.NoError(t, err)

		v[0] = 99

		stored, ok := f.Vector(id)
		require.True(t, ok)
		assert.Equal(t, float32(1.0), stored[0])
	})

	t.Run("BruteSearch", func(t *testing.T) {
		f := newTestIndex(t, 3)

		_, _ = f.Insert([]float32{1.0, 2.0, 3.0})
		_, _ = f.Insert([]float32{4.0, 5.0, 6.0})
		_, _ = f.Insert([]float32{7.0, 8.0, 9.0})

		results, err := f.BruteSearch([]float32{0.0, 0.0, 0.0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint32(0), results[0].ID)
		assert.Equal(t, uint32(1), results[1].ID)
		assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
	})

	t.Run("Filter", func(t *testing.T) {
		f := newTestIndex(t, 2)

		_, _ = f.Insert([]float32{0.0, 0.0})
		_, _ = f.Insert([]float32{1.0, 0.0})

		results, err := f.BruteSearch([]float32{0.0, 0.0}, 2, func(id uint32) bool {
			return id != 0
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint32(1), results[0].ID)
	})

	t.Run("KIsLargerThanIndex", func(t *testing.T) {
		f := newTestIndex(t, 2)

		_, _ = f.Insert([]float32{1.0, 0.0})

		results, err := f.BruteSearch([]float32{0.0, 0.0}, 10, nil)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("QueryDimensionMismatch", func(t *testing.T) {
		f := newTestIndex(t, 3)

		_, err := f.BruteSearch([]float32{0.0, 0.0}, 1, nil)
		assert.IsType(t, &index.ErrDimensionMismatch{}, err)
	})
}

func TestFlatConcurrent(t *testing.T) {
	f := newTestIndex(t, 4)

	var wg sync.WaitGroup

	// One writer, many readers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, err := f.Insert([]float32{float32(i), 0, 0, 0})
			require.NoError(t, err)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				results, err := f.BruteSearch([]float32{0, 0, 0, 0}, 5, nil)
				require.NoError(t, err)
				// Every observed vector must be complete.
				for _, r := range results {
					v, ok := f.Vector(r.ID)
					require.True(t, ok)
					require.Len(t, v, 4)
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 500, f.Len())
}
