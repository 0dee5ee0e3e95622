package imgvec_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/hupe1980/imgvec"
	"github.com/hupe1980/imgvec/blobstore"
	"github.com/hupe1980/imgvec/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSnapshotDB(t *testing.T, optFns ...imgvec.Option) *imgvec.DB {
	t.Helper()

	ctx := context.Background()

	db, err := imgvec.New(4, imgvec.Euclidean, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Insert(ctx, "a", []float32{0, 0, 0, 0}, imgvec.Metadata{"source": "cam-1"}))
	require.NoError(t, db.Insert(ctx, "b", []float32{1, 0, 0, 0}, nil))
	require.NoError(t, db.Insert(ctx, "c", []float32{5, 5, 5, 5}, imgvec.Metadata{"source": "cam-2"}))

	return db
}

func assertRestored(t *testing.T, db *imgvec.DB) {
	t.Helper()

	ctx := context.Background()

	assert.Equal(t, 3, db.Count())
	assert.Equal(t, 4, db.Dimension())
	assert.Equal(t, imgvec.Euclidean, db.Metric())

	results, err := db.Search(ctx, []float32{0, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)

	meta, err := db.Metadata("c")
	require.NoError(t, err)
	assert.Equal(t, "cam-2", meta["source"])
}

func TestSnapshot_WriterRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := seedSnapshotDB(t)

	var buf bytes.Buffer
	require.NoError(t, db.SaveToWriter(ctx, &buf))

	restored, err := imgvec.LoadFromReader(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer restored.Close()

	assertRestored(t, restored)
}

func TestSnapshot_FileRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := seedSnapshotDB(t)

	path := filepath.Join(t.TempDir(), "index.ivs")
	require.NoError(t, db.SaveToFile(ctx, path))

	restored, err := imgvec.LoadFromFile(ctx, path)
	require.NoError(t, err)
	defer restored.Close()

	assertRestored(t, restored)
}

func TestSnapshot_StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := seedSnapshotDB(t)

	store := blobstore.NewMemoryStore()
	require.NoError(t, db.SaveToStore(ctx, store, "snapshots/index.ivs"))

	restored, err := imgvec.LoadFromStore(ctx, store, "snapshots/index.ivs")
	require.NoError(t, err)
	defer restored.Close()

	assertRestored(t, restored)
}

func TestSnapshot_CompressedCodecRoundTrip(t *testing.T) {
	ctx := context.Background()

	zc, err := codec.NewZstd(codec.GoJSON{})
	require.NoError(t, err)

	db := seedSnapshotDB(t, imgvec.WithCodec(zc))

	var buf bytes.Buffer
	require.NoError(t, db.SaveToWriter(ctx, &buf))

	// The codec name travels inside the snapshot, so the loader needs no
	// codec option.
	restored, err := imgvec.LoadFromReader(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer restored.Close()

	assertRestored(t, restored)
}

func TestSnapshot_LoadIntoHNSW(t *testing.T) {
	ctx := context.Background()
	db := seedSnapshotDB(t)

	var buf bytes.Buffer
	require.NoError(t, db.SaveToWriter(ctx, &buf))

	restored, err := imgvec.LoadFromReader(ctx, bytes.NewReader(buf.Bytes()), imgvec.WithHNSW())
	require.NoError(t, err)
	defer restored.Close()

	assert.Equal(t, imgvec.IndexHNSW, restored.Kind())
	assertRestored(t, restored)
}

func TestSnapshot_SkipsDeletedEntries(t *testing.T) {
	ctx := context.Background()
	db := seedSnapshotDB(t)

	require.NoError(t, db.Delete(ctx, "b"))

	var buf bytes.Buffer
	require.NoError(t, db.SaveToWriter(ctx, &buf))

	restored, err := imgvec.LoadFromReader(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer restored.Close()

	assert.Equal(t, 2, restored.Count())

	_, err = restored.Metadata("b")
	assert.ErrorIs(t, err, imgvec.ErrNotFound)
}

func TestSnapshot_BadMagic(t *testing.T) {
	ctx := context.Background()
	db := seedSnapshotDB(t)

	var buf bytes.Buffer
	require.NoError(t, db.SaveToWriter(ctx, &buf))

	data := buf.Bytes()
	data[0] = 'X'

	_, err := imgvec.LoadFromReader(ctx, bytes.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad magic")
}

func TestSnapshot_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	db := seedSnapshotDB(t)

	var buf bytes.Buffer
	require.NoError(t, db.SaveToWriter(ctx, &buf))

	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF

	_, err := imgvec.LoadFromReader(ctx, bytes.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestSnapshot_OversizedPayloadLength(t *testing.T) {
	ctx := context.Background()
	db := seedSnapshotDB(t)

	var buf bytes.Buffer
	require.NoError(t, db.SaveToWriter(ctx, &buf))

	// Corrupt the payload length field; the loader must reject it before
	// allocating.
	data := buf.Bytes()
	off := 24 + int(binary.LittleEndian.Uint16(data[6:8]))
	binary.LittleEndian.PutUint64(data[off:off+8], 1<<62)

	_, err := imgvec.LoadFromReader(ctx, bytes.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload too large")
}

func TestSnapshot_Truncated(t *testing.T) {
	ctx := context.Background()
	db := seedSnapshotDB(t)

	var buf bytes.Buffer
	require.NoError(t, db.SaveToWriter(ctx, &buf))

	data := buf.Bytes()

	_, err := imgvec.LoadFromReader(ctx, bytes.NewReader(data[:len(data)/2]))
	require.Error(t, err)
}

func TestSnapshot_SaveClosed(t *testing.T) {
	ctx := context.Background()
	db := seedSnapshotDB(t)

	require.NoError(t, db.Close())

	var buf bytes.Buffer
	assert.ErrorIs(t, db.SaveToWriter(ctx, &buf), imgvec.ErrClosed)
}
