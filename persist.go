package imgvec

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/imgvec/blobstore"
	"github.com/hupe1980/imgvec/codec"
	"github.com/hupe1980/imgvec/internal/hash"
)

var (
	snapshotMagic         = [4]byte{'I', 'V', 'S', '1'}
	snapshotFormatVersion = uint16(1)
)

// maxSnapshotPayload bounds the payload length accepted from a snapshot
// header, so a corrupt length field cannot drive allocation.
const maxSnapshotPayload = 4 << 30

// snapshotEntry is the persisted form of a single index entry.
type snapshotEntry struct {
	ID       string            `json:"id"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SaveToWriter writes a snapshot of the database to w.
//
// Format:
//  1. header: magic, format version, codec name length, dimension, metric,
//     entry count
//  2. codec name
//  3. payload length, CRC32C checksum
//  4. codec-marshaled entries (identifier -> vector, metadata)
//
// The snapshot is self-describing: the stored {dimension, metric} header and
// the entry mapping are sufficient to reconstruct the index without
// reprocessing raw images. The index structure itself is rebuilt on load.
func (d *DB) SaveToWriter(ctx context.Context, w io.Writer) error {
	if d.closed.Load() {
		return ErrClosed
	}

	c := d.codec
	if c == nil {
		c = codec.Default
	}

	codecName := c.Name()
	if len(codecName) > 0xFFFF {
		return fmt.Errorf("snapshot codec name too long: %d", len(codecName))
	}

	entries := d.entries()

	persisted := make([]snapshotEntry, 0, len(entries))
	for _, e := range entries {
		persisted = append(persisted, snapshotEntry{
			ID:       e.ID,
			Vector:   e.Vector,
			Metadata: e.Metadata,
		})
	}

	payload, err := c.Marshal(persisted)
	if err != nil {
		err = fmt.Errorf("failed to encode entries: %w", err)
		d.logger.LogSnapshot(ctx, "save", len(entries), err)

		return err
	}

	// Header (24 bytes + codec name)
	// [0:4]   magic
	// [4:6]   version
	// [6:8]   codec name len
	// [8:12]  dimension
	// [12:13] metric
	// [13:16] reserved
	// [16:24] entry count
	var hdr [24]byte
	copy(hdr[0:4], snapshotMagic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], snapshotFormatVersion)
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(len(codecName)))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(d.dimension))
	hdr[12] = byte(d.metric)
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(len(persisted)))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	if _, err := io.WriteString(w, codecName); err != nil {
		return err
	}

	var section [12]byte
	binary.LittleEndian.PutUint64(section[0:8], uint64(len(payload)))
	binary.LittleEndian.PutUint32(section[8:12], hash.CRC32C(payload))

	if _, err := w.Write(section[:]); err != nil {
		return err
	}

	if _, err := w.Write(payload); err != nil {
		return err
	}

	d.logger.LogSnapshot(ctx, "save", len(entries), nil)

	return nil
}

// SaveToFile writes a snapshot to path, atomically via a temp file.
func (d *DB) SaveToFile(ctx context.Context, path string) error {
	var buf bytes.Buffer
	if err := d.SaveToWriter(ctx, &buf); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// SaveToStore writes a snapshot blob to a blob store.
func (d *DB) SaveToStore(ctx context.Context, store blobstore.BlobStore, name string) error {
	var buf bytes.Buffer
	if err := d.SaveToWriter(ctx, &buf); err != nil {
		return err
	}

	return store.Put(ctx, name, buf.Bytes())
}

// LoadFromReader reconstructs a DB from a snapshot. The dimension and metric
// come from the snapshot header; options control the index kind and the rest
// of the configuration. The codec is resolved by the name stored in the
// header.
func LoadFromReader(ctx context.Context, r io.Reader, optFns ...Option) (*DB, error) {
	var hdr [24]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}

	if [4]byte(hdr[0:4]) != snapshotMagic {
		return nil, fmt.Errorf("unsupported snapshot format: bad magic")
	}

	if ver := binary.LittleEndian.Uint16(hdr[4:6]); ver != snapshotFormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format version: %d", ver)
	}

	codecNameLen := binary.LittleEndian.Uint16(hdr[6:8])
	dimension := int(binary.LittleEndian.Uint32(hdr[8:12]))
	metric := Metric(hdr[12])
	count := binary.LittleEndian.Uint64(hdr[16:24])

	codecName := make([]byte, codecNameLen)
	if _, err := io.ReadFull(r, codecName); err != nil {
		return nil, fmt.Errorf("failed to read snapshot codec name: %w", err)
	}

	c, ok := codec.ByName(string(codecName))
	if !ok {
		return nil, fmt.Errorf("unknown snapshot codec: %q", codecName)
	}

	var section [12]byte
	if _, err := io.ReadFull(r, section[:]); err != nil {
		return nil, fmt.Errorf("failed to read snapshot section header: %w", err)
	}

	payloadLen := binary.LittleEndian.Uint64(section[0:8])
	checksum := binary.LittleEndian.Uint32(section[8:12])

	// The length field is untrusted input; bound it before allocating.
	if payloadLen > maxSnapshotPayload {
		return nil, fmt.Errorf("snapshot payload too large: %d bytes", payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read snapshot payload: %w", err)
	}

	if actual := hash.CRC32C(payload); actual != checksum {
		return nil, fmt.Errorf("snapshot payload checksum mismatch: expected %08x, got %08x", checksum, actual)
	}

	var persisted []snapshotEntry
	if err := c.Unmarshal(payload, &persisted); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot entries: %w", err)
	}

	if uint64(len(persisted)) != count {
		return nil, fmt.Errorf("snapshot entry count mismatch: header says %d, payload holds %d", count, len(persisted))
	}

	db, err := New(dimension, metric, optFns...)
	if err != nil {
		return nil, err
	}

	for _, e := range persisted {
		if err := db.insert(e.ID, e.Vector, e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to restore entry %q: %w", e.ID, err)
		}
	}

	db.logger.LogSnapshot(ctx, "load", len(persisted), nil)

	return db, nil
}

// LoadFromFile reconstructs a DB from a snapshot file.
func LoadFromFile(ctx context.Context, path string, optFns ...Option) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadFromReader(ctx, f, optFns...)
}

// LoadFromStore reconstructs a DB from a snapshot blob. Mappable blobs
// (local store) are decoded without copying the file contents.
func LoadFromStore(ctx context.Context, store blobstore.BlobStore, name string, optFns ...Option) (*DB, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	data, err := blobstore.ReadAll(blob)
	if err != nil {
		return nil, err
	}

	return LoadFromReader(ctx, bytes.NewReader(data), optFns...)
}
