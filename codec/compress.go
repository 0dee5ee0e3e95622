package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Zstd wraps another codec and compresses its output with zstd.
//
// Snapshots of large embedding sets compress well: float32 JSON is highly
// redundant, and zstd typically shrinks it by 4-6x.
type Zstd struct {
	inner Codec
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewZstd creates a Zstd codec wrapping inner. If inner is nil, Default is used.
func NewZstd(inner Codec) (*Zstd, error) {
	if inner == nil {
		inner = Default
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &Zstd{inner: inner, enc: enc, dec: dec}, nil
}

// Marshal encodes the value with the inner codec and compresses the result.
func (c *Zstd) Marshal(v any) ([]byte, error) {
	b, err := c.inner.Marshal(v)
	if err != nil {
		return nil, err
	}

	return c.enc.EncodeAll(b, make([]byte, 0, len(b)/2)), nil
}

// Unmarshal decompresses the data and decodes it with the inner codec.
func (c *Zstd) Unmarshal(data []byte, v any) error {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return err
	}

	return c.inner.Unmarshal(raw, v)
}

// Name returns the composite codec name, e.g. "go-json+zstd".
func (c *Zstd) Name() string { return c.inner.Name() + "+zstd" }

// LZ4 wraps another codec and compresses its output with the lz4 frame format.
//
// LZ4 trades ratio for speed; prefer it when snapshot load latency matters
// more than file size.
type LZ4 struct {
	Inner Codec
}

// Marshal encodes the value with the inner codec and compresses the result.
func (c LZ4) Marshal(v any) ([]byte, error) {
	b, err := c.codec().Marshal(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	w := lz4.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal decompresses the data and decodes it with the inner codec.
func (c LZ4) Unmarshal(data []byte, v any) error {
	raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return err
	}

	return c.codec().Unmarshal(raw, v)
}

// Name returns the composite codec name, e.g. "go-json+lz4".
func (c LZ4) Name() string { return c.codec().Name() + "+lz4" }

func (c LZ4) codec() Codec {
	if c.Inner == nil {
		return Default
	}

	return c.Inner
}
