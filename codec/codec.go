// Package codec centralizes snapshot and metadata encoding.
//
// Persisted bytes always record the codec name in their header, so changing
// the default codec never breaks existing snapshots: they are opened by
// selecting the codec by its stored name.
package codec

import (
	"fmt"
	"strings"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
//
// Composite names chain compression onto a base codec, e.g. "json+zstd"
// marshals with JSON and compresses the result with zstd.
func ByName(name string) (Codec, bool) {
	parts := strings.Split(name, "+")

	var c Codec

	switch parts[0] {
	case "json":
		c = JSON{}
	case "go-json":
		c = GoJSON{}
	default:
		return nil, false
	}

	for _, part := range parts[1:] {
		switch part {
		case "zstd":
			z, err := NewZstd(c)
			if err != nil {
				return nil, false
			}

			c = z
		case "lz4":
			c = LZ4{Inner: c}
		default:
			return nil, false
		}
	}

	return c, true
}

// MustMarshal is a helper for internal tests/benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
