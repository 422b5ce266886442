// Package compress implements the three chunk compression variants:
// identity, LZ4 frame, and byte-grouped LZ4 frame. The variant tag is
// the 1-byte value stored in a xorb chunk header.
package compress

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/xet-data/xetcas/internal/xerr"
)

// Variant identifies a chunk's compression scheme.
type Variant uint8

const (
	None             Variant = 0
	LZ4              Variant = 1
	ByteGrouping4LZ4 Variant = 2
)

func (v Variant) String() string {
	switch v {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ByteGrouping4LZ4:
		return "bg4+lz4"
	default:
		return "unknown"
	}
}

// Valid reports whether v is one of the three defined variants.
func (v Variant) Valid() bool {
	return v == None || v == LZ4 || v == ByteGrouping4LZ4
}

// Compress encodes data under the given variant.
func Compress(v Variant, data []byte) ([]byte, error) {
	switch v {
	case None:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case LZ4:
		return lz4Frame(data)
	case ByteGrouping4LZ4:
		return lz4Frame(ByteGroup4(data))
	default:
		return nil, xerr.NewFormat("compress", "unknown compression variant")
	}
}

// Decompress decodes data under the given variant; uncompressedSize is the
// exact expected output length (known from the chunk header) and is used
// to size the ByteUngroup4 pass and to validate LZ4 output length.
func Decompress(v Variant, data []byte, uncompressedSize int) ([]byte, error) {
	switch v {
	case None:
		if len(data) != uncompressedSize {
			return nil, xerr.NewFormat("compress", "identity payload length mismatch")
		}
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case LZ4:
		out, err := lz4Unframe(data, uncompressedSize)
		if err != nil {
			return nil, err
		}
		if len(out) != uncompressedSize {
			return nil, xerr.NewFormat("compress", "lz4 payload length mismatch")
		}
		return out, nil
	case ByteGrouping4LZ4:
		grouped, err := lz4Unframe(data, uncompressedSize)
		if err != nil {
			return nil, err
		}
		if len(grouped) != uncompressedSize {
			return nil, xerr.NewFormat("compress", "bg4+lz4 payload length mismatch")
		}
		return ByteUngroup4(grouped, uncompressedSize), nil
	default:
		return nil, xerr.NewFormat("compress", "unknown compression variant")
	}
}

func lz4Frame(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, xerr.WrapFormat("compress", "lz4 frame write failed", err)
	}
	if err := zw.Close(); err != nil {
		return nil, xerr.WrapFormat("compress", "lz4 frame close failed", err)
	}
	return buf.Bytes(), nil
}

func lz4Unframe(data []byte, expected int) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(data))
	out := make([]byte, 0, expected)
	buf := make([]byte, 32*1024)
	for {
		n, err := zr.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, xerr.WrapFormat("compress", "lz4 frame read failed", err)
		}
	}
}
