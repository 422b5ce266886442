// Package chunker implements the streaming, content-defined chunk splitter:
// a GEARHASH rolling hash over the input byte stream, with fixed
// MIN/TARGET/MAX boundaries and a top-16-bit mask test. Two runs over the
// same bytes always produce the same chunk boundaries.
package chunker

import (
	"bufio"
	"io"

	"github.com/xet-data/xetcas/gearhash"
)

const (
	// MinChunkSize is the minimum chunk size before the mask test is even
	// consulted.
	MinChunkSize = 8 * 1024
	// TargetChunkSize is the mean chunk size the mask is tuned for. Not
	// read directly by the algorithm — it is implied by Mask's bit width —
	// but named for documentation and policy code that wants to reason
	// about expected chunk counts.
	TargetChunkSize = 64 * 1024
	// MaxChunkSize is the hard upper bound; a chunk is always cut at this
	// size even if the mask never matches.
	MaxChunkSize = 128 * 1024
	// Mask tests the top 16 bits of the rolling hash.
	Mask = uint64(0xFFFF000000000000)
)

// Chunk is one content-defined slice of the input stream: its absolute
// byte offset and its raw bytes. Chunk hashing is left to the caller,
// keeping this package free of any dependency on the hash suite.
type Chunk struct {
	Offset int64
	Data   []byte
}

// Chunker splits an io.Reader into content-defined chunks. It is not safe
// for concurrent use by multiple goroutines; run one Chunker per file, and
// run multiple files' Chunkers concurrently.
type Chunker struct {
	r      *bufio.Reader
	pos    int64 // absolute offset of the next unread byte
	start  int64 // absolute offset of the current chunk's first byte
	h      uint64
	buf    []byte
	done   bool
}

// New constructs a Chunker reading from r.
func New(r io.Reader) *Chunker {
	return &Chunker{
		r:   bufio.NewReaderSize(r, 64*1024),
		buf: make([]byte, 0, MaxChunkSize),
	}
}

// Next returns the next chunk, or io.EOF once the stream is exhausted.
// A zero-length input produces io.EOF on the first call with no chunks at
// all; an input shorter than MIN is guaranteed exactly one chunk, which
// this implementation satisfies by flushing a non-empty tail.
func (c *Chunker) Next() (Chunk, error) {
	if c.done {
		return Chunk{}, io.EOF
	}

	for {
		b, err := c.r.ReadByte()
		if err == io.EOF {
			c.done = true
			if len(c.buf) == 0 {
				return Chunk{}, io.EOF
			}
			return c.emit(), nil
		}
		if err != nil {
			c.done = true
			return Chunk{}, err
		}

		c.buf = append(c.buf, b)
		c.pos++

		// GEARHASH roll: must execute on every byte regardless of whether
		// the boundary test below is consulted — skipping this update
		// would change every subsequent boundary decision.
		c.h = (c.h << 1) + gearhash.Table[b]

		size := c.pos - c.start
		if size < MinChunkSize {
			continue
		}
		if size >= MaxChunkSize {
			return c.emit(), nil
		}
		if c.h&Mask == 0 {
			return c.emit(), nil
		}
	}
}

func (c *Chunker) emit() Chunk {
	data := make([]byte, len(c.buf))
	copy(data, c.buf)
	chunk := Chunk{Offset: c.start, Data: data}
	c.start = c.pos
	c.h = 0
	c.buf = c.buf[:0]
	return chunk
}

// All drains the chunker, returning every chunk. Convenience for small
// inputs and tests; callers streaming large files should use Next directly.
func All(r io.Reader) ([]Chunk, error) {
	ch := New(r)
	var out []Chunk
	for {
		c, err := ch.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
}
