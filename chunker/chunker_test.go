package chunker

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func randomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	_, _ = r.Read(b)
	return b
}

func TestDeterministicBoundaries(t *testing.T) {
	assert := assert.New(t)
	data := randomBytes(2*1024*1024, 42)

	c1, err := All(bytes.NewReader(data))
	assert.NoError(err)
	c2, err := All(bytes.NewReader(data))
	assert.NoError(err)

	assert.Equal(len(c1), len(c2))
	for i := range c1 {
		assert.Equal(c1[i].Offset, c2[i].Offset)
		assert.True(bytes.Equal(c1[i].Data, c2[i].Data))
	}
}

func TestReassembly(t *testing.T) {
	assert := assert.New(t)
	data := randomBytes(3*1024*1024+17, 7)

	chunks, err := All(bytes.NewReader(data))
	assert.NoError(err)
	assert.NotEmpty(chunks)

	var out bytes.Buffer
	for _, c := range chunks {
		out.Write(c.Data)
	}
	assert.True(bytes.Equal(data, out.Bytes()))
}

func TestChunkSizeBounds(t *testing.T) {
	assert := assert.New(t)
	data := randomBytes(4*1024*1024, 99)

	chunks, err := All(bytes.NewReader(data))
	assert.NoError(err)

	for i, c := range chunks {
		assert.LessOrEqual(len(c.Data), MaxChunkSize)
		if i < len(chunks)-1 {
			// every non-trailing chunk must be at least MIN, since the
			// only way to emit before MIN is EOF (which ends the stream).
			assert.GreaterOrEqual(len(c.Data), MinChunkSize)
		}
	}
}

func TestSmallFileSingleChunk(t *testing.T) {
	assert := assert.New(t)
	data := randomBytes(100, 3)

	chunks, err := All(bytes.NewReader(data))
	assert.NoError(err)
	assert.Len(chunks, 1)
	assert.Equal(data, chunks[0].Data)
}

func TestEmptyInputNoChunks(t *testing.T) {
	assert := assert.New(t)
	chunks, err := All(bytes.NewReader(nil))
	assert.NoError(err)
	assert.Empty(chunks)
}

func TestNextReturnsEOFAfterDrain(t *testing.T) {
	assert := assert.New(t)
	c := New(bytes.NewReader(randomBytes(10, 1)))
	_, err := c.Next()
	assert.NoError(err)
	_, err = c.Next()
	assert.Equal(io.EOF, err)
}

func TestOffsetsAreContiguous(t *testing.T) {
	assert := assert.New(t)
	data := randomBytes(1024*1024, 55)
	chunks, err := All(bytes.NewReader(data))
	assert.NoError(err)

	var want int64
	for _, c := range chunks {
		assert.Equal(want, c.Offset)
		want += int64(len(c.Data))
	}
	assert.Equal(int64(len(data)), want)
}
