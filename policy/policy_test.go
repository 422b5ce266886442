package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xet-data/xetcas/compress"
)

func TestDefaultCompressionSelectorNeverEnlarges(t *testing.T) {
	assert := assert.New(t)
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	v, out, err := DefaultCompressionSelector(data)
	assert.NoError(err)
	assert.True(v.Valid())
	assert.LessOrEqual(len(out), len(data))
}

func TestDefaultCompressionSelectorRoundTrips(t *testing.T) {
	assert := assert.New(t)
	data := make([]byte, 50000)
	for i := range data {
		data[i] = byte(i % 17)
	}
	v, out, err := DefaultCompressionSelector(data)
	assert.NoError(err)
	back, err := compress.Decompress(v, out, len(data))
	assert.NoError(err)
	assert.Equal(data, back)
}

func TestDedupPolicyQualifies(t *testing.T) {
	assert := assert.New(t)
	p := DefaultDedupPolicy()
	assert.True(p.Qualifies(8, 100))
	assert.True(p.Qualifies(1, 1<<20))
	assert.False(p.Qualifies(1, 100))
}

func TestDedupPolicyOptions(t *testing.T) {
	assert := assert.New(t)
	p := NewDedupPolicy(WithMinDedupRun(2), WithMinDedupBytes(10))
	assert.Equal(2, p.MinRunChunks)
	assert.Equal(10, p.MinRunBytes)
}
