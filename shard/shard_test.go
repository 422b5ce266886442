package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xet-data/xetcas/xhash"
)

func fh(b byte) xhash.Hash {
	var h xhash.Hash
	h[0] = b
	h[31] = b ^ 0x55
	return h
}

func sampleShard() *Builder {
	b := NewBuilder()
	b.AddFile(FileBlock{
		FileHash: fh(1),
		Entries: []FileEntry{
			{XorbHash: fh(10), UnpackedSegmentBytes: 100, ChunkStart: 0, ChunkEnd: 2},
			{XorbHash: fh(11), UnpackedSegmentBytes: 50, ChunkStart: 2, ChunkEnd: 3},
		},
	})
	b.AddFile(FileBlock{
		FileHash: fh(2),
		Entries: []FileEntry{
			{XorbHash: fh(10), UnpackedSegmentBytes: 200, ChunkStart: 0, ChunkEnd: 1},
		},
		HasMetadataExt: true,
		FileSHA256:     [32]byte{0xAB},
	})
	b.AddCas(CasBlock{
		XorbHash:       fh(10),
		NumBytesInCas:  150,
		NumBytesOnDisk: 140,
		Entries: []CasEntry{
			{ChunkHash: fh(20), ChunkByteRangeStart: 0, UnpackedSegmentBytes: 60, GlobalDedupEligible: true},
			{ChunkHash: fh(21), ChunkByteRangeStart: 60, UnpackedSegmentBytes: 40},
			{ChunkHash: fh(22), ChunkByteRangeStart: 100, UnpackedSegmentBytes: 50},
		},
	})
	b.AddCas(CasBlock{
		XorbHash:       fh(11),
		NumBytesInCas:  50,
		NumBytesOnDisk: 50,
		Entries: []CasEntry{
			{ChunkHash: fh(23), ChunkByteRangeStart: 0, UnpackedSegmentBytes: 50},
		},
	})
	return b
}

func TestUploadFormRoundTrip(t *testing.T) {
	assert := assert.New(t)
	b := sampleShard()
	data, err := b.BuildUploadForm()
	assert.NoError(err)

	s, err := Parse(data)
	assert.NoError(err)
	assert.False(s.StoredForm)
	assert.Equal(uint64(0), s.Header.FooterSize)
	assert.Len(s.FileBlocks, 2)
	assert.Len(s.CasBlocks, 2)
	assert.True(s.FileBlocks[1].HasMetadataExt)
	assert.Equal(byte(0xAB), s.FileBlocks[1].FileSHA256[0])
}

func TestStoredFormRoundTrip(t *testing.T) {
	assert := assert.New(t)
	b := sampleShard()
	data, err := b.BuildStoredForm(StoredFormOptions{
		ShardCreationTimestamp: 1700000000,
		StoredBytesOnDisk:      190,
		MaterializedBytes:      350,
		StoredBytes:            190,
	})
	assert.NoError(err)

	s, err := Parse(data)
	assert.NoError(err)
	assert.True(s.StoredForm)
	assert.Len(s.FileLookup, 2)
	assert.Len(s.CasLookup, 2)
	assert.Len(s.ChunkLookup, 4)
	assert.Equal(uint64(1700000000), s.ShardCreationTimestamp)

	xorbHash, idx, ok := s.LookupChunk(fh(21))
	assert.True(ok)
	assert.Equal(fh(10), xorbHash)
	assert.Equal(1, idx)
}

func TestStoredFormReserializeIsByteIdentical(t *testing.T) {
	assert := assert.New(t)
	b := sampleShard()
	data, err := b.BuildStoredForm(StoredFormOptions{})
	assert.NoError(err)

	s, err := Parse(data)
	assert.NoError(err)

	b2 := NewBuilder()
	for _, fb := range s.FileBlocks {
		b2.AddFile(fb)
	}
	for _, cb := range s.CasBlocks {
		b2.AddCas(cb)
	}
	data2, err := b2.BuildStoredForm(StoredFormOptions{
		ChunkHashKey:           s.ChunkHashKey,
		ShardCreationTimestamp: s.ShardCreationTimestamp,
		ShardKeyExpiry:         s.ShardKeyExpiry,
		StoredBytesOnDisk:      s.StoredBytesOnDisk,
		MaterializedBytes:      s.MaterializedBytes,
		StoredBytes:            s.StoredBytes,
	})
	assert.NoError(err)
	assert.Equal(data, data2)
}

func TestKeyedChunkLookup(t *testing.T) {
	assert := assert.New(t)
	b := sampleShard()
	key := [32]byte{1, 2, 3}
	data, err := b.BuildStoredForm(StoredFormOptions{ChunkHashKey: key})
	assert.NoError(err)

	s, err := Parse(data)
	assert.NoError(err)
	assert.Equal(key, s.ChunkHashKey)

	_, _, ok := s.LookupChunk(fh(20))
	assert.True(ok)
}

func TestUnknownChunkLookupMisses(t *testing.T) {
	assert := assert.New(t)
	b := sampleShard()
	data, err := b.BuildStoredForm(StoredFormOptions{})
	assert.NoError(err)
	s, err := Parse(data)
	assert.NoError(err)

	_, _, ok := s.LookupChunk(fh(99))
	assert.False(ok)
}

func TestUploadFormHasNoLookupTables(t *testing.T) {
	assert := assert.New(t)
	b := sampleShard()
	data, err := b.BuildUploadForm()
	assert.NoError(err)
	s, err := Parse(data)
	assert.NoError(err)

	_, _, ok := s.LookupChunk(fh(20))
	assert.False(ok)
}

func TestBadMagicRejected(t *testing.T) {
	assert := assert.New(t)
	b := sampleShard()
	data, err := b.BuildUploadForm()
	assert.NoError(err)
	data[20] ^= 0xFF
	_, err = Parse(data)
	assert.Error(err)
}

func TestTruncatedChunkEndRejected(t *testing.T) {
	assert := assert.New(t)
	b := NewBuilder()
	b.AddFile(FileBlock{
		FileHash: fh(1),
		Entries:  []FileEntry{{XorbHash: fh(10), ChunkStart: 5, ChunkEnd: 5}},
	})
	_, err := b.BuildUploadForm()
	assert.Error(err)
}

func TestKeyExpiry(t *testing.T) {
	f := footer{ShardKeyExpiry: 1000}
	assert.True(t, f.keyExpired(1000))
	assert.True(t, f.keyExpired(2000))
	assert.False(t, f.keyExpired(999))
	assert.False(t, footer{}.keyExpired(999999))
}
