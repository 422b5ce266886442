package reconstruct

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xet-data/xetcas/compress"
	"github.com/xet-data/xetcas/xhash"
	"github.com/xet-data/xetcas/xorb"
)

// fakeFetcher serves byte ranges out of a fixed set of named blobs,
// recording how many times each (url, range) pair was actually fetched.
type fakeFetcher struct {
	blobs map[string][]byte
	calls map[fetchKey]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{blobs: map[string][]byte{}, calls: map[fetchKey]int{}}
}

func (f *fakeFetcher) FetchBytes(ctx context.Context, url string, start, end uint64) ([]byte, error) {
	f.calls[fetchKey{url, start, end}]++
	blob := f.blobs[url]
	// inclusive end, per the HTTP range convention this interface models.
	return blob[start : end+1], nil
}

func buildXorbRegion(t *testing.T, raws [][]byte) ([]byte, xhash.Hash) {
	t.Helper()
	b := xorb.NewBuilder()
	for _, raw := range raws {
		h := xhash.Data(raw)
		compressed, err := compress.Compress(compress.None, raw)
		assert.NoError(t, err)
		assert.NoError(t, b.AddChunk(h, compress.None, compressed, len(raw)))
	}
	data, hash, err := b.Build()
	assert.NoError(t, err)
	return data, hash
}

// verificationHash reproduces what a server computes for a term spanning
// exactly these chunks: H_VERIFICATION over the raw concatenation of each
// chunk's content hash, in order.
func verificationHash(raws [][]byte) xhash.Hash {
	var buf []byte
	for _, raw := range raws {
		h := xhash.Data(raw)
		buf = append(buf, h[:]...)
	}
	return xhash.Verification(buf)
}

func TestAssembleSingleTerm(t *testing.T) {
	assert := assert.New(t)
	raws := [][]byte{[]byte("abcd"), []byte("efgh")}
	region, xorbHash := buildXorbRegion(t, raws)

	fetcher := newFakeFetcher()
	fetcher.blobs["xorb://one"] = region

	resp := Response{
		Terms: []Term{{
			XorbHash: xorbHash, ChunkStart: 0, ChunkEnd: 2, UnpackedLength: 8,
			VerificationHash: verificationHash(raws),
		}},
		FetchRanges: []ByteRange{
			{URL: "xorb://one", StartInclusive: 0, EndInclusive: uint64(len(region) - 1)},
		},
	}
	out, err := Assemble(context.Background(), fetcher, resp, -1)
	assert.NoError(err)
	assert.Equal([]byte("abcdefgh"), out)
}

func TestAssembleBytesToSkipAndTruncate(t *testing.T) {
	assert := assert.New(t)
	raws := [][]byte{[]byte("abcd"), []byte("efgh"), []byte("ijkl")}
	region, xorbHash := buildXorbRegion(t, raws)

	fetcher := newFakeFetcher()
	fetcher.blobs["xorb://one"] = region

	resp := Response{
		BytesToSkip: 2,
		Terms: []Term{{
			XorbHash: xorbHash, ChunkStart: 0, ChunkEnd: 3, UnpackedLength: 12,
			VerificationHash: verificationHash(raws),
		}},
		FetchRanges: []ByteRange{
			{URL: "xorb://one", StartInclusive: 0, EndInclusive: uint64(len(region) - 1)},
		},
	}
	out, err := Assemble(context.Background(), fetcher, resp, 6)
	assert.NoError(err)
	// full decode is "abcdefghijkl"; skip 2 -> "cdefghijkl"; truncate to 6 -> "cdefgh"
	assert.Equal([]byte("cdefgh"), out)
}

func TestAssembleSharesFetchAcrossTerms(t *testing.T) {
	assert := assert.New(t)
	raws := [][]byte{[]byte("abcd"), []byte("efgh")}
	region, xorbHash := buildXorbRegion(t, raws)

	fetcher := newFakeFetcher()
	fetcher.blobs["xorb://one"] = region

	firstChunkVerification := verificationHash(raws[:1])
	fr := ByteRange{URL: "xorb://one", StartInclusive: 0, EndInclusive: uint64(len(region) - 1)}
	resp := Response{
		Terms: []Term{
			{XorbHash: xorbHash, ChunkStart: 0, ChunkEnd: 1, UnpackedLength: 4, VerificationHash: firstChunkVerification},
			{XorbHash: xorbHash, ChunkStart: 0, ChunkEnd: 1, UnpackedLength: 4, VerificationHash: firstChunkVerification},
		},
		FetchRanges: []ByteRange{fr, fr},
	}
	out, err := Assemble(context.Background(), fetcher, resp, -1)
	assert.NoError(err)
	assert.Equal([]byte("abcdabcd"), out)
	assert.Equal(1, fetcher.calls[fetchKey{fr.URL, fr.StartInclusive, fr.EndInclusive}])
}

func TestAssembleVerificationMismatchRejected(t *testing.T) {
	assert := assert.New(t)
	raws := [][]byte{[]byte("abcd"), []byte("efgh")}
	region, xorbHash := buildXorbRegion(t, raws)

	fetcher := newFakeFetcher()
	fetcher.blobs["xorb://one"] = region

	resp := Response{
		Terms: []Term{{
			XorbHash: xorbHash, ChunkStart: 0, ChunkEnd: 2, UnpackedLength: 8,
			VerificationHash: xhash.Verification([]byte("wrong")),
		}},
		FetchRanges: []ByteRange{
			{URL: "xorb://one", StartInclusive: 0, EndInclusive: uint64(len(region) - 1)},
		},
	}
	_, err := Assemble(context.Background(), fetcher, resp, -1)
	assert.Error(err)
}

func TestAssembleEmptyTermsReturnsEmpty(t *testing.T) {
	assert := assert.New(t)
	out, err := Assemble(context.Background(), newFakeFetcher(), Response{}, -1)
	assert.NoError(err)
	assert.Empty(out)
}

func TestAssembleMismatchedFetchCount(t *testing.T) {
	assert := assert.New(t)
	resp := Response{
		Terms:       []Term{{ChunkStart: 0, ChunkEnd: 1}},
		FetchRanges: nil,
	}
	_, err := Assemble(context.Background(), newFakeFetcher(), resp, -1)
	assert.Error(err)
}

func TestAssembleInvalidChunkRangeRejected(t *testing.T) {
	assert := assert.New(t)
	resp := Response{
		Terms:       []Term{{ChunkStart: 3, ChunkEnd: 3}},
		FetchRanges: []ByteRange{{URL: "xorb://one"}},
	}
	_, err := Assemble(context.Background(), newFakeFetcher(), resp, -1)
	assert.Error(err)
}

func TestAssembleBytesToSkipExceedsFirstTermRejected(t *testing.T) {
	assert := assert.New(t)
	raws := [][]byte{[]byte("abcd")}
	region, xorbHash := buildXorbRegion(t, raws)
	fetcher := newFakeFetcher()
	fetcher.blobs["xorb://one"] = region

	resp := Response{
		BytesToSkip: 100,
		Terms: []Term{{
			XorbHash: xorbHash, ChunkStart: 0, ChunkEnd: 1,
			VerificationHash: verificationHash(raws),
		}},
		FetchRanges: []ByteRange{
			{URL: "xorb://one", StartInclusive: 0, EndInclusive: uint64(len(region) - 1)},
		},
	}
	_, err := Assemble(context.Background(), fetcher, resp, -1)
	assert.Error(err)
}
