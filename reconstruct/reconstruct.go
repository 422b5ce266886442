// Package reconstruct assembles a file's bytes from an ordered term list
// plus per-term fetch information, the download counterpart to the xorb
// and shard codecs.
//
// Uses an errgroup-bounded fan-out over independent remote fetches,
// assembled in a fixed order once all fetches land, and the xorb
// package's own chunk-header framing reused here directly against raw
// fetched byte ranges.
package reconstruct

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xet-data/xetcas/internal/xerr"
	"github.com/xet-data/xetcas/xhash"
	"github.com/xet-data/xetcas/xorb"
)

// Term is one contiguous slice of a file: a chunk range within one xorb.
type Term struct {
	XorbHash         xhash.Hash
	ChunkStart       uint32
	ChunkEnd         uint32 // exclusive
	UnpackedLength   uint32
	VerificationHash xhash.Hash
}

// ByteRange is an HTTP inclusive-end byte range into a xorb's raw storage
// bytes, distinct from the project-wide [start, end) exclusive convention
// used everywhere else.
type ByteRange struct {
	URL            string
	StartInclusive uint64
	EndInclusive   uint64
}

// Response is what get_reconstruction returns: the terms that rebuild the
// requested range of a file, a parallel fetch range for each term, and
// the count of leading bytes to discard from the first term's output
// (nonzero only for a mid-file range request).
type Response struct {
	BytesToSkip uint64
	Terms       []Term
	FetchRanges []ByteRange // len(FetchRanges) == len(Terms)
}

// BytesFetcher fetches a raw byte range from a xorb's storage location.
// transport.Transport.FetchBytes satisfies this.
type BytesFetcher interface {
	FetchBytes(ctx context.Context, url string, startInclusive, endInclusive uint64) ([]byte, error)
}

type fetchKey struct {
	url   string
	start uint64
	end   uint64
}

// Assemble fetches every distinct (url, range) pair referenced by resp
// concurrently, decodes each term's chunk run from its fetch's bytes,
// verifies the term against its verification_hash, and concatenates the
// results in term order. A fetched byte range carries no footer hash
// section, so each chunk's content hash is rederived from its
// decompressed bytes and checked against the term's verification_hash
// before the bytes are trusted. bytes_to_skip is dropped from the front
// of the first term's output. If maxLength is non-negative the assembled
// output is truncated to it; pass -1 to keep everything.
func Assemble(ctx context.Context, fetcher BytesFetcher, resp Response, maxLength int64) ([]byte, error) {
	if len(resp.FetchRanges) != len(resp.Terms) {
		return nil, xerr.NewConstraint("reconstruct.fetch_info", "fetch range count must match term count")
	}
	if len(resp.Terms) == 0 {
		return []byte{}, nil
	}
	for _, term := range resp.Terms {
		if term.ChunkEnd <= term.ChunkStart {
			return nil, xerr.NewConstraint("reconstruct.term", "chunk_end must exceed chunk_start")
		}
	}

	unique := make(map[fetchKey]struct{})
	for _, fr := range resp.FetchRanges {
		unique[fetchKey{fr.URL, fr.StartInclusive, fr.EndInclusive}] = struct{}{}
	}

	fetched := make(map[fetchKey][]byte, len(unique))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for k := range unique {
		k := k
		g.Go(func() error {
			b, err := fetcher.FetchBytes(gctx, k.url, k.start, k.end)
			if err != nil {
				return xerr.NewTransport("reconstruct.fetch_range", 0, err)
			}
			mu.Lock()
			fetched[k] = b
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []byte
	for i, term := range resp.Terms {
		fr := resp.FetchRanges[i]
		region, ok := fetched[fetchKey{fr.URL, fr.StartInclusive, fr.EndInclusive}]
		if !ok {
			return nil, xerr.NewFormat("reconstruct", "missing fetched bytes for term")
		}
		decoded, chunkHashes, err := xorb.DecodeChunkRun(region, int(term.ChunkEnd-term.ChunkStart))
		if err != nil {
			return nil, err
		}

		var rawConcat []byte
		for _, h := range chunkHashes {
			rawConcat = append(rawConcat, h[:]...)
		}
		if got := xhash.Verification(rawConcat); got != term.VerificationHash {
			return nil, xerr.NewIntegrity("reconstruct.term", term.VerificationHash.String(), got.String())
		}

		if i == 0 && resp.BytesToSkip > 0 {
			if resp.BytesToSkip > uint64(len(decoded)) {
				return nil, xerr.NewConstraint("reconstruct.bytes_to_skip", "bytes_to_skip exceeds first term's output")
			}
			decoded = decoded[resp.BytesToSkip:]
		}
		out = append(out, decoded...)
	}

	if maxLength >= 0 && int64(len(out)) > maxLength {
		out = out[:maxLength]
	}
	return out, nil
}
