// Package transport declares the narrow boundary between the object
// engine and the network: five operations the core consumes and never
// implements itself. httpclient provides
// one concrete binding over plain HTTP; the core only ever depends on
// this interface.
package transport

import (
	"context"

	"github.com/xet-data/xetcas/xhash"
)

// ReconstructionResponse is what get_reconstruction returns.
type ReconstructionResponse struct {
	BytesToSkip uint64
	Terms       []Term
	FetchInfo   []FetchRange // parallel to Terms
}

// Term mirrors reconstruct.Term field for field; it is declared here
// rather than imported, so this package imports only xhash.
type Term struct {
	XorbHash         xhash.Hash
	ChunkStart       uint32
	ChunkEnd         uint32
	UnpackedLength   uint32
	VerificationHash xhash.Hash
}

// FetchRange is a xorb byte range using HTTP inclusive-end semantics.
type FetchRange struct {
	URL            string
	StartInclusive uint64
	EndInclusive   uint64
}

// ByteRange requests a half-open slice of a file's bytes, in the
// project-wide [start, end) exclusive convention.
type ByteRange struct {
	Start, End uint64
}

// PutXorbResult reports whether the xorb was newly stored.
type PutXorbResult struct {
	WasInserted bool
}

// PutShardResult reports whether the shard was already known.
type PutShardResult struct {
	AlreadyExisted bool
}

// Transport is the five-operation boundary the core depends on: file
// reconstruction, dedup query, the two put paths (xorb, shard), and raw
// byte-range fetch. Every method is safe to call concurrently.
type Transport interface {
	// GetReconstruction resolves a file hash (and optional byte range)
	// into the term list and fetch info needed to reassemble it.
	GetReconstruction(ctx context.Context, fileHash xhash.Hash, byteRange *ByteRange) (ReconstructionResponse, error)

	// QueryDedup looks up a chunk hash in the global dedup index, returning
	// the shard bytes that describe any matches, or found=false.
	QueryDedup(ctx context.Context, namespace string, chunkHash xhash.Hash) (shardBytes []byte, found bool, err error)

	// PutXorb uploads a serialized xorb under the given namespace and hash.
	PutXorb(ctx context.Context, namespace string, xorbHash xhash.Hash, data []byte) (PutXorbResult, error)

	// PutShard uploads a shard, in upload form, for registration.
	PutShard(ctx context.Context, data []byte) (PutShardResult, error)

	// FetchBytes fetches a byte range from a storage URL using HTTP
	// inclusive-end range semantics.
	FetchBytes(ctx context.Context, url string, startInclusive, endInclusive uint64) ([]byte, error)
}
