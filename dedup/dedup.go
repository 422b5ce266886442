// Package dedup implements the client-side deduplication coordinator:
// the eligibility predicate for submitting a chunk to the global dedup
// endpoint, the keyed-hash match procedure against a returned shard, and
// the minimum-run fragmentation policy that decides whether a match is
// worth taking.
//
// Caches resolved matches in a sharded, hash-keyed, concurrent-safe map
// fronting the remote dedup endpoint, so repeated chunks across files in
// the same run cost one round trip.
package dedup

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/xet-data/xetcas/internal/xerr"
	"github.com/xet-data/xetcas/policy"
	"github.com/xet-data/xetcas/shard"
	"github.com/xet-data/xetcas/xhash"
)

// eligibilityModulus is the divisor in the eligibility predicate: a
// non-first chunk is offered for global dedup only if the low 8 bytes of
// its hash, as a little-endian u64, are a multiple of this.
const eligibilityModulus = 1024

// Eligible reports whether a chunk qualifies for a global dedup query:
// either it is the first chunk of its file, or its hash prefix is a
// multiple of eligibilityModulus.
func Eligible(isFirstChunkOfFile bool, chunkHash xhash.Hash) bool {
	return isFirstChunkOfFile || chunkHash.Prefix()%eligibilityModulus == 0
}

// Chunk is one local chunk awaiting a dedup decision.
type Chunk struct {
	Hash xhash.Hash
	Size int
}

// Match is a single chunk's resolved remote location.
type Match struct {
	XorbHash   xhash.Hash
	ChunkIndex int
}

// Querier fetches the shard a global dedup query returns for a chunk
// hash, if any. transport.Transport.QueryDedup satisfies this.
type Querier interface {
	QueryDedup(ctx context.Context, namespace string, chunkHash xhash.Hash) (shardBytes []byte, found bool, err error)
}

const cacheShardCount = 16

type cacheEntry struct {
	match  Match
	expiry uint64 // 0 means never expires
}

// cache is a sharded, hash-keyed local map from chunk hash to its last
// known remote location, shared across concurrently chunked files.
type cache struct {
	shards [cacheShardCount]struct {
		mu sync.Mutex
		m  map[xhash.Hash]cacheEntry
	}
}

func newCache() *cache {
	c := &cache{}
	for i := range c.shards {
		c.shards[i].m = make(map[xhash.Hash]cacheEntry)
	}
	return c
}

func (c *cache) shardFor(h xhash.Hash) int {
	return int(xxhash.Sum64(h[:]) % cacheShardCount)
}

func (c *cache) get(h xhash.Hash, now uint64) (Match, bool) {
	s := &c.shards[c.shardFor(h)]
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[h]
	if !ok {
		return Match{}, false
	}
	if e.expiry != 0 && now >= e.expiry {
		delete(s.m, h)
		return Match{}, false
	}
	return e.match, true
}

func (c *cache) put(h xhash.Hash, m Match, expiry uint64) {
	s := &c.shards[c.shardFor(h)]
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[h] = cacheEntry{match: m, expiry: expiry}
}

// Coordinator drives dedup queries and turns per-chunk matches into
// planned terms, applying the minimum-run fragmentation policy.
type Coordinator struct {
	querier   Querier
	namespace string
	policy    policy.DedupPolicy
	cache     *cache
	now       func() uint64
	log       *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDedupPolicy overrides the default minimum-run fragmentation policy.
func WithDedupPolicy(p policy.DedupPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithClock overrides the coordinator's notion of "now", used only to
// test shard_key_expiry eviction deterministically.
func WithClock(now func() uint64) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger overrides the no-op default logger. Used at two sites: a
// shard rejected for key expiry, and a matched run demoted back to a
// fresh upload by the fragmentation policy.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// NewCoordinator builds a Coordinator querying the given namespace.
func NewCoordinator(querier Querier, namespace string, opts ...Option) *Coordinator {
	c := &Coordinator{
		querier:   querier,
		namespace: namespace,
		policy:    policy.DefaultDedupPolicy(),
		cache:     newCache(),
		now:       func() uint64 { return 0 },
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PlannedTerm is one contiguous run of local chunks resolved either to a
// reused remote xorb range or to a fresh upload.
type PlannedTerm struct {
	Reused           bool
	XorbHash         xhash.Hash // zero when Reused is false
	LocalChunkStart  int        // index into the chunks slice passed to Decide, inclusive
	LocalChunkEnd    int        // exclusive
	RemoteChunkStart int        // first matched remote chunk index, valid when Reused
}

// Decide resolves every chunk in order to either a reused remote range or
// a fresh upload, applying the eligibility predicate, the keyed-hash
// match procedure, and the minimum-run fragmentation policy. isFirst
// reports, for each chunk, whether it is the first chunk of its file.
func (c *Coordinator) Decide(ctx context.Context, chunks []Chunk, isFirst []bool) ([]PlannedTerm, error) {
	if len(isFirst) != len(chunks) {
		return nil, xerr.NewConstraint("dedup.decide", "isFirst must have one entry per chunk")
	}
	matches := make([]*Match, len(chunks))
	now := c.now()

	for i, ch := range chunks {
		if matches[i] != nil {
			continue
		}
		if !Eligible(isFirst[i], ch.Hash) {
			continue
		}
		if m, ok := c.cache.get(ch.Hash, now); ok {
			matches[i] = &m
			continue
		}
		shardBytes, found, err := c.querier.QueryDedup(ctx, c.namespace, ch.Hash)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		s, err := shard.Parse(shardBytes)
		if err != nil {
			return nil, err
		}
		if s.ShardKeyExpiry != 0 && now >= s.ShardKeyExpiry {
			err := xerr.NewKeyExpiry(ch.Hash.String(), s.ShardKeyExpiry, now)
			c.log.Warn("dedup: shard key expired, ignoring lookup table",
				zap.Error(err), zap.Uint64("expiry", s.ShardKeyExpiry), zap.Uint64("now", now))
			continue
		}
		// Test every not-yet-matched local chunk against this shard, not
		// just the one that triggered the query: the client only learns
		// whether hashes it already holds are present, never new hashes.
		for j, cj := range chunks {
			if matches[j] != nil {
				continue
			}
			xorbHash, idx, ok := s.LookupChunk(cj.Hash)
			if !ok {
				continue
			}
			m := Match{XorbHash: xorbHash, ChunkIndex: idx}
			matches[j] = &m
			c.cache.put(cj.Hash, m, s.ShardKeyExpiry)
		}
	}

	return c.planTerms(chunks, matches), nil
}

// planTerms groups chunks into maximal contiguous runs that are either
// all matched to a contiguous remote chunk range in the same xorb, or
// unmatched, then demotes any matched run that is too small per the
// fragmentation policy back to a fresh upload.
func (c *Coordinator) planTerms(chunks []Chunk, matches []*Match) []PlannedTerm {
	var terms []PlannedTerm
	i := 0
	for i < len(chunks) {
		if matches[i] == nil {
			j := i + 1
			for j < len(chunks) && matches[j] == nil {
				j++
			}
			terms = append(terms, PlannedTerm{LocalChunkStart: i, LocalChunkEnd: j})
			i = j
			continue
		}

		j := i + 1
		for j < len(chunks) && matches[j] != nil &&
			matches[j].XorbHash == matches[i].XorbHash &&
			matches[j].ChunkIndex == matches[j-1].ChunkIndex+1 {
			j++
		}

		runBytes := 0
		for k := i; k < j; k++ {
			runBytes += chunks[k].Size
		}
		if c.policy.Qualifies(j-i, runBytes) {
			terms = append(terms, PlannedTerm{
				Reused:           true,
				XorbHash:         matches[i].XorbHash,
				LocalChunkStart:  i,
				LocalChunkEnd:    j,
				RemoteChunkStart: matches[i].ChunkIndex,
			})
		} else {
			c.log.Debug("dedup: matched run too small, falling back to fresh upload",
				zap.Int("run_chunks", j-i), zap.Int("run_bytes", runBytes))
			terms = append(terms, PlannedTerm{LocalChunkStart: i, LocalChunkEnd: j})
		}
		i = j
	}
	return mergeAdjacentNewTerms(terms)
}

// mergeAdjacentNewTerms merges consecutive fresh-upload terms that
// planTerms may have produced back-to-back (e.g. a matched run demoted
// by policy sitting next to an already-unmatched run).
func mergeAdjacentNewTerms(terms []PlannedTerm) []PlannedTerm {
	if len(terms) == 0 {
		return terms
	}
	out := make([]PlannedTerm, 0, len(terms))
	out = append(out, terms[0])
	for _, t := range terms[1:] {
		last := &out[len(out)-1]
		if !t.Reused && !last.Reused && last.LocalChunkEnd == t.LocalChunkStart {
			last.LocalChunkEnd = t.LocalChunkEnd
			continue
		}
		out = append(out, t)
	}
	return out
}
