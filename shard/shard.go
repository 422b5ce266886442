package shard

import (
	"bytes"

	"github.com/xet-data/xetcas/internal/xerr"
	"github.com/xet-data/xetcas/xhash"
)

// Shard is a fully decoded shard, in either upload or stored form.
// StoredForm is false when the lookup tables and footer were absent.
type Shard struct {
	Header     Header
	FileBlocks []FileBlock
	CasBlocks  []CasBlock

	StoredForm bool

	FileLookup  []FileLookupEntry
	CasLookup   []CasLookupEntry
	ChunkLookup []ChunkLookupEntry

	ChunkHashKey           [32]byte
	ShardCreationTimestamp uint64
	ShardKeyExpiry         uint64
	StoredBytesOnDisk      uint64
	MaterializedBytes      uint64
	StoredBytes            uint64
}

// Builder accumulates file and CAS metadata for one shard.
type Builder struct {
	fileBlocks []FileBlock
	casBlocks  []CasBlock
}

// NewBuilder returns an empty shard builder.
func NewBuilder() *Builder { return &Builder{} }

// AddFile appends one file's metadata record.
func (b *Builder) AddFile(fb FileBlock) { b.fileBlocks = append(b.fileBlocks, fb) }

// AddCas appends one xorb's chunk layout record.
func (b *Builder) AddCas(cb CasBlock) { b.casBlocks = append(b.casBlocks, cb) }

func (b *Builder) encodeSections() ([]byte, error) {
	var buf bytes.Buffer
	for _, fb := range b.fileBlocks {
		enc, err := encodeFileBlock(fb)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}
	buf.Write(bookend[:])
	for _, cb := range b.casBlocks {
		buf.Write(encodeCasBlock(cb))
	}
	buf.Write(bookend[:])
	return buf.Bytes(), nil
}

// BuildUploadForm serializes the shard with no lookup tables or footer,
// the form used when a client first uploads a shard for a write that has
// not yet been globally deduplicated against.
func (b *Builder) BuildUploadForm() ([]byte, error) {
	sections, err := b.encodeSections()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, HeaderSize+len(sections))
	out = append(out, encodeHeader(0)...)
	out = append(out, sections...)
	return out, nil
}

// StoredFormOptions carries the fields only meaningful once a shard is
// accepted into durable storage and indexed.
type StoredFormOptions struct {
	ChunkHashKey           [32]byte // zero means chunk lookup keys are unkeyed raw hashes
	ShardCreationTimestamp uint64
	ShardKeyExpiry         uint64
	StoredBytesOnDisk      uint64
	MaterializedBytes      uint64
	StoredBytes            uint64
}

// BuildStoredForm serializes the shard with its three sorted lookup
// tables and 200-byte footer appended, deriving every lookup entry from
// the file and CAS blocks already added.
func (b *Builder) BuildStoredForm(opts StoredFormOptions) ([]byte, error) {
	sections, err := b.encodeSections()
	if err != nil {
		return nil, err
	}

	fileLookup := make([]FileLookupEntry, len(b.fileBlocks))
	for i, fb := range b.fileBlocks {
		fileLookup[i] = FileLookupEntry{TruncHash: fb.FileHash.Prefix(), FileIndex: uint32(i)}
	}
	sortFileLookup(fileLookup)

	casLookup := make([]CasLookupEntry, len(b.casBlocks))
	var chunkLookup []ChunkLookupEntry
	for i, cb := range b.casBlocks {
		casLookup[i] = CasLookupEntry{TruncHash: cb.XorbHash.Prefix(), CasIndex: uint32(i)}
		for j, ce := range cb.Entries {
			key := chunkLookupKey(ce.ChunkHash, opts.ChunkHashKey)
			chunkLookup = append(chunkLookup, ChunkLookupEntry{
				TruncHash:  key,
				CasIndex:   uint32(i),
				ChunkIndex: uint32(j),
			})
		}
	}
	sortCasLookup(casLookup)
	sortChunkLookup(chunkLookup)

	header := encodeHeader(FooterSize)
	fileLookupBuf := encodeFileLookup(fileLookup)
	casLookupBuf := encodeCasLookup(casLookup)
	chunkLookupBuf := encodeChunkLookup(chunkLookup)

	fileInfoOffset := uint64(len(header))
	fileLookupOffset := uint64(len(header)) + uint64(len(sections))
	casLookupOffset := fileLookupOffset + uint64(len(fileLookupBuf))
	chunkLookupOffset := casLookupOffset + uint64(len(casLookupBuf))
	footerOffset := chunkLookupOffset + uint64(len(chunkLookupBuf))

	f := footer{
		Version:                FooterVersion,
		FileInfoOffset:         fileInfoOffset,
		CasInfoOffset:          casInfoOffsetWithinSections(b.fileBlocks) + fileInfoOffset,
		FileLookupOffset:       fileLookupOffset,
		CasLookupOffset:        casLookupOffset,
		ChunkLookupOffset:      chunkLookupOffset,
		FileLookupCount:        uint64(len(fileLookup)),
		CasLookupCount:         uint64(len(casLookup)),
		ChunkLookupCount:       uint64(len(chunkLookup)),
		ChunkHashKey:           opts.ChunkHashKey,
		ShardCreationTimestamp: opts.ShardCreationTimestamp,
		ShardKeyExpiry:         opts.ShardKeyExpiry,
		StoredBytesOnDisk:      opts.StoredBytesOnDisk,
		MaterializedBytes:      opts.MaterializedBytes,
		StoredBytes:            opts.StoredBytes,
		FooterOffset:           footerOffset,
	}

	out := make([]byte, 0, footerOffset+FooterSize)
	out = append(out, header...)
	out = append(out, sections...)
	out = append(out, fileLookupBuf...)
	out = append(out, casLookupBuf...)
	out = append(out, chunkLookupBuf...)
	out = append(out, encodeFooter(f)...)
	return out, nil
}

// chunkLookupKey computes the truncated lookup key for a chunk hash: the
// raw hash's prefix when unkeyed, or the prefix of the hash keyed with
// chunkHashKey when one is set.
func chunkLookupKey(chunkHash xhash.Hash, chunkHashKey [32]byte) uint64 {
	if chunkHashKey == ([32]byte{}) {
		return chunkHash.Prefix()
	}
	return xhash.Keyed(chunkHashKey, chunkHash[:]).Prefix()
}

func casInfoOffsetWithinSections(fileBlocks []FileBlock) uint64 {
	total := uint64(0)
	for _, fb := range fileBlocks {
		total += recordSize * uint64(1+len(fb.Entries))
		if fb.HasVerification {
			total += recordSize * uint64(len(fb.Entries))
		}
		if fb.HasMetadataExt {
			total += recordSize
		}
	}
	return total + BookendSize
}

// Parse decodes a complete shard, detecting upload vs stored form from the
// header's footer_size field.
func Parse(data []byte) (*Shard, error) {
	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[HeaderSize:]

	if h.FooterSize == 0 {
		fileBlocks, casBlocks, err := parseSections(body, len(body))
		if err != nil {
			return nil, err
		}
		return &Shard{Header: h, FileBlocks: fileBlocks, CasBlocks: casBlocks}, nil
	}

	if uint64(len(data)) < HeaderSize+FooterSize {
		return nil, xerr.NewFormat("shard", "stored-form shard shorter than header plus footer")
	}
	footerBuf := data[len(data)-FooterSize:]
	f, err := decodeFooter(footerBuf)
	if err != nil {
		return nil, err
	}
	if f.FooterOffset != uint64(len(data))-FooterSize {
		return nil, xerr.NewFormat("shard", "footer offset disagrees with actual footer position")
	}

	sectionsLen := f.FileLookupOffset - uint64(HeaderSize)
	fileBlocks, casBlocks, err := parseSections(body, int(sectionsLen))
	if err != nil {
		return nil, err
	}

	fileLookup, err := decodeFileLookup(data[f.FileLookupOffset:f.CasLookupOffset], f.FileLookupCount)
	if err != nil {
		return nil, err
	}
	casLookup, err := decodeCasLookup(data[f.CasLookupOffset:f.ChunkLookupOffset], f.CasLookupCount)
	if err != nil {
		return nil, err
	}
	chunkLookup, err := decodeChunkLookup(data[f.ChunkLookupOffset:f.FooterOffset], f.ChunkLookupCount)
	if err != nil {
		return nil, err
	}

	return &Shard{
		Header:                 h,
		FileBlocks:             fileBlocks,
		CasBlocks:              casBlocks,
		StoredForm:             true,
		FileLookup:             fileLookup,
		CasLookup:              casLookup,
		ChunkLookup:            chunkLookup,
		ChunkHashKey:           f.ChunkHashKey,
		ShardCreationTimestamp: f.ShardCreationTimestamp,
		ShardKeyExpiry:         f.ShardKeyExpiry,
		StoredBytesOnDisk:      f.StoredBytesOnDisk,
		MaterializedBytes:      f.MaterializedBytes,
		StoredBytes:            f.StoredBytes,
	}, nil
}

func parseSections(body []byte, limit int) ([]FileBlock, []CasBlock, error) {
	if limit > len(body) {
		return nil, nil, xerr.NewFormat("shard", "section length exceeds buffer")
	}
	body = body[:limit]

	pos := 0
	var fileBlocks []FileBlock
	for {
		if pos+BookendSize <= len(body) && isBookend(body[pos:]) {
			pos += BookendSize
			break
		}
		fb, n, err := decodeFileBlock(body[pos:])
		if err != nil {
			return nil, nil, err
		}
		fileBlocks = append(fileBlocks, fb)
		pos += n
	}

	var casBlocks []CasBlock
	for {
		if pos == len(body) {
			return nil, nil, xerr.NewFormat("shard", "missing cas-info section bookend")
		}
		if pos+BookendSize <= len(body) && isBookend(body[pos:]) {
			pos += BookendSize
			break
		}
		cb, n, err := decodeCasBlock(body[pos:])
		if err != nil {
			return nil, nil, err
		}
		casBlocks = append(casBlocks, cb)
		pos += n
	}

	if pos != len(body) {
		return nil, nil, xerr.NewFormat("shard", "trailing bytes after cas-info bookend")
	}
	return fileBlocks, casBlocks, nil
}

// LookupChunk resolves a raw chunk hash to its owning xorb and in-xorb
// chunk index using the shard's chunk lookup table, applying the shard's
// chunk hash key if one is set. ok is false both when the table is absent
// (upload form) and when no entry matches.
func (s *Shard) LookupChunk(rawHash xhash.Hash) (xorbHash xhash.Hash, chunkIndex int, ok bool) {
	if !s.StoredForm {
		return xhash.Hash{}, 0, false
	}
	key := chunkLookupKey(rawHash, s.ChunkHashKey)
	entry, found := FindChunk(s.ChunkLookup, key)
	if !found {
		return xhash.Hash{}, 0, false
	}
	if int(entry.CasIndex) >= len(s.CasBlocks) {
		return xhash.Hash{}, 0, false
	}
	return s.CasBlocks[entry.CasIndex].XorbHash, int(entry.ChunkIndex), true
}
