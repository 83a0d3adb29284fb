package pkg

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hansbonini/sbktools/pkg/common"
)

// ModernHeader is the fixed portion of an SBK5 container header. The sample
// size table follows immediately, then the name table, then the payload.
type ModernHeader struct {
	Magic               [4]byte
	Version             uint32
	TotalSamples        uint32
	SampleTableSize     uint32 // bytes; one uint32 stored size per sample
	NameTableSize       uint32
	DeclaredPayloadSize uint32 // base data offset plus the sum of all stored sizes
	FormatCode          uint32
	Flags               uint32
}

// modernHeaderSize is the on-disk size of ModernHeader.
const modernHeaderSize = 32

// modernFormats maps SBK5 header format codes. The modern layout stores one
// codec for the whole bank.
var modernFormats = map[uint32]SampleFormat{
	0: FormatPCM16,
	1: FormatFloat32,
	2: FormatADPCM,
	3: FormatVorbis,
}

// LocateModern enumerates the sub-streams of a modern container through the
// audio engine, then independently re-derives each stream's absolute byte
// window by replaying the header and sample-size-table arithmetic. The
// engine reports only logical handles; byte windows must come from the file
// itself or patching would be impossible.
//
// The sum of all stored sizes plus the base data offset must equal the
// declared payload size. A mismatch is a hard error: it means this
// arithmetic has diverged from the file's actual layout and any patch
// attempt would corrupt unrelated data.
func LocateModern(ctx context.Context, r io.ReaderAt, rng Range, engine AudioEngine) ([]Chunk, error) {
	header, sizes, baseDataOffset, err := readModernLayout(r, rng)
	if err != nil {
		return nil, err
	}

	streams, err := engine.Enumerate(ctx, rng)
	if err != nil {
		return nil, &ParseError{Kind: ParseTruncated, Offset: rng.Offset, Detail: fmt.Sprintf("engine enumeration failed: %v", err)}
	}
	if len(streams) != int(header.TotalSamples) {
		return nil, &ParseError{
			Kind:   ParseTruncated,
			Offset: rng.Offset,
			Detail: fmt.Sprintf("engine reports %d streams, header declares %d", len(streams), header.TotalSamples),
		}
	}

	bankFormat, ok := modernFormats[header.FormatCode]
	if !ok {
		bankFormat = FormatUnknown
	}

	// Modern payloads are stored back to back; the size table holds exact
	// stored sizes, so offsets accumulate without padding.
	chunks := make([]Chunk, 0, len(sizes))
	offset := rng.Offset + baseDataOffset
	for i, size := range sizes {
		info := streams[i]
		name := info.Name
		if name == "" {
			name = fmt.Sprintf("stream_%d", i)
		}
		format := info.Format
		if format == FormatUnknown {
			format = bankFormat
		}
		chunks = append(chunks, Chunk{
			Index:         i,
			Name:          name,
			DataOffset:    offset,
			DataSize:      int64(size),
			Format:        format,
			Channels:      info.Channels,
			SampleRate:    info.SampleRate,
			LoopStart:     info.LoopStart,
			LoopEnd:       info.LoopEnd,
			BitsPerSample: format.BitsPerSample(),
		})
		offset += int64(size)
	}

	return chunks, nil
}

// readModernLayout reads and validates the SBK5 header and sample size
// table, returning them with the base data offset. The declared payload
// size must equal the base offset plus every stored size; this is checked
// here, before any engine call, so a diverged layout is rejected early.
func readModernLayout(r io.ReaderAt, rng Range) (*ModernHeader, []uint32, int64, error) {
	section := io.NewSectionReader(r, rng.Offset, rng.Length)

	var header ModernHeader
	if err := binary.Read(section, binary.LittleEndian, &header); err != nil {
		return nil, nil, 0, &ParseError{Kind: ParseTruncated, Offset: rng.Offset, Detail: fmt.Sprintf("reading header: %v", err)}
	}
	if header.Magic != magicModern {
		return nil, nil, 0, &ParseError{Kind: ParseUnknownVersion, Offset: rng.Offset, Detail: fmt.Sprintf("magic %q is not SBK5", header.Magic[:])}
	}
	if int64(header.SampleTableSize) < 4*int64(header.TotalSamples) {
		return nil, nil, 0, &ParseError{
			Kind:   ParseTruncated,
			Offset: rng.Offset + modernHeaderSize,
			Detail: fmt.Sprintf("sample table %d bytes cannot hold %d entries", header.SampleTableSize, header.TotalSamples),
		}
	}

	sizes := make([]uint32, header.TotalSamples)
	if err := binary.Read(section, binary.LittleEndian, &sizes); err != nil {
		return nil, nil, 0, &ParseError{Kind: ParseTruncated, Offset: rng.Offset + modernHeaderSize, Detail: fmt.Sprintf("reading sample size table: %v", err)}
	}

	baseDataOffset := int64(modernHeaderSize) + int64(header.SampleTableSize) + int64(header.NameTableSize)
	common.LogDebug(common.DebugModernSizeTable, len(sizes), baseDataOffset)

	var total int64 = baseDataOffset
	for _, s := range sizes {
		total += int64(s)
	}
	if total != int64(header.DeclaredPayloadSize) {
		return nil, nil, 0, &ParseError{
			Kind:   ParseOffsetOverflow,
			Offset: rng.Offset + baseDataOffset,
			Detail: fmt.Sprintf("recomputed payload end %d does not match declared %d", total, header.DeclaredPayloadSize),
		}
	}
	if total > rng.Length {
		return nil, nil, 0, &ParseError{
			Kind:   ParseOffsetOverflow,
			Offset: rng.Offset + baseDataOffset,
			Detail: fmt.Sprintf("declared payload end %d exceeds container length %d", total, rng.Length),
		}
	}

	return &header, sizes, baseDataOffset, nil
}
