package pkg

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hansbonini/sbktools/pkg/common"
)

// LegacyHeader is the fixed-layout header shared by SBK3 and SBK4.
type LegacyHeader struct {
	Magic          [4]byte
	TotalSamples   uint32
	HeaderSize     uint32 // total header size; descriptors start here
	DescriptorSize uint32 // uniform descriptor size, unused in variable mode
	Flags          uint32
}

// legacyHeaderSize is the fixed portion of LegacyHeader on disk.
const legacyHeaderSize = 20

// Flag bits of LegacyHeader.Flags.
const (
	FlagVariableDescriptors = 1 << 0 // descriptors declare their own length inline
	FlagNamedSamples        = 1 << 1 // descriptors carry NUL-padded names
)

// legacyDescriptor is the fixed part of one sample descriptor. In named
// containers the name bytes follow immediately after.
type legacyDescriptor struct {
	DataSize      uint32
	FormatCode    uint16
	Channels      uint16
	SampleRate    uint32
	SampleFlags   uint16
	BitsPerSample uint16
	LoopStart     uint32
	LoopEnd       uint32
}

// legacyDescriptorFixed is the on-disk size of legacyDescriptor.
const legacyDescriptorFixed = 24

// sampleFlagLoop marks a descriptor whose loop points are meaningful.
const sampleFlagLoop = 1 << 0

// ParseLegacy walks a legacy container at [base, base+length) and produces
// one Chunk per embedded stream. Payload offsets are cumulative: the first
// payload begins right after the last descriptor, and every subsequent
// offset is the previous offset plus the previous payload's guard-padded
// size. No external decode call is made.
func ParseLegacy(r io.ReaderAt, base, length int64, tag VersionTag) ([]Chunk, error) {
	section := io.NewSectionReader(r, base, length)

	var header LegacyHeader
	if err := binary.Read(section, binary.LittleEndian, &header); err != nil {
		return nil, &ParseError{Kind: ParseTruncated, Offset: base, Detail: fmt.Sprintf("reading header: %v", err)}
	}

	var formats map[uint16]SampleFormat
	switch {
	case header.Magic == magicLegacy3 && tag == VersionLegacy3:
		formats = legacy3Formats
	case header.Magic == magicLegacy4 && tag == VersionLegacy4:
		formats = legacy4Formats
	default:
		return nil, &ParseError{Kind: ParseUnknownVersion, Offset: base, Detail: fmt.Sprintf("magic %q does not match %s", header.Magic[:], tag)}
	}

	if int64(header.HeaderSize) < legacyHeaderSize || int64(header.HeaderSize) > length {
		return nil, &ParseError{Kind: ParseTruncated, Offset: base, Detail: fmt.Sprintf("header size %d outside container", header.HeaderSize)}
	}

	common.LogDebug(common.DebugHeaderInfo, header.Magic[:], header.TotalSamples, header.HeaderSize, header.DescriptorSize, header.Flags)

	variable := header.Flags&FlagVariableDescriptors != 0
	// SBK3 predates named descriptors; the bit is reserved there.
	named := header.Flags&FlagNamedSamples != 0 && tag == VersionLegacy4

	descs := make([]legacyDescriptor, 0, header.TotalSamples)
	names := make([]string, 0, header.TotalSamples)

	cursor := int64(header.HeaderSize)
	for i := uint32(0); i < header.TotalSamples; i++ {
		descOffset := cursor
		if !variable {
			descOffset = int64(header.HeaderSize) + int64(i)*int64(header.DescriptorSize)
		}

		desc, name, next, err := readLegacyDescriptor(section, descOffset, &header, variable, named)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Offset += base
			}
			return nil, err
		}
		common.LogDebug(common.DebugDescriptor, i, desc.DataSize, desc.FormatCode, desc.Channels, desc.SampleRate)
		descs = append(descs, *desc)
		names = append(names, name)
		cursor = next
	}

	// First payload begins right after the final descriptor.
	dataStart := cursor
	if !variable {
		dataStart = int64(header.HeaderSize) + int64(header.TotalSamples)*int64(header.DescriptorSize)
	}

	chunks := make([]Chunk, 0, len(descs))
	offset := dataStart
	for i, desc := range descs {
		size := int64(desc.DataSize)
		if offset+size > length {
			return nil, &ParseError{
				Kind:   ParseOffsetOverflow,
				Offset: base + offset,
				Detail: fmt.Sprintf("chunk %d size %d exceeds container length %d", i, size, length),
			}
		}

		chunk := buildLegacyChunk(i, desc, names[i], base+offset, formats)
		common.LogDebug(common.DebugChunkWindow, i, chunk.DataOffset, chunk.DataSize, common.AlignWithGuard(size))
		chunks = append(chunks, chunk)

		// Guard-padded cumulative advance. Getting this wrong misidentifies
		// every later sample.
		offset += common.AlignWithGuard(size)
	}

	return chunks, nil
}

// readLegacyDescriptor reads one descriptor at descOffset within the
// container section and returns it together with its decoded name and the
// cursor position following it.
func readLegacyDescriptor(section *io.SectionReader, descOffset int64, header *LegacyHeader, variable, named bool) (*legacyDescriptor, string, int64, error) {
	if _, err := section.Seek(descOffset, io.SeekStart); err != nil {
		return nil, "", 0, &ParseError{Kind: ParseTruncated, Offset: descOffset, Detail: err.Error()}
	}

	descLen := int64(header.DescriptorSize)
	fixedStart := descOffset
	if variable {
		inline, err := common.ReadUint16LE(section)
		if err != nil {
			return nil, "", 0, &ParseError{Kind: ParseTruncated, Offset: descOffset, Detail: "reading inline descriptor length"}
		}
		descLen = int64(inline)
		fixedStart = descOffset + 2
		if descLen < 2+legacyDescriptorFixed {
			return nil, "", 0, &ParseError{Kind: ParseTruncated, Offset: descOffset, Detail: fmt.Sprintf("inline descriptor length %d too small", descLen)}
		}
	} else if descLen < legacyDescriptorFixed {
		return nil, "", 0, &ParseError{Kind: ParseTruncated, Offset: descOffset, Detail: fmt.Sprintf("descriptor size %d too small", descLen)}
	}

	var desc legacyDescriptor
	if err := binary.Read(section, binary.LittleEndian, &desc); err != nil {
		return nil, "", 0, &ParseError{Kind: ParseTruncated, Offset: fixedStart, Detail: fmt.Sprintf("reading descriptor: %v", err)}
	}

	var name string
	nameLen := descLen - legacyDescriptorFixed
	if variable {
		nameLen -= 2
	}
	if named && nameLen > 0 {
		raw, err := common.ReadBytes(section, int(nameLen))
		if err != nil {
			return nil, "", 0, &ParseError{Kind: ParseTruncated, Offset: fixedStart + legacyDescriptorFixed, Detail: "reading descriptor name"}
		}
		name, err = common.DecodeFixedName(raw)
		if err != nil {
			name = ""
		}
	}

	return &desc, name, descOffset + descLen, nil
}

// buildLegacyChunk converts one descriptor into its Chunk snapshot.
func buildLegacyChunk(index int, desc legacyDescriptor, name string, absOffset int64, formats map[uint16]SampleFormat) Chunk {
	format, ok := formats[desc.FormatCode]
	if !ok {
		format = FormatUnknown
	}

	if name == "" {
		name = fmt.Sprintf("stream_%d", index)
		common.LogDebug(common.WarnNoNameInDescriptor, index, name)
	}

	bits := int(desc.BitsPerSample)
	if bits == 0 {
		bits = format.BitsPerSample()
	}

	chunk := Chunk{
		Index:         index,
		Name:          name,
		DataOffset:    absOffset,
		DataSize:      int64(desc.DataSize),
		Format:        format,
		Channels:      int(desc.Channels),
		SampleRate:    int(desc.SampleRate),
		BitsPerSample: bits,
	}

	if desc.SampleFlags&sampleFlagLoop != 0 {
		chunk.LoopStart = desc.LoopStart
		chunk.LoopEnd = desc.LoopEnd
	} else {
		// No loop: the loop window is the whole stream, in sample frames.
		chunk.LoopStart = 0
		chunk.LoopEnd = pcmFrameCount(chunk)
	}

	return chunk
}

// pcmFrameCount derives the frame count of an uncompressed payload; for
// compressed formats the frame count is not knowable without decoding.
func pcmFrameCount(c Chunk) uint32 {
	if c.Channels == 0 || c.BitsPerSample == 0 {
		return 0
	}
	switch c.Format {
	case FormatPCM8, FormatPCM16, FormatPCM24, FormatPCM32, FormatFloat32:
		frameBytes := int64(c.Channels) * int64(c.BitsPerSample) / 8
		if frameBytes == 0 {
			return 0
		}
		frames, err := common.SafeInt64ToUint32(c.DataSize / frameBytes)
		if err != nil {
			return 0
		}
		return frames
	default:
		return 0
	}
}
