package pkg

import (
	"io"

	"github.com/hansbonini/sbktools/pkg/common"
)

// bundleProbeAlign is the boundary nested containers sit on inside bundle
// files.
const bundleProbeAlign = 16

// NestedContainer is one container discovered inside a bundle file.
type NestedContainer struct {
	Offset  int64
	Length  int64
	Version VersionTag
	Streams int
}

// ScanBundle probes a bundle file for nested SBK containers at aligned
// boundaries. A magic hit alone is not enough: the candidate must also parse
// cleanly, so payload bytes that happen to spell a magic are rejected.
// Modern candidates are validated from their header arithmetic alone; the
// audio engine is not consulted during a scan.
func ScanBundle(r io.ReaderAt, fileSize int64) ([]NestedContainer, error) {
	var found []NestedContainer

	for offset := int64(0); offset+4 <= fileSize; offset += bundleProbeAlign {
		tag, err := DetectVersion(r, offset, fileSize-offset)
		if err != nil || tag == VersionUnknown {
			continue
		}

		nested, ok := probeContainer(r, offset, fileSize-offset, tag)
		if !ok {
			continue
		}

		common.LogInfo(common.InfoBundleContainer, nested.Version, nested.Offset, nested.Length)
		found = append(found, nested)

		// Skip past this container so its payload is not re-probed.
		next := nested.Offset + nested.Length
		if rem := next % bundleProbeAlign; rem != 0 {
			next += bundleProbeAlign - rem
		}
		offset = next - bundleProbeAlign
	}

	return found, nil
}

// probeContainer validates a magic hit by parsing the candidate range and
// derives the container's byte length within the bundle.
func probeContainer(r io.ReaderAt, offset, maxLength int64, tag VersionTag) (NestedContainer, bool) {
	switch tag {
	case VersionLegacy3, VersionLegacy4:
		chunks, err := ParseLegacy(r, offset, maxLength, tag)
		if err != nil {
			return NestedContainer{}, false
		}
		length := legacyContainerLength(chunks, offset, maxLength)
		return NestedContainer{Offset: offset, Length: length, Version: tag, Streams: len(chunks)}, true
	case VersionModern:
		header, _, _, err := readModernLayout(r, Range{Offset: offset, Length: maxLength})
		if err != nil {
			return NestedContainer{}, false
		}
		return NestedContainer{
			Offset:  offset,
			Length:  int64(header.DeclaredPayloadSize),
			Version: tag,
			Streams: int(header.TotalSamples),
		}, true
	default:
		return NestedContainer{}, false
	}
}

// legacyContainerLength derives how many bytes of the bundle the legacy
// container occupies: up to the final payload's guard-padded end, clamped
// when the trailing padding is absent at end of file.
func legacyContainerLength(chunks []Chunk, offset, maxLength int64) int64 {
	if len(chunks) == 0 {
		return legacyHeaderSize
	}
	last := chunks[len(chunks)-1]
	end := last.DataOffset - offset + common.AlignWithGuard(last.DataSize)
	if end > maxLength {
		end = maxLength
	}
	return end
}
