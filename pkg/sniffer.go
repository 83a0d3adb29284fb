package pkg

import (
	"context"
	"io"
)

// Container magics. SBK3 and SBK4 share the legacy layout; SBK5 is the
// modern layout whose payload is opaque beyond what the audio engine exposes.
var (
	magicLegacy3 = [4]byte{'S', 'B', 'K', '3'}
	magicLegacy4 = [4]byte{'S', 'B', 'K', '4'}
	magicModern  = [4]byte{'S', 'B', 'K', '5'}
)

// DetectVersion classifies the byte range starting at base by reading its
// 4-byte magic value. An unreadable or short range is reported as truncated;
// an unrecognized magic as VersionUnknown with no error, since callers use
// the tag to skip foreign files.
func DetectVersion(r io.ReaderAt, base, length int64) (VersionTag, error) {
	if length < 4 {
		return VersionUnknown, &ParseError{Kind: ParseTruncated, Offset: base, Detail: "range shorter than magic"}
	}
	var magic [4]byte
	if _, err := r.ReadAt(magic[:], base); err != nil {
		return VersionUnknown, &ParseError{Kind: ParseTruncated, Offset: base, Detail: err.Error()}
	}
	switch magic {
	case magicLegacy3:
		return VersionLegacy3, nil
	case magicLegacy4:
		return VersionLegacy4, nil
	case magicModern:
		return VersionModern, nil
	default:
		return VersionUnknown, nil
	}
}

// ParseContainer detects the container version of the given range and walks
// its structure, returning one Chunk per embedded stream. Legacy containers
// are parsed without any external call; modern containers consult the audio
// engine for logical metadata while the byte windows are re-derived locally.
// All offsets in the returned chunks are absolute within the file.
func ParseContainer(ctx context.Context, r io.ReaderAt, rng Range, engine AudioEngine) (VersionTag, []Chunk, error) {
	tag, err := DetectVersion(r, rng.Offset, rng.Length)
	if err != nil {
		return VersionUnknown, nil, err
	}
	switch tag {
	case VersionLegacy3, VersionLegacy4:
		chunks, err := ParseLegacy(r, rng.Offset, rng.Length, tag)
		return tag, chunks, err
	case VersionModern:
		chunks, err := LocateModern(ctx, r, rng, engine)
		return tag, chunks, err
	default:
		return VersionUnknown, nil, &ParseError{Kind: ParseUnknownVersion, Offset: rng.Offset, Detail: "no known container magic"}
	}
}
