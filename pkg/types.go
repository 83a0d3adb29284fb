// Package pkg provides functionality for processing SBK sound bank containers.
// It covers the legacy SBK3/SBK4 layouts and the modern SBK5 layout, both of
// which may appear standalone or nested inside a larger bundle file.
package pkg

import (
	"context"
	"io"
)

// VersionTag identifies the container layout detected from a magic value.
type VersionTag int

const (
	VersionUnknown VersionTag = iota
	VersionLegacy3
	VersionLegacy4
	VersionModern
)

// String returns the human readable name of the version tag.
func (v VersionTag) String() string {
	switch v {
	case VersionLegacy3:
		return "SBK3"
	case VersionLegacy4:
		return "SBK4"
	case VersionModern:
		return "SBK5"
	default:
		return "unknown"
	}
}

// SampleFormat identifies the encoding of one embedded stream's payload.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatPCM8
	FormatPCM16
	FormatPCM24
	FormatPCM32
	FormatFloat32
	FormatADPCM
	FormatVorbis
)

// String returns the short name of the sample format.
func (f SampleFormat) String() string {
	switch f {
	case FormatPCM8:
		return "pcm8"
	case FormatPCM16:
		return "pcm16"
	case FormatPCM24:
		return "pcm24"
	case FormatPCM32:
		return "pcm32"
	case FormatFloat32:
		return "float32"
	case FormatADPCM:
		return "adpcm"
	case FormatVorbis:
		return "vorbis"
	default:
		return "unknown"
	}
}

// BitsPerSample returns the decoded sample width for PCM formats, and the
// width the decode bridge produces for compressed formats.
func (f SampleFormat) BitsPerSample() int {
	switch f {
	case FormatPCM8:
		return 8
	case FormatPCM16:
		return 16
	case FormatPCM24:
		return 24
	case FormatPCM32, FormatFloat32:
		return 32
	case FormatADPCM, FormatVorbis:
		return 16
	default:
		return 0
	}
}

// VariableBitrate reports whether builds targeting this format expose a
// quality parameter. Fixed-bitrate targets produce a single deterministic
// build; variable-bitrate targets are reconciled by a quality search.
func (f SampleFormat) VariableBitrate() bool {
	return f == FormatVorbis
}

// StreamsReliably reports whether the streaming decode path is safe for this
// format. Legacy ADPCM payloads are decoded fully into memory instead; the
// streaming path truncates them on some block boundaries.
func (f SampleFormat) StreamsReliably() bool {
	return f != FormatADPCM
}

// Format code tables. The codes changed between SBK3 and SBK4, so each
// version carries its own table.
var legacy3Formats = map[uint16]SampleFormat{
	0: FormatPCM8,
	1: FormatPCM16,
	2: FormatPCM24,
	3: FormatPCM32,
	4: FormatFloat32,
	5: FormatADPCM,
}

var legacy4Formats = map[uint16]SampleFormat{
	0: FormatPCM16,
	1: FormatPCM8,
	2: FormatPCM24,
	3: FormatPCM32,
	4: FormatFloat32,
	5: FormatADPCM,
	6: FormatVorbis,
}

// ContainerFile describes one opened container. Version is re-detected on
// every load; the struct is read-only input for all downstream components.
type ContainerFile struct {
	Path       string
	Size       int64
	Version    VersionTag
	BaseOffset int64 // non-zero when the container is nested inside a bundle
	Length     int64 // byte length of the container range itself
}

// Chunk is an immutable snapshot of one embedded stream, recomputed on every
// parse pass. DataOffset is absolute from the start of the file, including
// any bundle nesting offset.
type Chunk struct {
	Index         int
	Name          string
	DataOffset    int64
	DataSize      int64
	Format        SampleFormat
	Channels      int
	SampleRate    int
	LoopStart     uint32
	LoopEnd       uint32
	BitsPerSample int
}

// RebuildStatus is the terminal state of a rebuild operation.
type RebuildStatus int

const (
	StatusDone RebuildStatus = iota
	StatusFailed
	StatusOversizedConfirmationNeeded
	StatusCancelledByUser
)

// String returns the human readable name of the rebuild status.
func (s RebuildStatus) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusOversizedConfirmationNeeded:
		return "oversized-confirmation-needed"
	case StatusCancelledByUser:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RebuildResult reports the outcome of one rebuild operation.
type RebuildResult struct {
	Status        RebuildStatus
	OriginalSize  int64
	NewSize       int64
	WorkspacePath string // engine-owned temporary build directory, deleted on completion or failure
	Message       string
}

// BatchItem is one pending replacement: a chunk selector plus the path of
// the replacement source audio. Items are created by matching tools and
// consumed by the size-reconciliation engine.
type BatchItem struct {
	ChunkIndex    int    `yaml:"chunk"`
	ChunkName     string `yaml:"name,omitempty"`
	SourcePath    string `yaml:"source"`
	AllowOversize bool   `yaml:"allow_oversize,omitempty"`
}

// BatchFile is the on-disk YAML description of a batch replacement run.
type BatchFile struct {
	Container string      `yaml:"container"`
	Output    string      `yaml:"output"`
	Items     []BatchItem `yaml:"items"`
}

// Range addresses a container (or nested sub-container) inside a file on
// disk. Length covers the container range, not the whole file.
type Range struct {
	Path   string
	Offset int64
	Length int64
}

// StreamInfo is the logical metadata the audio engine reports for one
// sub-stream of a modern container. The engine intentionally does not
// expose byte offsets; the locator re-derives those itself.
type StreamInfo struct {
	Index      int
	Name       string
	Format     SampleFormat
	Channels   int
	SampleRate int
	LoopStart  uint32
	LoopEnd    uint32
}

// PCMInfo describes the decoded PCM a stream reader or full decode yields.
type PCMInfo struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	TotalBytes    int64 // 0 when the engine cannot predict the decoded size
}

// StreamReader delivers decoded PCM incrementally.
type StreamReader interface {
	io.ReadCloser
	Info() PCMInfo
}

// AudioEngine is the narrow interface the core consumes from the external
// audio engine: enumerate sub-streams, open one as a decodable stream, or
// decode one fully into memory. Implementations are not required to be
// reentrant; see LockedEngine.
type AudioEngine interface {
	Enumerate(ctx context.Context, rng Range) ([]StreamInfo, error)
	OpenStream(ctx context.Context, rng Range, index int) (StreamReader, error)
	DecodeAll(ctx context.Context, rng Range, index int) ([]byte, PCMInfo, error)
}

// BuildRequest is one invocation of the external build tool.
type BuildRequest struct {
	InputPath  string
	OutputPath string
	Format     SampleFormat
	Quality    int // variable-bitrate targets only
}

// BuildTool invokes the external encoder. Success is exit code zero plus a
// non-empty output file; the returned value is the output file's byte size.
type BuildTool interface {
	Build(ctx context.Context, req BuildRequest) (int64, error)
}
