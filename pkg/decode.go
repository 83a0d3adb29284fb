package pkg

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hansbonini/sbktools/pkg/common"
)

// ProgressFunc receives incremental decode progress. total is 0 when the
// engine cannot predict the decoded size up front.
type ProgressFunc func(done, total int64)

// decodeCopyChunk is the copy granularity of the streaming path.
const decodeCopyChunk = 32 * 1024

// DecodeBridge turns a Chunk plus its source container into decoded PCM.
// Two strategies exist: the streaming path pulls frames incrementally, and
// the full in-memory path decodes the whole sub-stream before any output
// write begins. Selection is a static classification by sample format, not
// a runtime retry: a mid-write streaming failure is reported, never
// silently retried, so a partially written output cannot be mistaken for a
// complete one.
type DecodeBridge struct {
	engine AudioEngine
}

// NewDecodeBridge creates a decode bridge over the given engine.
func NewDecodeBridge(engine AudioEngine) *DecodeBridge {
	return &DecodeBridge{engine: engine}
}

// Decode writes the chunk's decoded PCM to w and returns its PCM layout.
// Progress is reported as bytes decoded so far against the total when known.
func (b *DecodeBridge) Decode(ctx context.Context, rng Range, chunk Chunk, w io.Writer, progress ProgressFunc) (PCMInfo, error) {
	if chunk.Format == FormatUnknown {
		return PCMInfo{}, &DecodeError{Kind: DecodeUnsupportedFormat, ChunkIndex: chunk.Index, Err: fmt.Errorf("format code not recognized")}
	}

	if chunk.Format.StreamsReliably() {
		common.LogDebug(common.DebugDecodeStrategy, chunk.Index, chunk.Format, "streaming")
		return b.decodeStreaming(ctx, rng, chunk, w, progress)
	}
	common.LogDebug(common.DebugDecodeStrategy, chunk.Index, chunk.Format, "full in-memory")
	return b.decodeFull(ctx, rng, chunk, w, progress)
}

func (b *DecodeBridge) decodeStreaming(ctx context.Context, rng Range, chunk Chunk, w io.Writer, progress ProgressFunc) (PCMInfo, error) {
	stream, err := b.engine.OpenStream(ctx, rng, chunk.Index)
	if err != nil {
		return PCMInfo{}, &DecodeError{Kind: DecodeStreamFailure, ChunkIndex: chunk.Index, Err: err}
	}
	defer stream.Close()

	info := stream.Info()
	buf := make([]byte, decodeCopyChunk)
	var done int64
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return info, &DecodeError{Kind: DecodeStreamFailure, ChunkIndex: chunk.Index, Err: werr}
			}
			done += int64(n)
			if progress != nil {
				progress(done, info.TotalBytes)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return info, &DecodeError{Kind: DecodeStreamFailure, ChunkIndex: chunk.Index, Err: err}
		}
	}
	return info, nil
}

func (b *DecodeBridge) decodeFull(ctx context.Context, rng Range, chunk Chunk, w io.Writer, progress ProgressFunc) (PCMInfo, error) {
	data, info, err := b.engine.DecodeAll(ctx, rng, chunk.Index)
	if err != nil {
		return PCMInfo{}, &DecodeError{Kind: DecodeStreamFailure, ChunkIndex: chunk.Index, Err: err}
	}
	if _, err := w.Write(data); err != nil {
		return info, &DecodeError{Kind: DecodeStreamFailure, ChunkIndex: chunk.Index, Err: err}
	}
	if progress != nil {
		progress(int64(len(data)), int64(len(data)))
	}
	return info, nil
}

// ExtractWAV decodes one chunk and writes it to outPath wrapped in a
// minimal uncompressed WAV header.
func (b *DecodeBridge) ExtractWAV(ctx context.Context, rng Range, chunk Chunk, outPath string, progress ProgressFunc) error {
	var pcm bytes.Buffer
	info, err := b.Decode(ctx, rng, chunk, &pcm, progress)
	if err != nil {
		return err
	}
	if err := WriteWAV(outPath, pcm.Bytes(), info); err != nil {
		return common.FormatError(common.ErrFailedToWriteWAV, err)
	}
	common.LogInfo(common.InfoChunkExtracted, chunk.Index, chunk.Name, outPath)
	return nil
}

// WriteWAV wraps interleaved little-endian PCM bytes in a WAV container.
func WriteWAV(path string, pcm []byte, info PCMInfo) error {
	if info.Channels <= 0 || info.SampleRate <= 0 {
		return fmt.Errorf("invalid PCM layout: %d channels at %d Hz", info.Channels, info.SampleRate)
	}
	samples, err := pcmToInts(pcm, info.BitsPerSample)
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	enc := wav.NewEncoder(out, info.SampleRate, info.BitsPerSample, info.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: info.Channels, SampleRate: info.SampleRate},
		Data:           samples,
		SourceBitDepth: info.BitsPerSample,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// pcmToInts unpacks interleaved little-endian PCM into per-sample ints.
func pcmToInts(pcm []byte, bits int) ([]int, error) {
	switch bits {
	case 8:
		samples := make([]int, len(pcm))
		for i, b := range pcm {
			samples[i] = int(b)
		}
		return samples, nil
	case 16:
		samples := make([]int, len(pcm)/2)
		for i := range samples {
			samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		}
		return samples, nil
	case 24:
		samples := make([]int, len(pcm)/3)
		for i := range samples {
			b := pcm[i*3 : i*3+3]
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v -= 0x1000000
			}
			samples[i] = int(v)
		}
		return samples, nil
	case 32:
		samples := make([]int, len(pcm)/4)
		for i := range samples {
			samples[i] = int(int32(binary.LittleEndian.Uint32(pcm[i*4:])))
		}
		return samples, nil
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bits)
	}
}
