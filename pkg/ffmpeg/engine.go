// Package ffmpeg provides the production implementations of the audio
// engine and build tool collaborators, both backed by child processes.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/hansbonini/sbktools/pkg"
	"github.com/hansbonini/sbktools/pkg/common"
)

// Engine implements pkg.AudioEngine over ffprobe and ffmpeg child
// processes. Decoded output is always interleaved signed 16-bit
// little-endian PCM. Wrap it in pkg.NewLockedEngine before sharing across
// goroutines.
type Engine struct {
	FFmpegPath  string
	FFprobePath string
}

// NewEngine creates an engine that expects ffmpeg and ffprobe on PATH.
func NewEngine() *Engine {
	return &Engine{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}
}

// probeOutput mirrors the subset of ffprobe's JSON this engine reads.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	Index      int               `json:"index"`
	CodecType  string            `json:"codec_type"`
	CodecName  string            `json:"codec_name"`
	Channels   int               `json:"channels"`
	SampleRate string            `json:"sample_rate"`
	Tags       map[string]string `json:"tags"`
}

// Enumerate lists the audio sub-streams of the container range with their
// logical metadata. Byte offsets are never reported here; the locator
// derives those from the container itself.
func (e *Engine) Enumerate(ctx context.Context, rng pkg.Range) ([]pkg.StreamInfo, error) {
	path, cleanup, err := e.materializeRange(rng)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, e.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w (%s)", err, stderr.String())
	}

	var probed probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &probed); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	var infos []pkg.StreamInfo
	for _, s := range probed.Streams {
		if s.CodecType != "audio" {
			continue
		}
		rate, _ := strconv.Atoi(s.SampleRate)
		infos = append(infos, pkg.StreamInfo{
			Index:      len(infos),
			Name:       s.Tags["title"],
			Format:     codecToFormat(s.CodecName),
			Channels:   s.Channels,
			SampleRate: rate,
		})
	}
	return infos, nil
}

// OpenStream starts an incremental decode of one sub-stream. The returned
// reader delivers s16le PCM; closing it terminates the child process.
func (e *Engine) OpenStream(ctx context.Context, rng pkg.Range, index int) (pkg.StreamReader, error) {
	infos, err := e.Enumerate(ctx, rng)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(infos) {
		return nil, fmt.Errorf("stream index %d out of range (%d streams)", index, len(infos))
	}
	info := infos[index]

	path, cleanup, err := e.materializeRange(rng)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.FFmpegPath,
		"-v", "error",
		"-i", path,
		"-map", fmt.Sprintf("0:a:%d", index),
		"-f", "s16le",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, err
	}

	return &processStream{
		cmd:     cmd,
		stdout:  stdout,
		cleanup: cleanup,
		info: pkg.PCMInfo{
			Channels:      info.Channels,
			SampleRate:    info.SampleRate,
			BitsPerSample: 16,
		},
	}, nil
}

// DecodeAll decodes one sub-stream fully into memory before returning.
// This is the path for formats the streaming decode truncates.
func (e *Engine) DecodeAll(ctx context.Context, rng pkg.Range, index int) ([]byte, pkg.PCMInfo, error) {
	stream, err := e.OpenStream(ctx, rng, index)
	if err != nil {
		return nil, pkg.PCMInfo{}, err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, pkg.PCMInfo{}, err
	}
	info := stream.Info()
	info.TotalBytes = int64(len(data))
	return data, info, nil
}

// materializeRange hands the engine a plain file for the container range.
// A whole-file range is used as is; a nested range is copied out to a
// temporary file, since the child tools cannot seek into bundles.
func (e *Engine) materializeRange(rng pkg.Range) (string, func(), error) {
	fi, err := os.Stat(rng.Path)
	if err != nil {
		return "", nil, err
	}
	if rng.Offset == 0 && (rng.Length == 0 || rng.Length == fi.Size()) {
		return rng.Path, func() {}, nil
	}

	src, err := os.Open(rng.Path)
	if err != nil {
		return "", nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "sbkrange-*")
	if err != nil {
		return "", nil, err
	}
	tmpPath := tmp.Name()
	section := io.NewSectionReader(src, rng.Offset, rng.Length)
	if _, err := io.Copy(tmp, section); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", nil, err
	}
	common.LogDebug(common.DebugRangeMaterialized, rng.Offset, rng.Offset+rng.Length, tmpPath)
	return tmpPath, func() { os.Remove(tmpPath) }, nil
}

// codecToFormat maps ffprobe codec names onto sample formats.
func codecToFormat(codec string) pkg.SampleFormat {
	switch codec {
	case "pcm_u8", "pcm_s8":
		return pkg.FormatPCM8
	case "pcm_s16le", "pcm_s16be":
		return pkg.FormatPCM16
	case "pcm_s24le", "pcm_s24be":
		return pkg.FormatPCM24
	case "pcm_s32le", "pcm_s32be":
		return pkg.FormatPCM32
	case "pcm_f32le", "pcm_f32be":
		return pkg.FormatFloat32
	case "adpcm_ima_wav", "adpcm_ms":
		return pkg.FormatADPCM
	case "vorbis":
		return pkg.FormatVorbis
	default:
		return pkg.FormatUnknown
	}
}

// processStream adapts a running ffmpeg child process to pkg.StreamReader.
type processStream struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	cleanup func()
	info    pkg.PCMInfo
	closed  bool
}

func (s *processStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *processStream) Info() pkg.PCMInfo {
	return s.info
}

// Close terminates the child process and releases the materialized range.
// Safe to call after EOF; the wait error of an already-exited process is
// reported as is.
func (s *processStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stdout.Close()
	if s.cmd.ProcessState == nil && s.cmd.Process != nil {
		// Early close: do not leave an orphaned decoder running.
		s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	s.cleanup()
	return err
}
