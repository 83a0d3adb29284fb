// Package pkg test fixtures: synthetic containers and fake collaborators.
package pkg

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hansbonini/sbktools/pkg/common"
)

// legacySample describes one sample of a synthetic legacy bank.
type legacySample struct {
	name       string
	data       []byte
	formatCode uint16
	channels   uint16
	rate       uint32
	flags      uint16
	bits       uint16
	loopStart  uint32
	loopEnd    uint32
}

// buildLegacyBank assembles a legacy container image in memory.
func buildLegacyBank(t *testing.T, magic string, headerSize, descSize, bankFlags uint32, samples []legacySample) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString(magic)
	writeLE(t, &buf, uint32(len(samples)))
	writeLE(t, &buf, headerSize)
	writeLE(t, &buf, descSize)
	writeLE(t, &buf, bankFlags)
	padTo(&buf, int(headerSize))

	variable := bankFlags&FlagVariableDescriptors != 0
	named := bankFlags&FlagNamedSamples != 0

	for _, s := range samples {
		var desc bytes.Buffer
		writeLE(t, &desc, uint32(len(s.data)))
		writeLE(t, &desc, s.formatCode)
		writeLE(t, &desc, s.channels)
		writeLE(t, &desc, s.rate)
		writeLE(t, &desc, s.flags)
		writeLE(t, &desc, s.bits)
		writeLE(t, &desc, s.loopStart)
		writeLE(t, &desc, s.loopEnd)

		if variable {
			nameBytes := []byte(s.name)
			total := 2 + desc.Len() + len(nameBytes)
			writeLE(t, &buf, uint16(total))
			buf.Write(desc.Bytes())
			buf.Write(nameBytes)
		} else {
			if named && int(descSize) > legacyDescriptorFixed {
				name := make([]byte, int(descSize)-legacyDescriptorFixed)
				copy(name, s.name)
				desc.Write(name)
			}
			padTo(&desc, int(descSize))
			buf.Write(desc.Bytes())
		}
	}

	for _, s := range samples {
		buf.Write(s.data)
		padTo(&buf, buf.Len()+int(common.AlignWithGuard(int64(len(s.data))))-len(s.data))
	}

	return buf.Bytes()
}

// buildModernBank assembles a modern container image: header, exact size
// table, optional name table, payloads stored back to back.
func buildModernBank(t *testing.T, formatCode uint32, nameTable []byte, payloads [][]byte) []byte {
	t.Helper()

	tableSize := 4 * len(payloads)
	base := modernHeaderSize + tableSize + len(nameTable)
	declared := base
	for _, p := range payloads {
		declared += len(p)
	}

	var buf bytes.Buffer
	buf.WriteString("SBK5")
	writeLE(t, &buf, uint32(1))
	writeLE(t, &buf, uint32(len(payloads)))
	writeLE(t, &buf, uint32(tableSize))
	writeLE(t, &buf, uint32(len(nameTable)))
	writeLE(t, &buf, uint32(declared))
	writeLE(t, &buf, formatCode)
	writeLE(t, &buf, uint32(0))
	for _, p := range payloads {
		writeLE(t, &buf, uint32(len(p)))
	}
	buf.Write(nameTable)
	for _, p := range payloads {
		buf.Write(p)
	}

	return buf.Bytes()
}

func writeLE(t *testing.T, w io.Writer, v interface{}) {
	t.Helper()
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		t.Fatalf("writing fixture value: %v", err)
	}
}

func padTo(buf *bytes.Buffer, size int) {
	for buf.Len() < size {
		buf.WriteByte(0)
	}
}

// writeTempFile stores content under the test's temp dir and returns its path.
func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

// patternBytes produces deterministic payload bytes for window checks.
func patternBytes(seed byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i%13)
	}
	return out
}

// fakeEngine is an AudioEngine test double fed entirely from memory.
type fakeEngine struct {
	streams   []StreamInfo
	pcm       map[int][]byte
	enumErr   error
	failAfter int // bytes after which streaming reads fail; <0 disables
	enumCalls int
	openCalls int
	fullCalls int
}

func (f *fakeEngine) Enumerate(ctx context.Context, rng Range) ([]StreamInfo, error) {
	f.enumCalls++
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	return f.streams, nil
}

func (f *fakeEngine) OpenStream(ctx context.Context, rng Range, index int) (StreamReader, error) {
	f.openCalls++
	data, ok := f.pcm[index]
	if !ok {
		return nil, fmt.Errorf("no stream %d", index)
	}
	info := f.infoFor(index, data)
	return &fakeStream{data: data, failAfter: f.failAfter, info: info}, nil
}

func (f *fakeEngine) DecodeAll(ctx context.Context, rng Range, index int) ([]byte, PCMInfo, error) {
	f.fullCalls++
	data, ok := f.pcm[index]
	if !ok {
		return nil, PCMInfo{}, fmt.Errorf("no stream %d", index)
	}
	return data, f.infoFor(index, data), nil
}

func (f *fakeEngine) infoFor(index int, data []byte) PCMInfo {
	info := PCMInfo{Channels: 1, SampleRate: 22050, BitsPerSample: 16, TotalBytes: int64(len(data))}
	if index < len(f.streams) {
		s := f.streams[index]
		if s.Channels > 0 {
			info.Channels = s.Channels
		}
		if s.SampleRate > 0 {
			info.SampleRate = s.SampleRate
		}
	}
	return info
}

type fakeStream struct {
	data      []byte
	pos       int
	failAfter int
	info      PCMInfo
}

func (s *fakeStream) Read(p []byte) (int, error) {
	if s.failAfter >= 0 && s.pos >= s.failAfter {
		return 0, fmt.Errorf("simulated stream failure at byte %d", s.pos)
	}
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	if s.failAfter >= 0 && s.pos+n > s.failAfter {
		n = s.failAfter - s.pos
	}
	s.pos += n
	return n, nil
}

func (s *fakeStream) Close() error  { return nil }
func (s *fakeStream) Info() PCMInfo { return s.info }

// fakeBuildTool simulates the external encoder: it writes an output file
// whose size is a function of the requested quality.
type fakeBuildTool struct {
	sizeFor func(quality int) int64
	err     error
	builds  int
	trials  []int
}

func (f *fakeBuildTool) Build(ctx context.Context, req BuildRequest) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.builds++
	f.trials = append(f.trials, req.Quality)
	if f.err != nil {
		return 0, f.err
	}
	size := f.sizeFor(req.Quality)
	if err := os.WriteFile(req.OutputPath, patternBytes(0xA0, int(size)), 0644); err != nil {
		return 0, err
	}
	return size, nil
}
