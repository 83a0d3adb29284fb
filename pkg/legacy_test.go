package pkg

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/hansbonini/sbktools/pkg/common"
)

// Reference layout: three samples behind a 64-byte header with 32-byte
// descriptors. Data begins at 64+3*32=160; sample 0 (1000 bytes) pads to
// 1008 and sample 1 (500 bytes) pads to 504.
func TestParseLegacyReferenceLayout(t *testing.T) {
	samples := []legacySample{
		{data: make([]byte, 1000), formatCode: 0, channels: 2, rate: 44100},
		{data: make([]byte, 500), formatCode: 0, channels: 1, rate: 22050},
		{data: make([]byte, 300), formatCode: 0, channels: 1, rate: 22050},
	}
	bank := buildLegacyBank(t, "SBK4", 64, 32, 0, samples)

	chunks, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy4)
	if err != nil {
		t.Fatalf("ParseLegacy() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}

	wantOffsets := []int64{160, 1168, 1672}
	wantSizes := []int64{1000, 500, 300}
	for i, c := range chunks {
		if c.DataOffset != wantOffsets[i] {
			t.Errorf("chunk %d DataOffset = %d, want %d", i, c.DataOffset, wantOffsets[i])
		}
		if c.DataSize != wantSizes[i] {
			t.Errorf("chunk %d DataSize = %d, want %d", i, c.DataSize, wantSizes[i])
		}
		if c.Index != i {
			t.Errorf("chunk %d Index = %d", i, c.Index)
		}
	}
}

func TestParseLegacySynthesizedNames(t *testing.T) {
	samples := []legacySample{
		{data: make([]byte, 64), formatCode: 1},
		{data: make([]byte, 64), formatCode: 1},
	}
	bank := buildLegacyBank(t, "SBK3", 64, 32, 0, samples)

	chunks, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy3)
	if err != nil {
		t.Fatalf("ParseLegacy() error = %v", err)
	}
	for i, c := range chunks {
		want := "stream_" + string(rune('0'+i))
		if c.Name != want {
			t.Errorf("chunk %d Name = %q, want %q", i, c.Name, want)
		}
	}
}

func TestParseLegacyNamedDescriptors(t *testing.T) {
	samples := []legacySample{
		{name: "drum_kick", data: make([]byte, 128), formatCode: 0, channels: 1, rate: 32000},
		{name: "drum_snare", data: make([]byte, 96), formatCode: 0, channels: 1, rate: 32000},
	}
	bank := buildLegacyBank(t, "SBK4", 32, 56, FlagNamedSamples, samples)

	chunks, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy4)
	if err != nil {
		t.Fatalf("ParseLegacy() error = %v", err)
	}
	if chunks[0].Name != "drum_kick" {
		t.Errorf("chunk 0 Name = %q, want %q", chunks[0].Name, "drum_kick")
	}
	if chunks[1].Name != "drum_snare" {
		t.Errorf("chunk 1 Name = %q, want %q", chunks[1].Name, "drum_snare")
	}
}

// SBK3 predates named descriptors; the flag bit must be ignored there and
// the name region treated as reserved bytes.
func TestParseLegacyV3IgnoresNamedFlag(t *testing.T) {
	samples := []legacySample{
		{name: "ignored", data: make([]byte, 64), formatCode: 1},
	}
	bank := buildLegacyBank(t, "SBK3", 32, 56, FlagNamedSamples, samples)

	chunks, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy3)
	if err != nil {
		t.Fatalf("ParseLegacy() error = %v", err)
	}
	if chunks[0].Name != "stream_0" {
		t.Errorf("chunk 0 Name = %q, want synthesized stream_0", chunks[0].Name)
	}
}

func TestParseLegacyVariableDescriptors(t *testing.T) {
	samples := []legacySample{
		{name: "a", data: make([]byte, 100), formatCode: 0, channels: 1, rate: 22050},
		{name: "longer_name", data: make([]byte, 200), formatCode: 0, channels: 2, rate: 44100},
		{name: "x", data: make([]byte, 50), formatCode: 0, channels: 1, rate: 11025},
	}
	bank := buildLegacyBank(t, "SBK4", 20, 0, FlagVariableDescriptors|FlagNamedSamples, samples)

	chunks, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy4)
	if err != nil {
		t.Fatalf("ParseLegacy() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}

	// Descriptors: 20 + (2+24+1) + (2+24+11) + (2+24+1) = 111.
	if chunks[0].DataOffset != 111 {
		t.Errorf("chunk 0 DataOffset = %d, want 111", chunks[0].DataOffset)
	}
	if chunks[1].Name != "longer_name" {
		t.Errorf("chunk 1 Name = %q, want %q", chunks[1].Name, "longer_name")
	}
	if got, want := chunks[1].DataOffset, chunks[0].DataOffset+104; got != want {
		t.Errorf("chunk 1 DataOffset = %d, want %d", got, want)
	}
}

// The same format code means different things in v3 and v4.
func TestParseLegacyFormatTables(t *testing.T) {
	samples := []legacySample{{data: make([]byte, 64), formatCode: 0, channels: 1, rate: 22050}}

	v3 := buildLegacyBank(t, "SBK3", 64, 32, 0, samples)
	chunks, err := ParseLegacy(bytes.NewReader(v3), 0, int64(len(v3)), VersionLegacy3)
	if err != nil {
		t.Fatalf("ParseLegacy(v3) error = %v", err)
	}
	if chunks[0].Format != FormatPCM8 {
		t.Errorf("v3 format code 0 = %v, want FormatPCM8", chunks[0].Format)
	}

	v4 := buildLegacyBank(t, "SBK4", 64, 32, 0, samples)
	chunks, err = ParseLegacy(bytes.NewReader(v4), 0, int64(len(v4)), VersionLegacy4)
	if err != nil {
		t.Fatalf("ParseLegacy(v4) error = %v", err)
	}
	if chunks[0].Format != FormatPCM16 {
		t.Errorf("v4 format code 0 = %v, want FormatPCM16", chunks[0].Format)
	}
}

func TestParseLegacyLoopPoints(t *testing.T) {
	samples := []legacySample{
		{data: make([]byte, 400), formatCode: 0, channels: 2, rate: 44100, bits: 16,
			flags: sampleFlagLoop, loopStart: 10, loopEnd: 90},
		{data: make([]byte, 400), formatCode: 0, channels: 2, rate: 44100, bits: 16},
	}
	bank := buildLegacyBank(t, "SBK4", 64, 32, 0, samples)

	chunks, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy4)
	if err != nil {
		t.Fatalf("ParseLegacy() error = %v", err)
	}

	if chunks[0].LoopStart != 10 || chunks[0].LoopEnd != 90 {
		t.Errorf("looped chunk = %d..%d, want 10..90", chunks[0].LoopStart, chunks[0].LoopEnd)
	}
	// No loop flag: the loop window covers the whole stream. 400 bytes of
	// 16-bit stereo is 100 frames.
	if chunks[1].LoopStart != 0 || chunks[1].LoopEnd != 100 {
		t.Errorf("unlooped chunk = %d..%d, want 0..100", chunks[1].LoopStart, chunks[1].LoopEnd)
	}
}

// Consecutive chunk windows must be disjoint and separated by exactly the
// guard-padded size of the earlier chunk.
func TestParseLegacyWindowsDisjoint(t *testing.T) {
	samples := []legacySample{
		{data: make([]byte, 777), formatCode: 0},
		{data: make([]byte, 8), formatCode: 0},
		{data: make([]byte, 1023), formatCode: 0},
		{data: make([]byte, 64), formatCode: 0},
	}
	bank := buildLegacyBank(t, "SBK4", 64, 32, 0, samples)

	chunks, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy4)
	if err != nil {
		t.Fatalf("ParseLegacy() error = %v", err)
	}

	for i := 0; i < len(chunks)-1; i++ {
		gap := chunks[i+1].DataOffset - chunks[i].DataOffset
		padded := (chunks[i].DataSize/8 + 1) * 8
		if gap != padded {
			t.Errorf("gap after chunk %d = %d, want padded size %d", i, gap, padded)
		}
		if chunks[i].DataOffset+chunks[i].DataSize > chunks[i+1].DataOffset {
			t.Errorf("chunk %d window overlaps chunk %d", i, i+1)
		}
	}
	last := chunks[len(chunks)-1]
	if last.DataOffset+last.DataSize > int64(len(bank)) {
		t.Errorf("last chunk end %d exceeds file length %d", last.DataOffset+last.DataSize, len(bank))
	}
}

func TestParseLegacyAtBundleOffset(t *testing.T) {
	samples := []legacySample{{data: make([]byte, 256), formatCode: 0, channels: 1, rate: 22050}}
	bank := buildLegacyBank(t, "SBK4", 64, 32, 0, samples)
	bundle := append(make([]byte, 4096), bank...)

	chunks, err := ParseLegacy(bytes.NewReader(bundle), 4096, int64(len(bank)), VersionLegacy4)
	if err != nil {
		t.Fatalf("ParseLegacy() error = %v", err)
	}
	if want := int64(4096 + 64 + 32); chunks[0].DataOffset != want {
		t.Errorf("chunk 0 DataOffset = %d, want absolute %d", chunks[0].DataOffset, want)
	}
}

func TestParseLegacyTruncatedHeader(t *testing.T) {
	_, err := ParseLegacy(bytes.NewReader([]byte("SBK4\x02\x00")), 0, 6, VersionLegacy4)
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("ParseLegacy() error = %T, want *ParseError", err)
	}
	if pe.Kind != ParseTruncated {
		t.Errorf("ParseError.Kind = %v, want ParseTruncated", pe.Kind)
	}
}

func TestParseLegacyMagicMismatch(t *testing.T) {
	samples := []legacySample{{data: make([]byte, 64), formatCode: 0}}
	bank := buildLegacyBank(t, "SBK3", 64, 32, 0, samples)

	_, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy4)
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("ParseLegacy() error = %T, want *ParseError", err)
	}
	if pe.Kind != ParseUnknownVersion {
		t.Errorf("ParseError.Kind = %v, want ParseUnknownVersion", pe.Kind)
	}
}

// A descriptor whose declared size pushes a chunk window past the end of
// the container is an offset overflow, not a silent clamp.
func TestParseLegacyOffsetOverflow(t *testing.T) {
	samples := []legacySample{{data: make([]byte, 64), formatCode: 0}}
	bank := buildLegacyBank(t, "SBK4", 64, 32, 0, samples)

	// Inflate the descriptor's DataSize field far past the file length.
	bank[64] = 0xFF
	bank[65] = 0xFF
	bank[66] = 0xFF
	bank[67] = 0x00

	_, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy4)
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("ParseLegacy() error = %T, want *ParseError", err)
	}
	if pe.Kind != ParseOffsetOverflow {
		t.Errorf("ParseError.Kind = %v, want ParseOffsetOverflow", pe.Kind)
	}
}

func TestParseLegacyVerboseDescriptorLog(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	common.SetVerboseMode(true)
	defer common.SetVerboseMode(false)

	samples := []legacySample{{data: make([]byte, 64), formatCode: 5, channels: 2, rate: 44100}}
	bank := buildLegacyBank(t, "SBK4", 64, 32, 0, samples)

	if _, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy4); err != nil {
		t.Fatalf("ParseLegacy() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Descriptor 0: size=64 format=5 channels=2 rate=44100") {
		t.Errorf("verbose parse output %q missing descriptor line", buf.String())
	}
}

func TestParseLegacyUnknownFormatCode(t *testing.T) {
	samples := []legacySample{{data: make([]byte, 64), formatCode: 99, channels: 1, rate: 22050}}
	bank := buildLegacyBank(t, "SBK4", 64, 32, 0, samples)

	chunks, err := ParseLegacy(bytes.NewReader(bank), 0, int64(len(bank)), VersionLegacy4)
	if err != nil {
		t.Fatalf("ParseLegacy() error = %v", err)
	}
	if chunks[0].Format != FormatUnknown {
		t.Errorf("format code 99 = %v, want FormatUnknown", chunks[0].Format)
	}
}
