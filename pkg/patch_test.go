package pkg

import (
	"bytes"
	"os"
	"testing"
)

func TestPatchOverwritesOnlyWindow(t *testing.T) {
	original := patternBytes(0x01, 1000)
	path := writeTempFile(t, "bank.sbk", original)
	chunk := Chunk{Index: 2, DataOffset: 200, DataSize: 100}
	replacement := patternBytes(0x50, 100)

	if err := Patch(path, chunk, replacement); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading patched file: %v", err)
	}
	if len(got) != len(original) {
		t.Fatalf("file size = %d, want unchanged %d", len(got), len(original))
	}
	if !bytes.Equal(got[:200], original[:200]) {
		t.Errorf("bytes before the window changed")
	}
	if !bytes.Equal(got[200:300], replacement) {
		t.Errorf("window does not hold the replacement")
	}
	if !bytes.Equal(got[300:], original[300:]) {
		t.Errorf("bytes after the window changed")
	}
}

func TestPatchSizeMismatch(t *testing.T) {
	path := writeTempFile(t, "bank.sbk", patternBytes(0x01, 500))
	chunk := Chunk{Index: 0, DataOffset: 100, DataSize: 100}

	err := Patch(path, chunk, make([]byte, 99))
	pe, ok := err.(*PatchError)
	if !ok {
		t.Fatalf("Patch() error = %T, want *PatchError", err)
	}
	if pe.Kind != PatchSizeMismatch {
		t.Errorf("PatchError.Kind = %v, want PatchSizeMismatch", pe.Kind)
	}
}

func TestPatchWindowOutOfBounds(t *testing.T) {
	original := patternBytes(0x01, 500)
	path := writeTempFile(t, "bank.sbk", original)
	chunk := Chunk{Index: 0, DataOffset: 450, DataSize: 100}

	err := Patch(path, chunk, make([]byte, 100))
	pe, ok := err.(*PatchError)
	if !ok {
		t.Fatalf("Patch() error = %T, want *PatchError", err)
	}
	if pe.Kind != PatchWindowOutOfBounds {
		t.Errorf("PatchError.Kind = %v, want PatchWindowOutOfBounds", pe.Kind)
	}

	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, original) {
		t.Errorf("file modified by a refused patch")
	}
}

func TestSpliceShiftsTail(t *testing.T) {
	original := patternBytes(0x01, 1000)
	path := writeTempFile(t, "bank.sbk", original)
	chunk := Chunk{Index: 1, DataOffset: 200, DataSize: 100}
	replacement := patternBytes(0x60, 150)

	if err := Splice(path, chunk, replacement); err != nil {
		t.Fatalf("Splice() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading spliced file: %v", err)
	}
	if len(got) != 1050 {
		t.Fatalf("file size = %d, want 1050", len(got))
	}
	if !bytes.Equal(got[:200], original[:200]) {
		t.Errorf("prefix changed")
	}
	if !bytes.Equal(got[200:350], replacement) {
		t.Errorf("window does not hold the replacement")
	}
	if !bytes.Equal(got[350:], original[300:]) {
		t.Errorf("tail not shifted intact")
	}
}

func TestSpliceShrinks(t *testing.T) {
	original := patternBytes(0x01, 1000)
	path := writeTempFile(t, "bank.sbk", original)
	chunk := Chunk{Index: 1, DataOffset: 200, DataSize: 100}
	replacement := patternBytes(0x60, 40)

	if err := Splice(path, chunk, replacement); err != nil {
		t.Fatalf("Splice() error = %v", err)
	}

	got, _ := os.ReadFile(path)
	if len(got) != 940 {
		t.Fatalf("file size = %d, want 940", len(got))
	}
	if !bytes.Equal(got[240:], original[300:]) {
		t.Errorf("tail not shifted intact")
	}
}

func TestCopyFile(t *testing.T) {
	content := patternBytes(0x42, 4096)
	src := writeTempFile(t, "src.bin", content)
	dst := src + ".copy"

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading copy: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("copy differs from source")
	}
}
