package pkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hansbonini/sbktools/pkg/common"
	"github.com/zeebo/blake3"
)

// Patch overwrites exactly the chunk's byte window in the file at path with
// newBytes and nothing else. Precondition: len(newBytes) equals the chunk's
// data size; the reconciliation engine enforces this before calling, except
// through the explicit oversize override path, which uses Splice instead.
//
// The operation is a pure byte-range overwrite: no truncation, no rewrite
// of unrelated regions. A digest of everything outside the window is taken
// before and after the write and compared; a mismatch is reported as a
// patch error.
func Patch(path string, chunk Chunk, newBytes []byte) error {
	if int64(len(newBytes)) != chunk.DataSize {
		return &PatchError{
			Kind:   PatchSizeMismatch,
			Offset: chunk.DataOffset,
			Size:   chunk.DataSize,
			Detail: fmt.Sprintf("chunk %d expects %d bytes, got %d", chunk.Index, chunk.DataSize, len(newBytes)),
		}
	}

	fi, err := os.Stat(path)
	if err != nil {
		return &PatchError{Kind: PatchWindowOutOfBounds, Offset: chunk.DataOffset, Size: chunk.DataSize, Detail: err.Error()}
	}
	if chunk.DataOffset < 0 || chunk.DataOffset+chunk.DataSize > fi.Size() {
		return &PatchError{
			Kind:   PatchWindowOutOfBounds,
			Offset: chunk.DataOffset,
			Size:   chunk.DataSize,
			Detail: fmt.Sprintf("chunk %d window exceeds file size %d", chunk.Index, fi.Size()),
		}
	}

	before, err := outsideWindowDigest(path, chunk.DataOffset, chunk.DataSize)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return &PatchError{Kind: PatchWindowOutOfBounds, Offset: chunk.DataOffset, Size: chunk.DataSize, Detail: err.Error()}
	}
	if _, err := f.WriteAt(newBytes, chunk.DataOffset); err != nil {
		f.Close()
		return &PatchError{Kind: PatchWindowOutOfBounds, Offset: chunk.DataOffset, Size: chunk.DataSize, Detail: err.Error()}
	}
	if err := f.Close(); err != nil {
		return &PatchError{Kind: PatchWindowOutOfBounds, Offset: chunk.DataOffset, Size: chunk.DataSize, Detail: err.Error()}
	}

	after, err := outsideWindowDigest(path, chunk.DataOffset, chunk.DataSize)
	if err != nil {
		return err
	}
	if before != after {
		return &PatchError{
			Kind:   PatchVerifyFailed,
			Offset: chunk.DataOffset,
			Size:   chunk.DataSize,
			Detail: "outside-window digest changed across the write",
		}
	}

	common.LogInfo(common.InfoChunkPatched, chunk.Index, chunk.DataOffset, chunk.DataOffset+chunk.DataSize)
	return nil
}

// Splice replaces the chunk's byte window with newBytes of a different
// length, shifting everything after the window. This is the explicit
// oversize-override path only: every subsequent chunk's recorded offset
// becomes stale, which the caller has accepted. The rewrite goes through a
// sibling temp file and a rename so the target is never half-written.
func Splice(path string, chunk Chunk, newBytes []byte) error {
	fi, err := os.Stat(path)
	if err != nil {
		return &PatchError{Kind: PatchWindowOutOfBounds, Offset: chunk.DataOffset, Size: chunk.DataSize, Detail: err.Error()}
	}
	if chunk.DataOffset < 0 || chunk.DataOffset+chunk.DataSize > fi.Size() {
		return &PatchError{
			Kind:   PatchWindowOutOfBounds,
			Offset: chunk.DataOffset,
			Size:   chunk.DataSize,
			Detail: fmt.Sprintf("chunk %d window exceeds file size %d", chunk.Index, fi.Size()),
		}
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	// Same directory as the target so the final rename stays on one
	// filesystem.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sbk-splice-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := io.CopyN(tmp, src, chunk.DataOffset); err != nil {
		cleanup()
		return err
	}
	if _, err := tmp.Write(newBytes); err != nil {
		cleanup()
		return err
	}
	if _, err := src.Seek(chunk.DataOffset+chunk.DataSize, io.SeekStart); err != nil {
		cleanup()
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	common.LogInfo(common.InfoOversizeSpliced, chunk.DataSize, len(newBytes))
	common.LogWarn(common.WarnStaleOffsets, chunk.Index)
	return nil
}

// CopyFile copies src to dst, creating or truncating dst. The rebuild
// engine uses it to stage the output container before patching.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// outsideWindowDigest hashes every byte of the file except [offset,
// offset+size).
func outsideWindowDigest(path string, offset, size int64) ([32]byte, error) {
	var digest [32]byte

	f, err := os.Open(path)
	if err != nil {
		return digest, err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.CopyN(h, f, offset); err != nil && err != io.EOF {
		return digest, err
	}
	if _, err := f.Seek(offset+size, io.SeekStart); err != nil {
		return digest, err
	}
	if _, err := io.Copy(h, f); err != nil {
		return digest, err
	}

	copy(digest[:], h.Sum(nil))
	common.LogDebug(common.DebugOutsideDigest, digest[:8])
	return digest, nil
}
