package pkg

import "fmt"

// ParseErrorKind classifies structural parse failures. All parse errors are
// recoverable per file: the caller skips the file, not the batch.
type ParseErrorKind int

const (
	ParseTruncated ParseErrorKind = iota
	ParseUnknownVersion
	ParseOffsetOverflow
)

// ParseError reports a structural problem in a container, with the byte
// offset an operator needs to judge whether the input is corrupt.
type ParseError struct {
	Kind   ParseErrorKind
	Offset int64
	Detail string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case ParseTruncated:
		return fmt.Sprintf("truncated container at offset 0x%X: %s", e.Offset, e.Detail)
	case ParseUnknownVersion:
		return fmt.Sprintf("unknown container version at offset 0x%X: %s", e.Offset, e.Detail)
	case ParseOffsetOverflow:
		return fmt.Sprintf("chunk window exceeds container at offset 0x%X: %s", e.Offset, e.Detail)
	default:
		return fmt.Sprintf("parse error at offset 0x%X: %s", e.Offset, e.Detail)
	}
}

// DecodeErrorKind classifies per-chunk decode failures.
type DecodeErrorKind int

const (
	DecodeStreamFailure DecodeErrorKind = iota
	DecodeUnsupportedFormat
)

// DecodeError reports a failed decode of one chunk.
type DecodeError struct {
	Kind       DecodeErrorKind
	ChunkIndex int
	Err        error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case DecodeStreamFailure:
		return fmt.Sprintf("stream decode of chunk %d failed: %v", e.ChunkIndex, e.Err)
	case DecodeUnsupportedFormat:
		return fmt.Sprintf("chunk %d has unsupported format: %v", e.ChunkIndex, e.Err)
	default:
		return fmt.Sprintf("decode of chunk %d failed: %v", e.ChunkIndex, e.Err)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BuildErrorKind classifies external build tool failures. A build error
// aborts the current rebuild operation, not the whole batch.
type BuildErrorKind int

const (
	BuildToolMissing BuildErrorKind = iota
	BuildToolNonZeroExit
	BuildEncodeTimeout
)

// BuildError reports a failed invocation of the external build tool.
type BuildError struct {
	Kind     BuildErrorKind
	ExitCode int
	Err      error
}

func (e *BuildError) Error() string {
	switch e.Kind {
	case BuildToolMissing:
		return fmt.Sprintf("build tool not found: %v", e.Err)
	case BuildToolNonZeroExit:
		return fmt.Sprintf("build tool exited with code %d: %v", e.ExitCode, e.Err)
	case BuildEncodeTimeout:
		return fmt.Sprintf("build tool timed out: %v", e.Err)
	default:
		return fmt.Sprintf("build failed: %v", e.Err)
	}
}

func (e *BuildError) Unwrap() error { return e.Err }

// PatchErrorKind classifies patch failures. Patch errors are fatal to the
// current file; the file is left in its pre-write state.
type PatchErrorKind int

const (
	PatchWindowOutOfBounds PatchErrorKind = iota
	PatchSizeMismatch
	PatchVerifyFailed
)

// PatchError reports a refused or failed byte-window overwrite, carrying the
// window an operator needs to diagnose the target file.
type PatchError struct {
	Kind   PatchErrorKind
	Offset int64
	Size   int64
	Detail string
}

func (e *PatchError) Error() string {
	switch e.Kind {
	case PatchWindowOutOfBounds:
		return fmt.Sprintf("patch window [0x%X..0x%X) out of bounds: %s", e.Offset, e.Offset+e.Size, e.Detail)
	case PatchSizeMismatch:
		return fmt.Sprintf("patch size mismatch for window [0x%X..0x%X): %s", e.Offset, e.Offset+e.Size, e.Detail)
	case PatchVerifyFailed:
		return fmt.Sprintf("bytes outside patch window [0x%X..0x%X) changed: %s", e.Offset, e.Offset+e.Size, e.Detail)
	default:
		return fmt.Sprintf("patch of window [0x%X..0x%X) failed: %s", e.Offset, e.Offset+e.Size, e.Detail)
	}
}
