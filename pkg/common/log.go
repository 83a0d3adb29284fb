package common

import (
	"fmt"
	"log"
)

// Global variable to control debug output
var VerboseMode bool = false

// SetVerboseMode enables or disables verbose/debug output
func SetVerboseMode(verbose bool) {
	VerboseMode = verbose
}

// Error messages
const (
	ErrFailedToOpenContainer   = "failed to open container file"
	ErrFailedToParseContainer  = "failed to parse container"
	ErrFailedToDecodeChunk     = "failed to decode chunk"
	ErrFailedToCreateWorkspace = "failed to create build workspace"
	ErrFailedToStageSource     = "failed to stage replacement source"
	ErrFailedToCopyContainer   = "failed to copy container for patching"
	ErrFailedToWriteWAV        = "failed to write WAV output"
	ErrFailedToReadBatchFile   = "failed to read batch file"
	ErrFailedToParseBatchYAML  = "failed to parse batch YAML"
	ErrChunkNotFound           = "no chunk matches the requested selector"
)

// Info messages
const (
	InfoContainerParsed    = "Parsed %s container: %d chunks, %d bytes"
	InfoChunkExtracted     = "Extracted chunk %d (%s) to %s"
	InfoChunkPatched       = "Patched chunk %d: window [0x%X..0x%X)"
	InfoBuildTrial         = "Build trial: quality=%d size=%d ceiling=%d"
	InfoBuildConverged     = "Build converged: quality=%d size=%d (ceiling %d)"
	InfoPaddingApplied     = "Padded build output with %d zero bytes to fit window exactly"
	InfoBatchItemDone      = "Batch item %d done: chunk %d, %d -> %d bytes"
	InfoBundleContainer    = "Found %s container at offset 0x%X (%d bytes)"
	InfoWorkspaceCleaned   = "Removed build workspace %s"
	InfoOversizeSpliced    = "Spliced oversized replacement: %d -> %d bytes, downstream offsets are now stale"
	InfoRebuildCancelled   = "Rebuild cancelled before patching; output untouched"
	InfoFixedBitrateTarget = "Fixed-bitrate target %s: single deterministic build"
)

// Warning messages
const (
	WarnOversizedBuild     = "Build output (%d bytes) exceeds original chunk window (%d bytes)"
	WarnStaleOffsets       = "Offsets recorded for chunks after index %d are stale after this splice"
	WarnBatchItemFailed    = "Batch item %d failed: %v"
	WarnNonMonotonicSize   = "Encoder size regressed at quality %d (%d bytes); keeping best fitting trial"
	WarnNoNameInDescriptor = "Descriptor %d has no name, synthesized %q"
)

// Debug messages
const (
	DebugHeaderInfo        = "Header: magic=%s samples=%d headerSize=%d descSize=%d flags=0x%X"
	DebugDescriptor        = "Descriptor %d: size=%d format=%d channels=%d rate=%d"
	DebugChunkWindow       = "Chunk %d: offset=0x%X size=%d padded=%d"
	DebugModernSizeTable   = "Modern size table: %d entries, base data offset 0x%X"
	DebugSearchWindow      = "Quality search window: [%d..%d]"
	DebugDecodeStrategy    = "Chunk %d format %s: %s decode path"
	DebugOutsideDigest     = "Outside-window digest: %x"
	DebugBuildCommandLine  = "Build command: %s"
	DebugRangeMaterialized = "Materialized nested range [0x%X..0x%X) to %s"
)

// LogInfo logs an informational message
func LogInfo(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[INFO] "+message, args...)
	} else {
		log.Printf("[INFO] %s", message)
	}
}

// LogWarn logs a warning message
func LogWarn(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[WARN] "+message, args...)
	} else {
		log.Printf("[WARN] %s", message)
	}
}

// LogError logs an error message
func LogError(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[ERROR] "+message, args...)
	} else {
		log.Printf("[ERROR] %s", message)
	}
}

// LogDebug logs a debug message (only if VerboseMode is enabled)
func LogDebug(message string, args ...interface{}) {
	if !VerboseMode {
		return
	}
	if len(args) > 0 {
		log.Printf("[DEBUG] "+message, args...)
	} else {
		log.Printf("[DEBUG] %s", message)
	}
}

// FormatError creates a formatted error with additional context
func FormatError(baseMessage string, details interface{}) error {
	if err, ok := details.(error); ok {
		return fmt.Errorf("%s: %w", baseMessage, err)
	}
	return fmt.Errorf("%s: %v", baseMessage, details)
}
