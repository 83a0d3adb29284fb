package pkg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hansbonini/sbktools/pkg/common"
	"gopkg.in/yaml.v3"
)

// RebuildState is one phase of the size-reconciliation state machine.
// Observers receive every transition; the terminal outcome is reported
// through RebuildResult.Status.
type RebuildState int

const (
	StatePreparing RebuildState = iota
	StateBuilding
	StateSizeCheck
	StatePatching
	StateCleanup
)

// String returns the phase name.
func (s RebuildState) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateBuilding:
		return "building"
	case StateSizeCheck:
		return "size-check"
	case StatePatching:
		return "patching"
	case StateCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// RebuildRequest describes one replacement operation: re-encode the source
// audio so it fits the chunk's original byte window, then patch the output
// container in place.
type RebuildRequest struct {
	Chunk         Chunk
	SourcePath    string // replacement source audio
	ContainerPath string // original container, read-only
	OutputPath    string // patched copy; staged from ContainerPath when distinct
	AllowOversize bool   // explicit override for result > ceiling
}

// RebuildEngine drives the external build tool through zero or more trial
// encodes until the output fits the original chunk's byte window, then
// patches the output container. One rebuild runs at a time; trials are
// strictly sequential because quality selection depends on the previous
// trial's observed size.
type RebuildEngine struct {
	tool BuildTool

	// OnState, when set, observes state machine transitions.
	OnState func(RebuildState)
}

// NewRebuildEngine creates a rebuild engine over the given build tool.
func NewRebuildEngine(tool BuildTool) *RebuildEngine {
	return &RebuildEngine{tool: tool}
}

func (e *RebuildEngine) notify(state RebuildState) {
	if e.OnState != nil {
		e.OnState(state)
	}
}

// trial is one observed build: the quality it was encoded at, the byte size
// it produced, and where the output file lives inside the workspace.
type trial struct {
	quality int
	size    int64
	path    string
}

// Rebuild runs the full state machine for one chunk. The temporary
// workspace is released on every exit path, including cancellation and
// build failure. Cancellation terminates the in-flight build process,
// still cleans up, and leaves the output file untouched if patching has
// not started.
func (e *RebuildEngine) Rebuild(ctx context.Context, req RebuildRequest) (*RebuildResult, error) {
	ceiling := req.Chunk.DataSize
	result := &RebuildResult{OriginalSize: ceiling}

	// Preparing: isolated workspace, staged source.
	e.notify(StatePreparing)
	workspace, err := os.MkdirTemp("", "sbkrebuild-")
	if err != nil {
		result.Status = StatusFailed
		return result, common.FormatError(common.ErrFailedToCreateWorkspace, err)
	}
	result.WorkspacePath = workspace
	defer func() {
		e.notify(StateCleanup)
		os.RemoveAll(workspace)
		common.LogDebug(common.InfoWorkspaceCleaned, workspace)
	}()

	staged := filepath.Join(workspace, "source"+filepath.Ext(req.SourcePath))
	if err := CopyFile(req.SourcePath, staged); err != nil {
		result.Status = StatusFailed
		return result, common.FormatError(common.ErrFailedToStageSource, err)
	}

	// Building.
	e.notify(StateBuilding)
	var final *trial
	if req.Chunk.Format.VariableBitrate() {
		final, err = e.searchQuality(ctx, staged, workspace, req.Chunk.Format, ceiling)
	} else {
		common.LogDebug(common.InfoFixedBitrateTarget, req.Chunk.Format)
		final, err = e.buildTrial(ctx, staged, workspace, req.Chunk.Format, 0)
	}
	if err != nil {
		// Cancelled only when the caller's context is done. A build tool
		// that timed out internally surfaces a BuildError while this
		// context is still live; that is a failed rebuild, not a cancel.
		if ctx.Err() != nil {
			common.LogInfo(common.InfoRebuildCancelled)
			result.Status = StatusCancelledByUser
			return result, err
		}
		result.Status = StatusFailed
		return result, err
	}
	if final == nil {
		// Even quality 0 exceeds the ceiling: the format cannot be
		// reconciled. Nothing has been written.
		result.Status = StatusFailed
		result.Message = fmt.Sprintf("minimum-quality build exceeds %d byte window", ceiling)
		return result, nil
	}
	result.NewSize = final.size

	// SizeCheck.
	e.notify(StateSizeCheck)
	built, err := os.ReadFile(final.path)
	if err != nil {
		result.Status = StatusFailed
		return result, err
	}

	oversize := final.size > ceiling
	if oversize && !req.AllowOversize {
		common.LogWarn(common.WarnOversizedBuild, final.size, ceiling)
		result.Status = StatusOversizedConfirmationNeeded
		result.Message = fmt.Sprintf("build is %d bytes over the window; re-invoke with the oversize override to proceed", final.size-ceiling)
		return result, nil
	}
	if !oversize && final.size < ceiling {
		// Zero padding never moves any byte after the patched region.
		pad := ceiling - final.size
		built = append(built, make([]byte, pad)...)
		common.LogInfo(common.InfoPaddingApplied, pad)
	}

	if err := ctx.Err(); err != nil {
		common.LogInfo(common.InfoRebuildCancelled)
		result.Status = StatusCancelledByUser
		return result, err
	}

	// Patching: stage the output copy, then overwrite one byte window.
	e.notify(StatePatching)
	if req.OutputPath != req.ContainerPath {
		if err := CopyFile(req.ContainerPath, req.OutputPath); err != nil {
			result.Status = StatusFailed
			return result, common.FormatError(common.ErrFailedToCopyContainer, err)
		}
	}
	if oversize {
		err = Splice(req.OutputPath, req.Chunk, built)
	} else {
		err = Patch(req.OutputPath, req.Chunk, built)
	}
	if err != nil {
		result.Status = StatusFailed
		return result, err
	}

	result.Status = StatusDone
	return result, nil
}

// searchQuality runs a binary search over the integer quality parameter in
// [0, 100], converging toward the highest quality whose build size does not
// exceed the ceiling. The encoder's size-versus-quality monotonicity is
// empirical, not contractual: the best fitting trial seen is cached and
// wins even if a later trial regresses. Returns nil when no quality fits.
func (e *RebuildEngine) searchQuality(ctx context.Context, staged, workspace string, format SampleFormat, ceiling int64) (*trial, error) {
	lo, hi := 0, 100
	var best *trial

	for lo < hi {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mid := (lo + hi + 1) / 2
		common.LogDebug(common.DebugSearchWindow, lo, hi)

		t, err := e.buildTrial(ctx, staged, workspace, format, mid)
		if err != nil {
			return nil, err
		}
		common.LogInfo(common.InfoBuildTrial, mid, t.size, ceiling)

		if t.size <= ceiling {
			if best == nil || t.quality > best.quality {
				best = t
			}
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	if best == nil || best.quality != lo {
		// Either every probed quality was oversized (quality 0 itself is
		// still unobserved) or a non-monotonic outlier moved the window
		// past the best cached trial. One more build settles it.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := e.buildTrial(ctx, staged, workspace, format, lo)
		if err != nil {
			return nil, err
		}
		common.LogInfo(common.InfoBuildTrial, lo, t.size, ceiling)
		if t.size <= ceiling && (best == nil || t.quality > best.quality) {
			best = t
		} else if t.size > ceiling && best != nil {
			common.LogWarn(common.WarnNonMonotonicSize, lo, t.size)
		}
	}

	if best != nil {
		common.LogInfo(common.InfoBuildConverged, best.quality, best.size, ceiling)
	}
	return best, nil
}

// buildTrial invokes the external build tool once and records the outcome.
func (e *RebuildEngine) buildTrial(ctx context.Context, staged, workspace string, format SampleFormat, quality int) (*trial, error) {
	out := filepath.Join(workspace, fmt.Sprintf("trial_q%03d.bin", quality))
	size, err := e.tool.Build(ctx, BuildRequest{
		InputPath:  staged,
		OutputPath: out,
		Format:     format,
		Quality:    quality,
	})
	if err != nil {
		return nil, err
	}
	return &trial{quality: quality, size: size, path: out}, nil
}

// BatchOutcome is the per-item report of a batch run.
type BatchOutcome struct {
	Item   BatchItem
	Chunk  Chunk
	Result *RebuildResult
	Err    error
}

// LoadBatchFile reads a YAML batch description.
func LoadBatchFile(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToReadBatchFile, err)
	}
	var batch BatchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, common.FormatError(common.ErrFailedToParseBatchYAML, err)
	}
	return &batch, nil
}

// ResolveChunk finds the chunk a batch item targets, by name when given,
// otherwise by index.
func ResolveChunk(chunks []Chunk, item BatchItem) (Chunk, error) {
	if item.ChunkName != "" {
		for _, c := range chunks {
			if c.Name == item.ChunkName {
				return c, nil
			}
		}
		return Chunk{}, fmt.Errorf("%s: name %q", common.ErrChunkNotFound, item.ChunkName)
	}
	if item.ChunkIndex < 0 || item.ChunkIndex >= len(chunks) {
		return Chunk{}, fmt.Errorf("%s: index %d of %d", common.ErrChunkNotFound, item.ChunkIndex, len(chunks))
	}
	return chunks[item.ChunkIndex], nil
}

// RunBatch applies every batch item against one output copy of the
// container, one chunk at a time. Per-item failures are collected and
// reported in aggregate after the batch completes; only cancellation and
// the initial container copy abort the run. An item that spliced an
// oversized replacement leaves the recorded offsets of later chunks stale,
// which is logged, not repaired.
func (e *RebuildEngine) RunBatch(ctx context.Context, chunks []Chunk, batch *BatchFile) ([]BatchOutcome, error) {
	if err := CopyFile(batch.Container, batch.Output); err != nil {
		return nil, common.FormatError(common.ErrFailedToCopyContainer, err)
	}

	outcomes := make([]BatchOutcome, 0, len(batch.Items))
	for i, item := range batch.Items {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		chunk, err := ResolveChunk(chunks, item)
		if err != nil {
			common.LogWarn(common.WarnBatchItemFailed, i, err)
			outcomes = append(outcomes, BatchOutcome{Item: item, Err: err})
			continue
		}

		result, err := e.Rebuild(ctx, RebuildRequest{
			Chunk:         chunk,
			SourcePath:    item.SourcePath,
			ContainerPath: batch.Output,
			OutputPath:    batch.Output,
			AllowOversize: item.AllowOversize,
		})
		if result != nil && result.Status == StatusCancelledByUser {
			outcomes = append(outcomes, BatchOutcome{Item: item, Chunk: chunk, Result: result, Err: err})
			return outcomes, err
		}
		if err != nil {
			common.LogWarn(common.WarnBatchItemFailed, i, err)
		} else if result.Status == StatusDone {
			common.LogInfo(common.InfoBatchItemDone, i, chunk.Index, result.OriginalSize, result.NewSize)
		}
		outcomes = append(outcomes, BatchOutcome{Item: item, Chunk: chunk, Result: result, Err: err})
	}

	return outcomes, nil
}
