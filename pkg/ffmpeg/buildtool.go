package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hansbonini/sbktools/pkg"
	"github.com/hansbonini/sbktools/pkg/common"
)

// BuildCLI implements pkg.BuildTool over an external encoder executable.
// The contract is deliberately narrow: exit code 0 plus a non-empty output
// file signals success; the tool's log output is never parsed.
type BuildCLI struct {
	Path    string        // encoder executable, resolved through PATH
	Timeout time.Duration // per-invocation limit; 0 disables
}

// NewBuildCLI creates a build tool wrapper for the given executable.
func NewBuildCLI(path string) *BuildCLI {
	return &BuildCLI{Path: path, Timeout: 2 * time.Minute}
}

// Build runs one encode. Variable-bitrate formats receive the quality
// parameter; fixed-bitrate formats have nothing to tune and the flag is
// omitted.
func (t *BuildCLI) Build(ctx context.Context, req pkg.BuildRequest) (int64, error) {
	resolved, err := exec.LookPath(t.Path)
	if err != nil {
		return 0, &pkg.BuildError{Kind: pkg.BuildToolMissing, Err: err}
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	args := []string{"-i", req.InputPath, "-f", req.Format.String()}
	if req.Format.VariableBitrate() {
		args = append(args, "-q", strconv.Itoa(req.Quality))
	}
	args = append(args, "-o", req.OutputPath)
	common.LogDebug(common.DebugBuildCommandLine, resolved+" "+strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, resolved, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, &pkg.BuildError{Kind: pkg.BuildEncodeTimeout, Err: ctx.Err()}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, &pkg.BuildError{
				Kind:     pkg.BuildToolNonZeroExit,
				ExitCode: exitErr.ExitCode(),
				Err:      fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())),
			}
		}
		return 0, &pkg.BuildError{Kind: pkg.BuildToolNonZeroExit, Err: err}
	}

	fi, err := os.Stat(req.OutputPath)
	if err != nil {
		return 0, &pkg.BuildError{Kind: pkg.BuildToolNonZeroExit, Err: fmt.Errorf("no output file: %w", err)}
	}
	if fi.Size() == 0 {
		return 0, &pkg.BuildError{Kind: pkg.BuildToolNonZeroExit, Err: fmt.Errorf("output file %s is empty", req.OutputPath)}
	}
	return fi.Size(), nil
}
