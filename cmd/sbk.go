// Package cmd provides command-line interface for SBK container processing.
// This file contains commands for listing, extracting and replacing the
// audio streams embedded in SBK sound bank containers.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hansbonini/sbktools/pkg"
	"github.com/hansbonini/sbktools/pkg/common"
	"github.com/hansbonini/sbktools/pkg/ffmpeg"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// sbkCmd represents the parent command for all SBK container operations.
var sbkCmd = &cobra.Command{
	Use:   "sbk",
	Short: "Process SBK sound bank containers",
	Long: `Process SBK sound bank containers (legacy SBK3/SBK4 and modern SBK5).

Commands:
  info      List the embedded streams of a container
  extract   Decode embedded streams to WAV files
  replace   Replace one embedded stream with new audio

Examples:
  sbktools sbk info MUSIC.SBK
  sbktools sbk extract MUSIC.SBK ./output/
  sbktools sbk replace MUSIC.SBK 2 new_theme.wav MUSIC_modified.SBK`,
}

// loadContainer opens and parses a container, honoring a nesting offset
// inside a bundle file when given.
func loadContainer(ctx context.Context, path string, offset int64, engine pkg.AudioEngine) (*pkg.ContainerFile, []pkg.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, common.FormatError(common.ErrFailedToOpenContainer, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, common.FormatError(common.ErrFailedToOpenContainer, err)
	}

	rng := pkg.Range{Path: path, Offset: offset, Length: fi.Size() - offset}
	tag, chunks, err := pkg.ParseContainer(ctx, f, rng, engine)
	if err != nil {
		return nil, nil, common.FormatError(common.ErrFailedToParseContainer, err)
	}

	cf := &pkg.ContainerFile{
		Path:       path,
		Size:       fi.Size(),
		Version:    tag,
		BaseOffset: offset,
		Length:     rng.Length,
	}
	common.LogInfo(common.InfoContainerParsed, tag, len(chunks), cf.Length)
	return cf, chunks, nil
}

// sharedEngine builds the process-wide audio engine handle. The underlying
// engine is not reentrant, so every consumer goes through one lock.
func sharedEngine() pkg.AudioEngine {
	return pkg.NewLockedEngine(ffmpeg.NewEngine())
}

// sbkInfoCmd lists the embedded streams of a container.
var sbkInfoCmd = &cobra.Command{
	Use:   "info [container]",
	Short: "List the embedded streams of an SBK container",
	Long: `List the embedded streams of an SBK container.

For each stream the byte offset, byte length, sample format, channel count,
sample rate and loop points are shown. Use --offset when the container is
nested inside a bundle file.

Example:
  sbktools sbk info MUSIC.SBK
  sbktools sbk info --offset 4096 ASSETS.BIG`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return fmt.Errorf("error getting verbose flag: %w", err)
		}
		common.SetVerboseMode(verbose)

		offset, err := cmd.Flags().GetInt64("offset")
		if err != nil {
			return fmt.Errorf("error getting offset flag: %w", err)
		}

		cf, chunks, err := loadContainer(cmd.Context(), args[0], offset, sharedEngine())
		if err != nil {
			return err
		}

		fmt.Printf("Container: %s (%s, %d bytes)\n\n", cf.Path, cf.Version, cf.Length)
		fmt.Printf("Index | Name                 | Offset     | Size       | Format  | Ch | Rate  | Loop\n")
		fmt.Printf("------|----------------------|------------|------------|---------|----|-------|-------------\n")
		for _, c := range chunks {
			fmt.Printf("%5d | %-20s | 0x%08X | %10d | %-7s | %2d | %5d | %d..%d\n",
				c.Index, c.Name, c.DataOffset, c.DataSize, c.Format, c.Channels, c.SampleRate, c.LoopStart, c.LoopEnd)
		}
		return nil
	},
}

// sbkExtractCmd decodes embedded streams to WAV files.
var sbkExtractCmd = &cobra.Command{
	Use:   "extract [container] [output_directory]",
	Short: "Decode embedded streams to WAV files",
	Long: `Decode embedded streams of an SBK container to WAV files.

By default every stream is extracted; use --index to extract a single one.
Streams whose format cannot be decoded are reported and skipped, the rest
of the container is still extracted.

Example:
  sbktools sbk extract MUSIC.SBK ./output/
  sbktools sbk extract --index 2 MUSIC.SBK ./output/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return fmt.Errorf("error getting verbose flag: %w", err)
		}
		common.SetVerboseMode(verbose)

		offset, err := cmd.Flags().GetInt64("offset")
		if err != nil {
			return fmt.Errorf("error getting offset flag: %w", err)
		}
		index, err := cmd.Flags().GetInt("index")
		if err != nil {
			return fmt.Errorf("error getting index flag: %w", err)
		}

		engine := sharedEngine()
		cf, chunks, err := loadContainer(cmd.Context(), args[0], offset, engine)
		if err != nil {
			return err
		}
		outputDir := args[1]
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return err
		}

		bridge := pkg.NewDecodeBridge(engine)
		rng := pkg.Range{Path: cf.Path, Offset: cf.BaseOffset, Length: cf.Length}

		var failures []error
		progress := mpb.New(mpb.WithWidth(40))
		for _, chunk := range chunks {
			if index >= 0 && chunk.Index != index {
				continue
			}

			bar := progress.New(chunk.DataSize,
				mpb.BarStyle(),
				mpb.PrependDecorators(decor.Name(chunk.Name)),
				mpb.AppendDecorators(decor.CountersKibiByte("% .1f / % .1f")),
			)
			observer := func(done, total int64) {
				if total > 0 {
					bar.SetTotal(total, false)
				}
				bar.SetCurrent(done)
			}

			outPath := filepath.Join(outputDir, fmt.Sprintf("%s.wav", chunk.Name))
			if err := bridge.ExtractWAV(cmd.Context(), rng, chunk, outPath, observer); err != nil {
				common.LogError(common.ErrFailedToDecodeChunk+": %v", err)
				failures = append(failures, err)
			}
			bar.SetTotal(bar.Current(), true)
		}
		progress.Wait()

		if len(failures) > 0 {
			return fmt.Errorf("%d of %d streams failed to extract", len(failures), len(chunks))
		}
		fmt.Println("SBK container extracted successfully!")
		return nil
	},
}

// sbkReplaceCmd replaces one embedded stream with new audio.
var sbkReplaceCmd = &cobra.Command{
	Use:   "replace [container] [chunk_index] [replacement_audio] [output_file]",
	Short: "Replace one embedded stream with new audio",
	Long: `Replace one embedded stream of an SBK container with new audio.

The replacement is re-encoded through the external build tool until its
size fits the original stream's byte window, then the output container is
patched in place. A replacement that cannot fit even at minimum quality is
reported as failed. A fixed-bitrate replacement that overshoots the window
requires --allow-oversize, after which offsets of later streams recorded
elsewhere become stale.

Example:
  sbktools sbk replace MUSIC.SBK 2 new_theme.wav MUSIC_modified.SBK`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return fmt.Errorf("error getting verbose flag: %w", err)
		}
		common.SetVerboseMode(verbose)

		offset, err := cmd.Flags().GetInt64("offset")
		if err != nil {
			return fmt.Errorf("error getting offset flag: %w", err)
		}
		allowOversize, err := cmd.Flags().GetBool("allow-oversize")
		if err != nil {
			return fmt.Errorf("error getting allow-oversize flag: %w", err)
		}
		toolPath, err := cmd.Flags().GetString("build-tool")
		if err != nil {
			return fmt.Errorf("error getting build-tool flag: %w", err)
		}

		var chunkIndex int
		if _, err := fmt.Sscanf(args[1], "%d", &chunkIndex); err != nil {
			return fmt.Errorf("invalid chunk index %q: %w", args[1], err)
		}

		_, chunks, err := loadContainer(cmd.Context(), args[0], offset, sharedEngine())
		if err != nil {
			return err
		}
		chunk, err := pkg.ResolveChunk(chunks, pkg.BatchItem{ChunkIndex: chunkIndex})
		if err != nil {
			return err
		}

		engine := pkg.NewRebuildEngine(ffmpeg.NewBuildCLI(toolPath))
		fmt.Printf("Replacing chunk %d (%s) of %s\n", chunk.Index, chunk.Name, args[0])

		result, err := engine.Rebuild(cmd.Context(), pkg.RebuildRequest{
			Chunk:         chunk,
			SourcePath:    args[2],
			ContainerPath: args[0],
			OutputPath:    args[3],
			AllowOversize: allowOversize,
		})
		if err != nil {
			return err
		}

		switch result.Status {
		case pkg.StatusDone:
			fmt.Printf("Stream replaced successfully! (%d -> %d bytes)\n", result.OriginalSize, result.NewSize)
			return nil
		case pkg.StatusOversizedConfirmationNeeded:
			fmt.Printf("Build is oversized: %d bytes into a %d byte window.\n", result.NewSize, result.OriginalSize)
			fmt.Println("Re-run with --allow-oversize to splice it in; offsets of later streams will shift.")
			return fmt.Errorf("oversized replacement requires confirmation")
		default:
			return fmt.Errorf("replace failed: %s", result.Message)
		}
	},
}

// init initializes the SBK command and its subcommands with appropriate flags.
func init() {
	rootCmd.AddCommand(sbkCmd)

	sbkCmd.AddCommand(sbkInfoCmd)
	sbkCmd.AddCommand(sbkExtractCmd)
	sbkCmd.AddCommand(sbkReplaceCmd)

	sbkInfoCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output (show debug messages)")
	sbkInfoCmd.Flags().Int64("offset", 0, "Byte offset of a container nested inside a bundle")

	sbkExtractCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output (show debug messages)")
	sbkExtractCmd.Flags().Int64("offset", 0, "Byte offset of a container nested inside a bundle")
	sbkExtractCmd.Flags().Int("index", -1, "Extract only the stream with this index")

	sbkReplaceCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output (show debug messages)")
	sbkReplaceCmd.Flags().Int64("offset", 0, "Byte offset of a container nested inside a bundle")
	sbkReplaceCmd.Flags().Bool("allow-oversize", false, "Splice an oversized replacement, shifting later offsets")
	sbkReplaceCmd.Flags().String("build-tool", "sbkenc", "External build tool executable")
}
