// Package cmd provides command-line interface for batch replacement runs.
// This file contains the command that applies a YAML-described set of
// stream replacements against one SBK container.
package cmd

import (
	"fmt"

	"github.com/hansbonini/sbktools/pkg"
	"github.com/hansbonini/sbktools/pkg/common"
	"github.com/hansbonini/sbktools/pkg/ffmpeg"
	"github.com/spf13/cobra"
)

// batchCmd represents the parent command for batch operations.
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run batch stream replacements from a YAML description",
	Long: `Run batch stream replacements from a YAML description.

Commands:
  run       Apply every replacement in a batch file

Example:
  sbktools batch run replacements.yaml`,
}

// batchRunCmd applies every replacement in a batch file. Per-item failures
// are collected and reported in aggregate after the batch completes.
var batchRunCmd = &cobra.Command{
	Use:   "run [batch_file]",
	Short: "Apply every replacement in a batch file",
	Long: `Apply every replacement described in a YAML batch file.

The batch file names the source container, the output path, and one item
per replacement:

  container: MUSIC.SBK
  output: MUSIC_modified.SBK
  items:
    - chunk: 2
      source: new_theme.wav
    - name: ambience_cave
      source: cave.flac
      allow_oversize: true

Failures of individual items do not stop the batch; they are summarized at
the end with the chunk identity and byte window involved.

Example:
  sbktools batch run replacements.yaml`,
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
		toolPath, err := cmd.Flags().GetString("build-tool")
		if err != nil {
			return fmt.Errorf("error getting build-tool flag: %w", err)
		}

		batch, err := pkg.LoadBatchFile(args[0])
		if err != nil {
			return err
		}

		_, chunks, err := loadContainer(cmd.Context(), batch.Container, offset, sharedEngine())
		if err != nil {
			return err
		}

		fmt.Printf("Batch: %d items against %s -> %s\n", len(batch.Items), batch.Container, batch.Output)

		engine := pkg.NewRebuildEngine(ffmpeg.NewBuildCLI(toolPath))
		outcomes, runErr := engine.RunBatch(cmd.Context(), chunks, batch)

		var failed int
		fmt.Printf("\nItem | Chunk | Status                        | Original   | New        | Detail\n")
		fmt.Printf("-----|-------|-------------------------------|------------|------------|--------------------------------\n")
		for i, outcome := range outcomes {
			status := "failed"
			var original, size int64
			detail := ""
			if outcome.Result != nil {
				status = outcome.Result.Status.String()
				original = outcome.Result.OriginalSize
				size = outcome.Result.NewSize
				detail = outcome.Result.Message
			}
			if outcome.Err != nil {
				detail = outcome.Err.Error()
			}
			if outcome.Err != nil || (outcome.Result != nil && outcome.Result.Status != pkg.StatusDone) {
				failed++
			}
			fmt.Printf("%4d | %5d | %-29s | %10d | %10d | %s\n",
				i, outcome.Chunk.Index, status, original, size, detail)
		}

		if runErr != nil {
			return fmt.Errorf("batch aborted: %w", runErr)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d batch items did not complete", failed, len(outcomes))
		}
		fmt.Println("\nBatch completed successfully!")
		return nil
	},
}

// init initializes the batch command and its subcommands with appropriate flags.
func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchRunCmd)

	batchRunCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output (show debug messages)")
	batchRunCmd.Flags().Int64("offset", 0, "Byte offset of a container nested inside a bundle")
	batchRunCmd.Flags().String("build-tool", "sbkenc", "External build tool executable")
}
