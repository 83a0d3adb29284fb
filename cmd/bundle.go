// Package cmd provides command-line interface for bundle file processing.
// This file contains commands for locating and extracting SBK containers
// nested inside larger asset bundle files.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/hansbonini/sbktools/pkg"
	"github.com/hansbonini/sbktools/pkg/common"
	"github.com/spf13/cobra"
)

// bundleCmd represents the parent command for bundle file operations.
var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Process asset bundle files containing nested SBK containers",
	Long: `Process asset bundle files containing nested SBK containers.

Commands:
  scan      Locate nested SBK containers inside a bundle
  extract   Copy one nested container out to a standalone file

Examples:
  sbktools bundle scan ASSETS.BIG
  sbktools bundle extract ASSETS.BIG 4096 MUSIC.SBK`,
}

// bundleScanCmd locates nested SBK containers inside a bundle file.
var bundleScanCmd = &cobra.Command{
	Use:   "scan [bundle_file]",
	Short: "Locate nested SBK containers inside a bundle",
	Long: `Locate nested SBK containers inside a bundle file.

Candidates are probed at aligned boundaries and must parse cleanly before
they are reported, so stray payload bytes that happen to look like a
container magic are rejected.

Example:
  sbktools bundle scan ASSETS.BIG
  sbktools bundle scan -v ASSETS.BIG`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return fmt.Errorf("error getting verbose flag: %w", err)
		}
		common.SetVerboseMode(verbose)

		f, err := os.Open(args[0])
		if err != nil {
			return common.FormatError(common.ErrFailedToOpenContainer, err)
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			return err
		}

		found, err := pkg.ScanBundle(f, fi.Size())
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Println("No nested SBK containers found.")
			return nil
		}

		fmt.Printf("Version | Offset     | Length     | Streams\n")
		fmt.Printf("--------|------------|------------|--------\n")
		for _, nc := range found {
			fmt.Printf("%-7s | 0x%08X | %10d | %7d\n", nc.Version, nc.Offset, nc.Length, nc.Streams)
		}
		return nil
	},
}

// bundleExtractCmd copies one nested container out to a standalone file.
var bundleExtractCmd = &cobra.Command{
	Use:   "extract [bundle_file] [offset] [output_file]",
	Short: "Copy one nested container out to a standalone file",
	Long: `Copy one nested SBK container out of a bundle to a standalone file.

The offset must be the start of a container, as reported by 'bundle scan'.

Example:
  sbktools bundle extract ASSETS.BIG 4096 MUSIC.SBK`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return fmt.Errorf("error getting verbose flag: %w", err)
		}
		common.SetVerboseMode(verbose)

		var offset int64
		if _, err := fmt.Sscanf(args[1], "%d", &offset); err != nil {
			return fmt.Errorf("invalid offset %q: %w", args[1], err)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return common.FormatError(common.ErrFailedToOpenContainer, err)
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			return err
		}

		tag, err := pkg.DetectVersion(f, offset, fi.Size()-offset)
		if err != nil {
			return err
		}
		if tag == pkg.VersionUnknown {
			return fmt.Errorf("no SBK container magic at offset 0x%X", offset)
		}

		found, err := pkg.ScanBundle(f, fi.Size())
		if err != nil {
			return err
		}
		var length int64
		for _, nc := range found {
			if nc.Offset == offset {
				length = nc.Length
				break
			}
		}
		if length == 0 {
			return fmt.Errorf("offset 0x%X is not the start of a parseable container", offset)
		}

		out, err := os.Create(args[2])
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, io.NewSectionReader(f, offset, length)); err != nil {
			out.Close()
			os.Remove(args[2])
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}

		fmt.Printf("Extracted %s container (%d bytes) to %s\n", tag, length, args[2])
		return nil
	},
}

// init initializes the bundle command and its subcommands with appropriate flags.
func init() {
	rootCmd.AddCommand(bundleCmd)
	bundleCmd.AddCommand(bundleScanCmd)
	bundleCmd.AddCommand(bundleExtractCmd)

	bundleScanCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output (show debug messages)")
	bundleExtractCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output (show debug messages)")
}
