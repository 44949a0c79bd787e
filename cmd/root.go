// Package cmd implements the command-line entrypoint, grounded on the
// teacher's cobra root-command shape (the original cmd/root.go): a
// PersistentPreRun that loads Settings once, version info threaded
// through ldflags, and subcommands doing the real work.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsegment/hlsdl/internal/config"
)

// Version and BuildTime are set via ldflags during build.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:     "hlsdl",
	Short:   "A resumable, crash-safe HLS segment downloader",
	Long:    `hlsdl downloads an HLS (M3U8) stream to a single MP4 file, resuming safely across crashes.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		settings = s
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}
