package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

var indexWatch bool

var indexCmd = &cobra.Command{
	Use:   "index [staged-name]",
	Short: "Index staged documents",
	Long: `Chunks, embeds and stores staged documents in the vector store.
If a staged name is given, only that document is indexed. Otherwise all
staged documents are indexed.

Indexing a document replaces every chunk stored for it, so re-running
index after a document changes leaves no stale chunks behind.

With --watch, the staging folder is watched after the first pass and
changed documents are re-indexed until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexWatch, "watch", "w", false, "keep watching the staging folder for changes")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	ctx := cmd.Context()

	var (
		report domain.IndexReport
		err    error
	)
	if len(args) > 0 {
		cmd.Printf("Indexing %s...\n", args[0])
		report, err = indexService.IndexStagedDocument(ctx, args[0])
	} else {
		cmd.Println("Indexing all staged documents...")
		report, err = indexService.IndexStaged(ctx)
	}
	printIndexReport(cmd, report)
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}

	if indexWatch {
		if stagingDir == "" {
			return errors.New("staging folder not configured")
		}
		return watchStaging(ctx, cmd, stagingDir)
	}
	return nil
}

func printIndexReport(cmd *cobra.Command, report domain.IndexReport) {
	cmd.Printf("Indexed %d of %d chunks", report.Indexed, report.Attempted)
	if report.Failed > 0 {
		cmd.Printf(" (%d failed)", report.Failed)
	}
	cmd.Println()

	for _, f := range report.Failures {
		cmd.Printf("  %s #%d: %v\n", f.Source, f.Position, f.Err)
	}
	for _, w := range report.Warnings {
		cmd.Printf("  warning: %s\n", w)
	}
}
