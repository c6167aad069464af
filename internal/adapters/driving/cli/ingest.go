package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

var (
	ingestInclude []string
	ingestDocType string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [folder]",
	Short: "Convert documents into the staging folder",
	Long: `Converts every supported document in a folder (markdown, text, HTML,
DOCX and PDF) to markdown and writes it to the staging folder with a
metadata sidecar. A document that fails to convert is reported and
skipped; the rest of the batch continues.

Examples:
  docqa ingest ./knowledge
  docqa ingest ./knowledge --include "contracts/**/*.pdf" --doc-type contract`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestInclude, "include", nil, "glob patterns to convert (default: all supported files)")
	ingestCmd.Flags().StringVar(&ingestDocType, "doc-type", "", "document type tag (default: "+domain.DefaultDocType+")")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	report, err := ingestService.Ingest(cmd.Context(), driving.IngestOptions{
		SourceDir: args[0],
		Include:   ingestInclude,
		DocType:   ingestDocType,
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	cmd.Printf("Converted %d documents\n", len(report.Converted))
	for _, name := range report.Converted {
		cmd.Printf("  %s\n", name)
	}
	if len(report.Skipped) > 0 {
		cmd.Printf("Skipped %d unsupported files\n", len(report.Skipped))
	}
	if len(report.Failures) > 0 {
		cmd.Printf("Failed %d documents:\n", len(report.Failures))
		for _, f := range report.Failures {
			cmd.Printf("  %v\n", f)
		}
	}
	return nil
}
