package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// StagedDocuments reads the staging folder.
type StagedDocuments interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) (*domain.Document, error)
}

var stagedCmd = &cobra.Command{
	Use:   "staged",
	Short: "Inspect staged documents",
	Long:  `List staged documents and show their metadata or converted content.`,
}

var stagedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staged documents",
	Args:  cobra.NoArgs,
	RunE:  runStagedList,
}

var stagedShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show staged document metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runStagedShow,
}

var stagedContentCmd = &cobra.Command{
	Use:   "content [name]",
	Short: "Print the converted markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runStagedContent,
}

func init() {
	stagedCmd.AddCommand(stagedListCmd)
	stagedCmd.AddCommand(stagedShowCmd)
	stagedCmd.AddCommand(stagedContentCmd)
	rootCmd.AddCommand(stagedCmd)
}

func runStagedList(cmd *cobra.Command, _ []string) error {
	if stagedDocuments == nil {
		return errors.New("staging not configured")
	}

	names, err := stagedDocuments.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list staged documents: %w", err)
	}

	if len(names) == 0 {
		cmd.Println("No staged documents. Run 'docqa ingest [folder]' first.")
		return nil
	}

	for _, name := range names {
		cmd.Printf("  %s\n", name)
	}
	cmd.Printf("\nTotal: %d documents\n", len(names))
	return nil
}

func runStagedShow(cmd *cobra.Command, args []string) error {
	if stagedDocuments == nil {
		return errors.New("staging not configured")
	}

	doc, err := stagedDocuments.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get staged document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", args[0])
	cmd.Printf("  Source:   %s\n", doc.ID)
	cmd.Printf("  Title:    %s\n", doc.Title)
	cmd.Printf("  Type:     %s\n", doc.DocType)
	cmd.Printf("  Updated:  %s\n", doc.LastUpdate.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Size:     %d bytes\n", len(doc.Content))

	if len(doc.Metadata) > 0 {
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cmd.Println("\n  Metadata:")
		for _, k := range keys {
			cmd.Printf("    %s: %s\n", k, doc.Metadata[k])
		}
	}
	return nil
}

func runStagedContent(cmd *cobra.Command, args []string) error {
	if stagedDocuments == nil {
		return errors.New("staging not configured")
	}

	doc, err := stagedDocuments.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get staged document: %w", err)
	}
	cmd.Println(doc.Content)
	return nil
}
