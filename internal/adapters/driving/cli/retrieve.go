package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

var (
	retrieveK      int
	retrieveFilter string
	retrieveMode   string
	retrieveJSON   bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Show the passages a question would be answered from",
	Long: `Runs retrieval only, without calling the language model. Hybrid mode
combines keyword (BM25) and semantic (vector) search; vector and
text_only use one of them.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVarP(&retrieveK, "limit", "n", domain.DefaultTopK, "maximum number of passages")
	retrieveCmd.Flags().StringVarP(&retrieveFilter, "filter", "f", "", "metadata filter, e.g. \"doc_type eq 'contract'\"")
	retrieveCmd.Flags().StringVar(&retrieveMode, "mode", "", "search mode: hybrid, vector or text_only")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output passages as JSON")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	filter, err := domain.ParseFilter(retrieveFilter)
	if err != nil {
		return err
	}

	result, err := retrievalService.Retrieve(cmd.Context(), args[0], domain.RetrieveOptions{
		K:      retrieveK,
		Filter: filter,
		Mode:   domain.SearchMode(retrieveMode),
	})
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if retrieveJSON {
		return outputRetrieveJSON(cmd, result)
	}
	return outputRetrieveTable(cmd, result)
}

type passageJSON struct {
	ChunkID    string    `json:"chunk_id"`
	Source     string    `json:"source"`
	DocType    string    `json:"doc_type"`
	Headers    []string  `json:"headers,omitempty"`
	Score      float64   `json:"score"`
	LastUpdate time.Time `json:"last_update"`
	Content    string    `json:"content"`
}

func outputRetrieveJSON(cmd *cobra.Command, result *domain.RetrievalResult) error {
	passages := make([]passageJSON, len(result.Items))
	for i := range result.Items {
		c := result.Items[i].Chunk
		passages[i] = passageJSON{
			ChunkID:    c.ID,
			Source:     c.Source,
			DocType:    c.DocType,
			Headers:    c.Headers,
			Score:      result.Items[i].Score,
			LastUpdate: c.LastUpdate,
			Content:    c.Content,
		}
	}

	data, err := json.MarshalIndent(passages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal passages: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputRetrieveTable(cmd *cobra.Command, result *domain.RetrievalResult) error {
	if result.Degraded {
		cmd.Println("Note: keyword search was unavailable, showing vector results only.")
	}
	if len(result.Items) == 0 {
		cmd.Println("No passages found.")
		return nil
	}

	cmd.Printf("Passages (%s):\n\n", result.Mode)
	for i := range result.Items {
		c := result.Items[i].Chunk
		title := c.Source
		if len(c.Headers) > 0 {
			title += " > " + strings.Join(c.Headers, " > ")
		}

		cmd.Printf("  [%d] %s (%.4f)\n", i+1, title, result.Items[i].Score)
		cmd.Printf("      %s\n", snippet(c.Content, 160))
		cmd.Println()
	}
	return nil
}

// snippet returns the first n runes of s on one line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
