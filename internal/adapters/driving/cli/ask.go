package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

var (
	askK      int
	askFilter string
	askMode   string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieves the passages most relevant to the question and asks the
language model to answer from them only. The answer streams to the
terminal as it is generated and ends with the sources it was drawn from.

Filters restrict retrieval by metadata:
  docqa ask "What is the notice period?" --filter "doc_type eq 'contract'"
  docqa ask "Leave policy?" --filter "last_update ge 2024-01-01" --k 8`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVar(&askK, "k", 0, "number of passages to retrieve (default from config)")
	askCmd.Flags().StringVarP(&askFilter, "filter", "f", "", "metadata filter, e.g. \"doc_type eq 'contract'\"")
	askCmd.Flags().StringVar(&askMode, "mode", "", "search mode: hybrid, vector or text_only")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return errors.New("answer service not configured")
	}

	filter, err := domain.ParseFilter(askFilter)
	if err != nil {
		return err
	}

	stream, err := answerService.Ask(cmd.Context(), args[0], driving.AskOptions{
		K:      askK,
		Filter: filter,
		Mode:   domain.SearchMode(askMode),
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	return printStream(cmd, stream)
}
