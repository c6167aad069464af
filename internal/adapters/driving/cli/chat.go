package cli

import (
	"bufio"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Starts a conversation in which follow-up questions see the earlier
turns. Only completed turns are remembered; a failed turn can simply be
asked again.

Commands:
  /reset   forget the conversation so far
  /quit    leave`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errors.New("session service not configured")
	}

	ctx := cmd.Context()
	sess, err := sessionService.Start(ctx)
	if err != nil {
		return err
	}
	defer sessionService.End(sess.ID()) //nolint:errcheck // session is discarded on exit

	cmd.Println("Ask a question. /reset clears the conversation, /quit exits.")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := sess.Reset(); err != nil {
				return err
			}
			cmd.Println("Conversation cleared.")
			continue
		}

		stream, err := sess.Send(ctx, line)
		if err != nil {
			if errors.Is(err, domain.ErrUsage) {
				cmd.Printf("Error: %v\n", err)
				continue
			}
			return err
		}

		err = printStream(cmd, stream)
		stream.Close()
		if err != nil {
			cmd.Printf("Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
