package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printStream drains an answer stream. On a terminal tokens are echoed as
// they arrive; otherwise the answer is printed once it is complete. A
// failed turn prints any partial text marked as incomplete and returns
// the failure.
func printStream(cmd *cobra.Command, stream driving.AnswerStream) error {
	out := cmd.OutOrStdout()
	live := isTerminal(out)

	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			answer := stream.Answer()
			switch {
			case live && answer.Text != "":
				fmt.Fprintln(out, " [incomplete]")
			case answer.Text != "":
				fmt.Fprintf(out, "%s [incomplete]\n", answer.Text)
			}
			return err
		}
		if live {
			fmt.Fprint(out, tok)
		}
	}

	answer := stream.Answer()
	if live {
		fmt.Fprintln(out)
	} else {
		fmt.Fprintln(out, answer.Text)
	}
	printSources(out, answer)
	return nil
}

func printSources(out io.Writer, answer domain.Answer) {
	if !answer.Grounded {
		fmt.Fprintln(out, "\n(No matching passages were found; this answer is not grounded in your documents.)")
		return
	}

	fmt.Fprintln(out, "\nSources:")
	seen := make(map[string]bool)
	for i := range answer.Sources {
		c := answer.Sources[i].Chunk
		label := c.Source
		if len(c.Headers) > 0 {
			label += " > " + strings.Join(c.Headers, " > ")
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		fmt.Fprintf(out, "  - %s\n", label)
	}
}
