// Package cli provides the docqa command line interface.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=v1.2.3".
var version = "dev"

var (
	verbose   bool
	logFormat string
)

// Services injected by main. A nil service makes the commands that need
// it fail with "... service not configured".
var (
	settingsService  driving.SettingsService
	ingestService    driving.IngestService
	indexService     driving.IndexService
	retrievalService driving.RetrievalService
	answerService    driving.AnswerService
	sessionService   driving.SessionService
	stagedDocuments  StagedDocuments
	stagingDir       string
)

// Services is everything the commands run against.
type Services struct {
	Settings   driving.SettingsService
	Ingest     driving.IngestService
	Index      driving.IndexService
	Retrieval  driving.RetrievalService
	Answers    driving.AnswerService
	Sessions   driving.SessionService
	Staged     StagedDocuments
	StagingDir string
}

// SetServices wires the services used by the commands.
func SetServices(s Services) {
	settingsService = s.Settings
	ingestService = s.Ingest
	indexService = s.Index
	retrievalService = s.Retrieval
	answerService = s.Answers
	sessionService = s.Sessions
	stagedDocuments = s.Staged
	stagingDir = s.StagingDir
}

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Answer questions from your own documents",
	Long: `docqa converts a folder of documents into searchable chunks and answers
questions grounded in them.

Typical workflow:
  docqa ingest ./knowledge      # convert documents into the staging folder
  docqa index                   # chunk, embed and store staged documents
  docqa ask "What is the notice period?"
  docqa chat                    # multi-turn conversation`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		format := logger.Format(logFormat)
		if format != logger.FormatText && format != logger.FormatJSON {
			return fmt.Errorf("unknown log format %q (want text or json)", logFormat)
		}
		logger.SetFormat(format)
		logger.SetVerbose(verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", string(logger.FormatText), "log output format: text or json")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
