package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

func TestIngestCmd_RequiresFolder(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest"})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestIngestCmd_PassesOptionsAndPrintsReport(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	ingest := &mockIngestService{report: &domain.IngestReport{
		Converted: []string{"acme.pdf.md", "policies__leave.html.md"},
		Skipped:   []string{"logo.png"},
		Failures:  []error{&domain.ConversionError{Source: "broken.pdf", Err: errors.New("no pages")}},
	}}
	ingestService = ingest

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"ingest", "./knowledge", "--include", "**/*.pdf,**/*.html", "--doc-type", "contract"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Equal(t, "./knowledge", ingest.opts.SourceDir)
	assert.Equal(t, []string{"**/*.pdf", "**/*.html"}, ingest.opts.Include)
	assert.Equal(t, "contract", ingest.opts.DocType)

	out := buf.String()
	assert.Contains(t, out, "Converted 2 documents")
	assert.Contains(t, out, "policies__leave.html.md")
	assert.Contains(t, out, "Skipped 1 unsupported files")
	assert.Contains(t, out, "Failed 1 documents")
	assert.Contains(t, out, "broken.pdf")
}

func TestIngestCmd_ServiceError(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	ingestService = &mockIngestService{err: domain.NewUsageError("ingest: folder does not exist")}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"ingest", "missing"})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUsage)
}
