package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/normalisers"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
}

func newTestIngest(t *testing.T) (*IngestService, *file.StagingStore) {
	t.Helper()
	staging, err := file.NewStagingStore(t.TempDir())
	require.NoError(t, err)
	return NewIngestService(normalisers.NewDefaultRegistry(), staging), staging
}

func TestIngestService_Ingest(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "acme.md", "# Acme Agreement\n\nNotice is 30 days.\n")
	writeFile(t, src, "policies/leave.html", "<html><head><title>Leave</title></head><body><h1>Leave</h1><p>20 days.</p></body></html>")
	writeFile(t, src, "notes.txt", "plain notes")
	writeFile(t, src, "logo.png", "\x89PNG")

	svc, staging := newTestIngest(t)
	report, err := svc.Ingest(context.Background(), driving.IngestOptions{SourceDir: src, DocType: "contract"})
	require.NoError(t, err)

	assert.Equal(t, []string{"acme.md.md", "notes.txt.md", "policies__leave.html.md"}, report.Converted)
	assert.Equal(t, []string{"logo.png"}, report.Skipped)
	assert.Empty(t, report.Failures)

	doc, err := staging.Get(context.Background(), "policies__leave.html.md")
	require.NoError(t, err)
	assert.Equal(t, "policies/leave.html", doc.ID)
	assert.Equal(t, "contract", doc.DocType)
	assert.Equal(t, "leave.html", doc.Metadata[domain.MetaSource])
	assert.Equal(t, "leave", doc.Metadata[domain.MetaContractName])
	assert.Contains(t, doc.Content, "# Leave")
	assert.Contains(t, doc.Content, "20 days.")
	assert.False(t, doc.LastUpdate.IsZero())
}

func TestIngestService_DefaultDocType(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "a.md", "# A\n\ntext")

	svc, staging := newTestIngest(t)
	_, err := svc.Ingest(context.Background(), driving.IngestOptions{SourceDir: src})
	require.NoError(t, err)

	doc, err := staging.Get(context.Background(), "a.md.md")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDocType, doc.DocType)
}

func TestIngestService_Include(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "contracts/acme.md", "# Acme")
	writeFile(t, src, "contracts/old/globex.md", "# Globex")
	writeFile(t, src, "drafts/wip.md", "# WIP")

	svc, _ := newTestIngest(t)
	report, err := svc.Ingest(context.Background(), driving.IngestOptions{
		SourceDir: src,
		Include:   []string{"contracts/**/*.md", "contracts/*.md"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"contracts__acme.md.md", "contracts__old__globex.md.md"}, report.Converted)
}

func TestIngestService_ConversionFailureContinues(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "broken.pdf", "not a pdf at all")
	writeFile(t, src, "bad.txt", "\xff\xfe\xfd")
	writeFile(t, src, "good.md", "# Good")

	svc, _ := newTestIngest(t)
	report, err := svc.Ingest(context.Background(), driving.IngestOptions{SourceDir: src})
	require.NoError(t, err)

	assert.Equal(t, []string{"good.md.md"}, report.Converted)
	require.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		var convErr *domain.ConversionError
		require.ErrorAs(t, f, &convErr)
		assert.ErrorIs(t, f, domain.ErrConversion)
	}
}

func TestIngestService_UsageErrors(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "file.md", "# x")

	svc, _ := newTestIngest(t)
	tests := []struct {
		name string
		opts driving.IngestOptions
	}{
		{"no folder", driving.IngestOptions{}},
		{"missing folder", driving.IngestOptions{SourceDir: filepath.Join(src, "nope")}},
		{"file not folder", driving.IngestOptions{SourceDir: filepath.Join(src, "file.md")}},
		{"bad pattern", driving.IngestOptions{SourceDir: src, Include: []string{"[unclosed"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tt.opts)
			assert.ErrorIs(t, err, domain.ErrUsage)
		})
	}
}

func TestIngestService_Canceled(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "a.md", "# A")

	svc, _ := newTestIngest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.Ingest(ctx, driving.IngestOptions{SourceDir: src})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Converted)
}
