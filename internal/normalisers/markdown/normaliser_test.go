package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

func TestSupportedExtensions(t *testing.T) {
	n := New()
	assert.ElementsMatch(t, []string{".md", ".markdown"}, n.SupportedExtensions())
	assert.Equal(t, 50, n.Priority())
}

func TestNormalise_ATXUnchanged(t *testing.T) {
	src := "# Intro\n\nHello.\n\n## Details\n\n- one\n- two\n"
	doc, err := New().Normalise(context.Background(), &domain.RawDocument{
		URI:     "notes/readme.md",
		Content: []byte(src),
	})
	require.NoError(t, err)

	assert.Equal(t, "# Intro\n\nHello.\n\n## Details\n\n- one\n- two", doc.Content)
	assert.Equal(t, "Intro", doc.Title)
	assert.Equal(t, "notes/readme.md", doc.ID)
	assert.Equal(t, "markdown", doc.Metadata[domain.MetaFormat])
}

func TestNormalise_SetextRewritten(t *testing.T) {
	src := "Payment Terms\n=============\n\nNet 30.\n\nLate Fees\n---------\n\nTwo percent.\n"
	doc, err := New().Normalise(context.Background(), &domain.RawDocument{
		URI:     "contract.md",
		Content: []byte(src),
	})
	require.NoError(t, err)

	assert.Equal(t, "# Payment Terms\n\nNet 30.\n\n## Late Fees\n\nTwo percent.", doc.Content)
	assert.Equal(t, "Payment Terms", doc.Title)
}

func TestNormalise_CRLF(t *testing.T) {
	src := "Title\r\n=====\r\n\r\nBody\r\n"
	doc, err := New().Normalise(context.Background(), &domain.RawDocument{URI: "a.md", Content: []byte(src)})
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody", doc.Content)
}

func TestNormalise_FencedCodeUntouched(t *testing.T) {
	src := "# Script\n\n```bash\n# comment\necho hi\n```\n"
	doc, err := New().Normalise(context.Background(), &domain.RawDocument{URI: "a.md", Content: []byte(src)})
	require.NoError(t, err)
	assert.Equal(t, "# Script\n\n```bash\n# comment\necho hi\n```", doc.Content)
}

func TestNormalise_TitleFallsBackToFilename(t *testing.T) {
	doc, err := New().Normalise(context.Background(), &domain.RawDocument{
		URI:     "docs/service_level-agreement.md",
		Content: []byte("## Only a subsection\n\ntext"),
	})
	require.NoError(t, err)
	assert.Equal(t, "service level agreement", doc.Title)
}

func TestNormalise_KeepsMetadata(t *testing.T) {
	raw := &domain.RawDocument{
		URI:      "a.md",
		Content:  []byte("text"),
		Metadata: map[string]string{domain.MetaDocType: "policy"},
	}
	doc, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "policy", doc.Metadata[domain.MetaDocType])
	_, leaked := raw.Metadata[domain.MetaFormat]
	assert.False(t, leaked, "input metadata must not be modified")
}

func TestNormalise_NilDocument(t *testing.T) {
	doc, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, doc)
}

func TestNormalise_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Normalise(ctx, &domain.RawDocument{URI: "a.md"})
	assert.ErrorIs(t, err, context.Canceled)
}
