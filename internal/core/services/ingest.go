package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// defaultInclude matches every file below the source folder.
const defaultInclude = "**/*"

// IngestService converts source files to markdown and stages them.
type IngestService struct {
	normalisers driven.NormaliserRegistry
	staging     driven.StagingStore
}

// NewIngestService creates an ingest service.
func NewIngestService(normalisers driven.NormaliserRegistry, staging driven.StagingStore) *IngestService {
	return &IngestService{normalisers: normalisers, staging: staging}
}

// Ingest converts every file under opts.SourceDir that matches an include
// pattern. Files without a normaliser are skipped; files that fail are
// reported and the batch continues.
func (s *IngestService) Ingest(ctx context.Context, opts driving.IngestOptions) (*domain.IngestReport, error) {
	logger.Section("Ingest")

	if opts.SourceDir == "" {
		return nil, domain.NewUsageError("ingest: source folder is required")
	}
	info, err := os.Stat(opts.SourceDir)
	if err != nil {
		return nil, domain.NewUsageError("ingest: %v", err)
	}
	if !info.IsDir() {
		return nil, domain.NewUsageError("ingest: %s is not a directory", opts.SourceDir)
	}
	if s.normalisers == nil || s.staging == nil {
		return nil, errors.New("ingest: converters or staging store not configured")
	}

	docType := opts.DocType
	if docType == "" {
		docType = domain.DefaultDocType
	}

	files, err := s.match(opts.SourceDir, opts.Include)
	if err != nil {
		return nil, err
	}
	logger.Debug("Ingest: %d candidate files in %s", len(files), opts.SourceDir)

	report := &domain.IngestReport{}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !s.normalisers.Supports(rel) {
			report.Skipped = append(report.Skipped, rel)
			continue
		}

		name, err := s.convert(ctx, opts.SourceDir, rel, docType)
		if err != nil {
			logger.Warn("%v", err)
			report.Failures = append(report.Failures, err)
			continue
		}
		logger.Debug("Staged %s as %s", rel, name)
		report.Converted = append(report.Converted, name)
	}

	logger.Info("Ingest: %d converted, %d failed, %d skipped",
		len(report.Converted), len(report.Failures), len(report.Skipped))
	return report, nil
}

// match expands the include patterns relative to dir. Results are slash
// paths, sorted and deduplicated.
func (s *IngestService) match(dir string, include []string) ([]string, error) {
	if len(include) == 0 {
		include = []string{defaultInclude}
	}

	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, domain.NewUsageError("ingest: invalid include pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			st, err := fs.Stat(fsys, m)
			if err != nil || st.IsDir() {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// convert normalises one file and stages it. Every failure is a
// *domain.ConversionError.
func (s *IngestService) convert(ctx context.Context, dir, rel, docType string) (string, error) {
	full := filepath.Join(dir, filepath.FromSlash(rel))
	source := path.Base(rel)

	content, err := os.ReadFile(full)
	if err != nil {
		return "", &domain.ConversionError{Source: rel, Err: err}
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", &domain.ConversionError{Source: rel, Err: err}
	}

	raw := &domain.RawDocument{
		URI:      rel,
		MIMEType: mime.TypeByExtension(filepath.Ext(rel)),
		Content:  content,
		Metadata: map[string]string{
			domain.MetaSource:  source,
			domain.MetaDocType: docType,
		},
	}

	doc, err := s.normalisers.Normalise(ctx, raw)
	if err != nil {
		return "", &domain.ConversionError{Source: rel, Err: err}
	}

	doc.ID = rel
	doc.DocType = docType
	doc.LastUpdate = info.ModTime().UTC()
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string)
	}
	doc.Metadata[domain.MetaSource] = source
	doc.Metadata[domain.MetaDocType] = docType
	if doc.Metadata[domain.MetaContractName] == "" {
		doc.Metadata[domain.MetaContractName] = strings.TrimSuffix(source, path.Ext(source))
	}

	name, err := s.staging.Put(ctx, doc)
	if err != nil {
		return "", &domain.ConversionError{Source: rel, Err: fmt.Errorf("stage: %w", err)}
	}
	return name, nil
}
