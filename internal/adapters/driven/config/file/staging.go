package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Ensure StagingStore implements the interface.
var _ driven.StagingStore = (*StagingStore)(nil)

const (
	stagedExt  = ".md"
	sidecarExt = ".meta.yaml"
)

// sidecar is the YAML metadata written next to each staged document.
type sidecar struct {
	Source       string            `yaml:"source"`
	Title        string            `yaml:"title,omitempty"`
	DocType      string            `yaml:"doc_type"`
	LastUpdate   time.Time         `yaml:"last_update"`
	ContractName string            `yaml:"contract_name,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
}

// StagingStore keeps converted documents as markdown files. Each
// "<name>.md" has a "<name>.meta.yaml" sidecar holding its metadata.
// Staged files are plain text so they can be inspected and edited
// before indexing.
type StagingStore struct {
	dir string
}

// NewStagingStore creates a staging store rooted at dir.
// If dir is empty, defaults to ~/.docqa/staging.
func NewStagingStore(dir string) (*StagingStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".docqa", "staging")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &StagingStore{dir: dir}, nil
}

// Dir returns the staging directory.
func (s *StagingStore) Dir() string {
	return s.dir
}

// StagedName maps a document ID such as "contracts/acme.pdf" to its
// staged file name "contracts__acme.pdf.md".
func StagedName(id string) string {
	flat := strings.ReplaceAll(filepath.ToSlash(id), "/", "__")
	return flat + stagedExt
}

// Put writes the document and its sidecar.
func (s *StagingStore) Put(_ context.Context, doc *domain.Document) (string, error) {
	if doc == nil || doc.ID == "" {
		return "", fmt.Errorf("%w: staged document needs an ID", domain.ErrInvalidInput)
	}

	name := StagedName(doc.ID)
	meta := sidecar{
		Source:       doc.ID,
		Title:        doc.Title,
		DocType:      doc.DocType,
		LastUpdate:   doc.LastUpdate.UTC(),
		ContractName: doc.Metadata[domain.MetaContractName],
		Metadata:     extraMetadata(doc.Metadata),
	}
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata for %s: %w", doc.ID, err)
	}

	if err := writeAtomic(filepath.Join(s.dir, name), []byte(doc.Content)); err != nil {
		return "", fmt.Errorf("stage %s: %w", doc.ID, err)
	}
	if err := writeAtomic(filepath.Join(s.dir, sidecarName(name)), data); err != nil {
		return "", fmt.Errorf("stage metadata for %s: %w", doc.ID, err)
	}
	return name, nil
}

// Get loads a staged document. A missing sidecar is tolerated: the
// document is then identified by its file name and dated by its
// modification time.
func (s *StagingStore) Get(_ context.Context, name string) (*domain.Document, error) {
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, stagedExt) {
		return nil, fmt.Errorf("%w: staged name %q", domain.ErrInvalidInput, name)
	}

	path := filepath.Join(s.dir, name)
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("staged document %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read staged %s: %w", name, err)
	}

	meta, err := s.readSidecar(name)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat staged %s: %w", name, err)
		}
		meta = &sidecar{
			Source:     strings.TrimSuffix(name, stagedExt),
			LastUpdate: info.ModTime().UTC(),
		}
	}

	doc := &domain.Document{
		ID:         meta.Source,
		Title:      meta.Title,
		Content:    string(content),
		DocType:    meta.DocType,
		LastUpdate: meta.LastUpdate,
		Metadata:   make(map[string]string, len(meta.Metadata)+3),
	}
	if doc.DocType == "" {
		doc.DocType = domain.DefaultDocType
	}
	for k, v := range meta.Metadata {
		doc.Metadata[k] = v
	}
	doc.Metadata[domain.MetaSource] = doc.SourceName()
	doc.Metadata[domain.MetaDocType] = doc.DocType
	if meta.ContractName != "" {
		doc.Metadata[domain.MetaContractName] = meta.ContractName
	}
	return doc, nil
}

// List returns the staged document names, sorted.
func (s *StagingStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list staging directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), stagedExt) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *StagingStore) readSidecar(name string) (*sidecar, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, sidecarName(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metadata for %s: %w", name, err)
	}

	var meta sidecar
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata for %s: %w", name, err)
	}
	if meta.Source == "" {
		meta.Source = strings.TrimSuffix(name, stagedExt)
	}
	return &meta, nil
}

func sidecarName(name string) string {
	return strings.TrimSuffix(name, stagedExt) + sidecarExt
}

// extraMetadata drops keys the sidecar stores as dedicated fields.
func extraMetadata(m map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range m {
		switch k {
		case domain.MetaSource, domain.MetaDocType, domain.MetaContractName, domain.MetaLastUpdate:
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// writeAtomic writes via a temp file and rename so that a concurrent
// reader (index --watch) never sees a half-written file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".staging-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
