package file

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

const promptExt = ".txt"

//go:embed prompts/*.txt
var defaultPrompts embed.FS

// PromptStore serves answer prompt templates. A file named <name>.txt in
// the prompt folder overrides the embedded default of the same name.
//
// The embedded defaults are copied into the folder on first use so they
// can be edited. Nothing touches the disk before that.
type PromptStore struct {
	dir string

	mu        sync.RWMutex
	templates map[string]string
	seeded    bool
}

// NewPromptStore creates a prompt store over dir.
// If dir is empty, defaults to ~/.docqa/prompts/.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".docqa", "prompts")
	}

	return &PromptStore{
		dir:       dir,
		templates: make(map[string]string),
	}, nil
}

// Dir returns the prompt folder.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the template called name. Templates are cached until Reload.
// A template without both placeholders is a UsageError; an unknown name
// wraps domain.ErrNotFound.
func (s *PromptStore) Load(name string) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tmpl, ok := s.templates[name]; ok {
		return tmpl, nil
	}

	s.seed()
	tmpl, err := s.read(name)
	if err != nil {
		return "", err
	}
	s.templates[name] = tmpl
	return tmpl, nil
}

// Reload drops the cache and re-reads every template in the folder,
// returning the first one that fails validation.
func (s *PromptStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates = make(map[string]string)
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read prompt folder: %w", err)
	}

	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), promptExt)
		if !ok || e.IsDir() {
			continue
		}
		tmpl, err := s.read(name)
		if err != nil {
			return err
		}
		s.templates[name] = tmpl
	}
	return nil
}

// seed copies the embedded defaults into the folder, leaving existing
// files alone. Failures only cost editability, so they are logged.
func (s *PromptStore) seed() {
	if s.seeded {
		return
	}
	s.seeded = true

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		logger.Warn("prompts: create folder: %v", err)
		return
	}
	entries, err := defaultPrompts.ReadDir("prompts")
	if err != nil {
		logger.Warn("prompts: read defaults: %v", err)
		return
	}
	for _, e := range entries {
		dst := filepath.Join(s.dir, e.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		data, err := defaultPrompts.ReadFile(path.Join("prompts", e.Name()))
		if err != nil {
			continue
		}
		if err := os.WriteFile(dst, data, 0600); err != nil {
			logger.Warn("prompts: write %s: %v", dst, err)
			return
		}
	}
}

// read loads one template, preferring the user's file over the default.
func (s *PromptStore) read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name+promptExt))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data, err = defaultPrompts.ReadFile(path.Join("prompts", name+promptExt))
		if err != nil {
			return "", fmt.Errorf("prompt %q: %w", name, domain.ErrNotFound)
		}
	case err != nil:
		return "", fmt.Errorf("read prompt %q: %w", name, err)
	}

	tmpl := strings.TrimSpace(string(data))
	if err := ValidateTemplate(tmpl); err != nil {
		return "", fmt.Errorf("prompt %q: %w", name, err)
	}
	return tmpl, nil
}

// ValidateTemplate checks that a template carries both the context and
// the question placeholder.
func ValidateTemplate(tmpl string) error {
	var missing []string
	for _, p := range []string{driven.PlaceholderContext, driven.PlaceholderQuestion} {
		if !strings.Contains(tmpl, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return domain.NewUsageError("template lacks %s", strings.Join(missing, " and "))
	}
	return nil
}
