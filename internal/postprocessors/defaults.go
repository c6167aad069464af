package postprocessors

import (
	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/postprocessors/chunker"
)

// Built-in processor names.
const (
	ProcessorHeaders = "headers"
	ProcessorSize    = "size"
)

// RegisterDefaults registers the header splitter and the size splitter.
// markers configures the header splitter; nil selects the level-1/level-2
// defaults.
func RegisterDefaults(r *Registry, markers []domain.BoundaryMarker) {
	r.Register(ProcessorHeaders, func(_ map[string]any) (driven.PostProcessor, error) {
		return chunker.NewHeaderSplitter(markers), nil
	})
	r.Register(ProcessorSize, buildSizeSplitter)
}

// buildSizeSplitter creates a size splitter from generic config.
// Supported config keys:
//   - chunk_size (int): maximum characters per chunk (default: 4000)
//   - overlap (int): characters repeated between pieces (default: 0)
func buildSizeSplitter(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if size, ok := getIntFromConfig(cfg, "chunk_size"); ok {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := getIntFromConfig(cfg, "overlap"); ok {
		opts = append(opts, chunker.WithOverlap(overlap))
	}

	return chunker.New(opts...), nil
}

// getIntFromConfig extracts an int from a config map decoded from TOML,
// YAML or JSON, which disagree on the numeric type.
func getIntFromConfig(cfg map[string]any, key string) (int, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
