// Package postprocessors turns normalised documents into chunks by running
// a configurable chain of processors.
package postprocessors

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
)

// Pipeline runs processors in order. The first processor receives nil
// chunks and creates them from the document.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a pipeline from processors in execution order.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{processors: processors}
}

// BuildPipeline constructs the pipeline described by cfg. An empty
// processor list falls back to the header splitter alone.
func BuildPipeline(r *Registry, cfg domain.PipelineConfig) (*Pipeline, error) {
	names := cfg.Processors
	if len(names) == 0 {
		names = []string{ProcessorHeaders}
	}

	p := NewPipeline()
	for _, name := range names {
		proc, err := r.Build(name, cfg.GetProcessorConfig(name))
		if err != nil {
			return nil, fmt.Errorf("build pipeline: %w", err)
		}
		p.Add(proc)
	}
	return p, nil
}

// Process chunks doc.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, errors.New("document is nil")
	}

	var chunks []domain.Chunk
	for _, processor := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		chunks, err = processor.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", processor.Name(), err)
		}
	}

	return chunks, nil
}

// Add appends a processor.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

// Names returns the processor names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// Len returns the number of processors.
func (p *Pipeline) Len() int {
	return len(p.processors)
}
