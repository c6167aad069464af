package mcp

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/docqa/internal/core/domain"
	"github.com/custodia-labs/docqa/internal/core/ports/driving"
)

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query  string `json:"query" jsonschema:"the text to find relevant passages for"`
	K      int    `json:"k,omitempty" jsonschema:"maximum number of passages to return (default 5)"`
	Filter string `json:"filter,omitempty" jsonschema:"metadata filter, e.g. doc_type eq 'contract' and last_update ge 2024-01-01"`
	Mode   string `json:"mode,omitempty" jsonschema:"search mode: hybrid, vector or text_only"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Passages []PassageOutput `json:"passages"`
	Count    int             `json:"count"`
	Mode     string          `json:"mode"`
	Degraded bool            `json:"degraded,omitempty"`
}

// PassageOutput represents a single retrieved chunk.
type PassageOutput struct {
	ChunkID    string  `json:"chunk_id"`
	Source     string  `json:"source"`
	DocType    string  `json:"doc_type"`
	Headers    string  `json:"headers,omitempty"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
	LastUpdate string  `json:"last_update,omitempty"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the indexed documents"`
	K        int    `json:"k,omitempty" jsonschema:"number of passages used as context (default 5)"`
	Filter   string `json:"filter,omitempty" jsonschema:"metadata filter restricting the context"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer   string          `json:"answer"`
	Grounded bool            `json:"grounded"`
	Sources  []PassageOutput `json:"sources"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Find the passages of the indexed documents most relevant to a query",
	}, s.handleRetrieve)

	if s.ports.Answers != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ask",
			Description: "Answer a question using only the indexed documents",
		}, s.handleAsk)
	}
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	k := input.K
	if k <= 0 {
		k = domain.DefaultTopK
	}
	filter, err := domain.ParseFilter(input.Filter)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	result, err := s.ports.Retrieval.Retrieve(ctx, input.Query, domain.RetrieveOptions{
		K:      k,
		Filter: filter,
		Mode:   domain.SearchMode(input.Mode),
	})
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	return nil, RetrieveOutput{
		Passages: passages(result.Items),
		Count:    result.Len(),
		Mode:     result.Mode.String(),
		Degraded: result.Degraded,
	}, nil
}

// handleAsk handles the ask tool invocation. The answer is collected in
// full; a failed turn is a tool error, never an empty answer.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	filter, err := domain.ParseFilter(input.Filter)
	if err != nil {
		return nil, AskOutput{}, err
	}

	stream, err := s.ports.Answers.Ask(ctx, input.Question, driving.AskOptions{K: input.K, Filter: filter})
	if err != nil {
		return nil, AskOutput{}, err
	}
	defer stream.Close()

	var text strings.Builder
	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, AskOutput{}, err
		}
		text.WriteString(tok)
	}

	answer := stream.Answer()
	return nil, AskOutput{
		Answer:   text.String(),
		Grounded: answer.Grounded,
		Sources:  passages(answer.Sources),
	}, nil
}

func passages(items []domain.ScoredChunk) []PassageOutput {
	out := make([]PassageOutput, len(items))
	for i := range items {
		c := items[i].Chunk
		p := PassageOutput{
			ChunkID: c.ID,
			Source:  c.Source,
			DocType: c.DocType,
			Headers: strings.Join(c.Headers, " > "),
			Score:   items[i].Score,
			Content: c.Content,
		}
		if !c.LastUpdate.IsZero() {
			p.LastUpdate = c.LastUpdate.UTC().Format(time.RFC3339)
		}
		out[i] = p
	}
	return out
}
