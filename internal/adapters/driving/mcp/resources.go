package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for docqa resources.
	uriScheme = "docqa://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing staged documents.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "staged",
		Name:        "staged",
		Description: "Converted documents in the staging folder",
		MIMEType:    "application/json",
	}, s.handleStagedResource)

	// Template for staged document content.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "staged/{name}",
		Name:        "staged-document",
		Description: "Markdown content of a staged document",
		MIMEType:    "text/markdown",
	}, s.handleStagedDocumentResource)
}

// handleStagedResource returns the staged documents with their metadata.
func (s *Server) handleStagedResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Staged == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "[]",
			}},
		}, nil
	}

	names, err := s.ports.Staged.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing staged documents: %w", err)
	}

	type stagedInfo struct {
		Name       string `json:"name"`
		Source     string `json:"source"`
		Title      string `json:"title,omitempty"`
		DocType    string `json:"doc_type"`
		LastUpdate string `json:"last_update,omitempty"`
		URI        string `json:"uri"`
	}

	infos := make([]stagedInfo, 0, len(names))
	for _, name := range names {
		doc, err := s.ports.Staged.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("reading staged %s: %w", name, err)
		}
		info := stagedInfo{
			Name:    name,
			Source:  doc.ID,
			Title:   doc.Title,
			DocType: doc.DocType,
			URI:     uriScheme + "staged/" + name,
		}
		if !doc.LastUpdate.IsZero() {
			info.LastUpdate = doc.LastUpdate.UTC().Format(time.RFC3339)
		}
		infos = append(infos, info)
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling staged documents: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleStagedDocumentResource returns the content of one staged document.
func (s *Server) handleStagedDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Staged == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	// Extract name from URI: docqa://staged/{name}
	name := extractStagedName(req.Params.URI)
	if name == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Staged.Get(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("getting staged document: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     doc.Content,
		}},
	}, nil
}

// extractStagedName extracts the staged name from a URI like docqa://staged/{name}.
func extractStagedName(uri string) string {
	const prefix = uriScheme + "staged/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	name := strings.TrimPrefix(uri, prefix)
	if strings.Contains(name, "/") {
		return ""
	}
	return name
}
