package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrag/internal/store"
)

// Resource URIs.
const (
	QueryMetricsURI     = "amanrag://query_metrics"
	documentURIPrefix   = "amanrag://documents/"
	DocumentURITemplate = documentURIPrefix + "{id}"
)

func (s *Server) registerResources() {
	if s.metrics != nil {
		s.mcp.AddResource(&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Retrieval telemetry: outcomes, latency, frequent terms and zero-result queries",
			MIMEType:    "application/json",
		}, s.readQueryMetrics)
	}
	if s.documents != nil {
		s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
			Name:        "document",
			URITemplate: DocumentURITemplate,
			Description: "Full text of an indexed document; use the document_id from retrieve results",
			MIMEType:    "text/markdown",
		}, s.readDocument)
	}
}

func (s *Server) readQueryMetrics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(toQueryStats(s.metrics.Snapshot()), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      QueryMetricsURI,
			MIMEType: "application/json",
			Text:     string(content),
		}},
	}, nil
}

func (s *Server) readDocument(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	text, err := s.documentText(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     text,
		}},
	}, nil
}

// documentText renders the document addressed by uri.
func (s *Server) documentText(ctx context.Context, uri string) (string, error) {
	id, ok := strings.CutPrefix(uri, documentURIPrefix)
	if !ok || id == "" {
		return "", NewResourceNotFoundError(uri)
	}
	doc, err := s.documents.GetDocument(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "", NewResourceNotFoundError(uri)
	}
	if err != nil {
		return "", MapError(err)
	}

	var sb strings.Builder
	if doc.Title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", doc.Title)
	}
	if doc.SourceURL != "" {
		fmt.Fprintf(&sb, "Source: %s\n\n", doc.SourceURL)
	}
	if doc.Synopsis != "" {
		fmt.Fprintf(&sb, "> %s\n\n", doc.Synopsis)
	}
	sb.WriteString(doc.Content)
	return sb.String(), nil
}
