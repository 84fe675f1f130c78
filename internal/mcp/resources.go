package mcp

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
)

// Resource URIs exposed by the server.
const (
	StatsURI     = "memory://stats"
	PlatformsURI = "memory://platforms"
)

// handleResourcesList returns the available read-only resources.
func (s *Server) handleResourcesList(req *Request) *Response {
	resources := []Resource{
		{
			URI:         StatsURI,
			Name:        "Memory statistics",
			Description: "Totals of stored conversations, messages and knowledge entries, broken down by platform and category.",
			MimeType:    "application/json",
		},
		{
			URI:         PlatformsURI,
			Name:        "Known platforms",
			Description: "Distinct assistant platforms that have stored memory.",
			MimeType:    "application/json",
		},
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"resources": resources,
		},
	}
}

// ResourceReadParams represents parameters for resources/read.
type ResourceReadParams struct {
	URI string `json:"uri"`
}

// handleResourcesRead serves the content of one resource.
func (s *Server) handleResourcesRead(ctx context.Context, req *Request) *Response {
	var params ResourceReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &Error{
				Code:    -32602,
				Message: "Invalid params",
				Data:    err.Error(),
			},
		}
	}

	content, err := s.readResource(ctx, params.URI)
	if err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &Error{
				Code:    -32000,
				Message: "Resource error",
				Data:    err.Error(),
			},
		}
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"contents": []map[string]any{
				{
					"uri":      params.URI,
					"mimeType": "application/json",
					"text":     content,
				},
			},
		},
	}
}

// readResource produces the JSON body of one resource.
func (s *Server) readResource(ctx context.Context, uri string) (string, error) {
	var result any

	switch uri {
	case StatsURI:
		stats, err := s.stats.GetStats(ctx)
		if err != nil {
			return "", err
		}
		result = stats
	case PlatformsURI:
		platforms, err := s.stats.GetPlatforms(ctx)
		if err != nil {
			return "", err
		}
		result = map[string]any{
			"platforms": platforms,
			"count":     len(platforms),
		}
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}

	output, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal resource: %w", err)
	}
	return string(output), nil
}
