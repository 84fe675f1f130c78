// Package mcp provides the MCP (Model Context Protocol) server for recall.
package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/recall/internal/db"
	"github.com/thebtf/recall/internal/search"
	"github.com/thebtf/recall/pkg/models"
)

// maxLineSize bounds a single JSON-RPC line on stdin. Conversation
// payloads routinely exceed bufio.Scanner's default 64KB buffer.
const maxLineSize = 10 * 1024 * 1024

// Server is the MCP server that exposes the memory tools and resources.
type Server struct {
	stdin         io.Reader
	stdout        io.Writer
	conversations *db.ConversationStore
	knowledge     *db.KnowledgeStore
	stats         *db.StatsStore
	searchMgr     *search.Manager
	aggregator    *search.Aggregator
	version       string
}

// NewServer creates a new MCP server over stdio.
func NewServer(
	conversations *db.ConversationStore,
	knowledge *db.KnowledgeStore,
	stats *db.StatsStore,
	searchMgr *search.Manager,
	aggregator *search.Aggregator,
	version string,
) *Server {
	return &Server{
		stdin:         os.Stdin,
		stdout:        os.Stdout,
		conversations: conversations,
		knowledge:     knowledge,
		stats:         stats,
		searchMgr:     searchMgr,
		aggregator:    aggregator,
		version:       version,
	}
}

// Request represents a JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	JSONRPC string `json:"jsonrpc"`
}

// Error represents a JSON-RPC error.
type Error struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ToolCallParams represents parameters for tools/call method.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Tool represents an MCP tool definition.
type Tool struct {
	InputSchema map[string]any `json:"inputSchema"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
}

// Resource represents an MCP resource definition.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// Run starts the MCP server loop, reading one JSON-RPC message per line.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, -32700, "Parse error", err.Error())
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			s.sendResponse(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

// handleRequest dispatches the request to the appropriate handler.
// Notifications produce a nil response.
func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized", "notifications/cancelled":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/read":
		return s.handleResourcesRead(ctx, req)
	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &Error{
				Code:    -32601,
				Message: "Method not found",
			},
		}
	}
}

// handleInitialize handles the initialize request.
func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    "recall",
				"version": s.version,
			},
		},
	}
}

// handleToolsList returns the list of available tools.
func (s *Server) handleToolsList(req *Request) *Response {
	tools := []Tool{
		{
			Name:        "save_conversation",
			Description: "Save a conversation with its messages to shared memory. Use when a session produced context worth remembering across assistants.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"platform", "messages"},
				"properties": map[string]any{
					"platform": map[string]any{"type": "string", "description": "Originating assistant platform (e.g. claude, chatgpt, gemini)"},
					"title":    map[string]any{"type": "string", "description": "Short human-readable title"},
					"messages": map[string]any{
						"type":        "array",
						"description": "Ordered message turns",
						"items": map[string]any{
							"type":     "object",
							"required": []string{"role", "content"},
							"properties": map[string]any{
								"role":    map[string]any{"type": "string", "enum": []string{"system", "user", "assistant", "tool"}},
								"content": map[string]any{"type": "string"},
							},
						},
					},
					"summary":  map[string]any{"type": "string", "description": "Condensed description of what the conversation covered"},
					"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"metadata": map[string]any{"type": "object", "description": "Arbitrary extra fields stored alongside the conversation"},
				},
			},
		},
		{
			Name:        "add_message",
			Description: "Append one message to an existing conversation. The sequence position is assigned by the store.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"conversation_id", "role", "content"},
				"properties": map[string]any{
					"conversation_id": map[string]any{"type": "string", "description": "Conversation UUID"},
					"role":            map[string]any{"type": "string", "enum": []string{"system", "user", "assistant", "tool"}},
					"content":         map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        "search_memory",
			Description: "Full-text search across saved conversations and messages, ranked by relevance. Returns both conversation-level and message-level matches.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]any{
					"query":    map[string]any{"type": "string", "description": "Search query (websearch syntax: quoted phrases, OR, -exclusion)"},
					"platform": map[string]any{"type": "string", "description": "Restrict to one platform"},
					"limit":    map[string]any{"type": "number", "default": 10, "minimum": 1, "maximum": 50},
				},
			},
		},
		{
			Name:        "get_recent_conversations",
			Description: "List recently updated conversations, newest first, with their messages.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"platform": map[string]any{"type": "string", "description": "Restrict to one platform"},
					"limit":    map[string]any{"type": "number", "default": 10, "minimum": 1, "maximum": 50},
				},
			},
		},
		{
			Name:        "save_knowledge",
			Description: "Save a standalone fact, preference, instruction or decision to shared memory, independent of any conversation.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"category", "content"},
				"properties": map[string]any{
					"category":               map[string]any{"type": "string", "description": "Grouping key (e.g. preferences, decisions, facts)"},
					"content":                map[string]any{"type": "string"},
					"tags":                   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"source_platform":        map[string]any{"type": "string", "description": "Platform the knowledge came from"},
					"source_conversation_id": map[string]any{"type": "string", "description": "UUID of the conversation the knowledge was extracted from"},
					"metadata":               map[string]any{"type": "object"},
				},
			},
		},
		{
			Name:        "update_knowledge",
			Description: "Update a knowledge entry in place. Only the provided fields change; updated_at is refreshed.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]any{
					"id":      map[string]any{"type": "string", "description": "Knowledge entry UUID"},
					"content": map[string]any{"type": "string"},
					"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
		},
		{
			Name:        "search_knowledge",
			Description: "Full-text search over knowledge entries, ranked by relevance, with optional category and tag filters.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]any{
					"query":    map[string]any{"type": "string"},
					"category": map[string]any{"type": "string", "description": "Restrict to one category"},
					"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Match entries sharing at least one tag"},
					"limit":    map[string]any{"type": "number", "default": 10, "minimum": 1, "maximum": 50},
				},
			},
		},
		{
			Name:        "get_context_summary",
			Description: "Gather everything stored about a topic: ranked knowledge entries plus the most relevant conversations, in one call. Use at session start to restore context.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"topic"},
				"properties": map[string]any{
					"topic":    map[string]any{"type": "string", "description": "Topic to gather context for"},
					"platform": map[string]any{"type": "string", "description": "Restrict conversation matches to one platform"},
					"limit":    map[string]any{"type": "number", "default": 5, "minimum": 1, "maximum": 20, "description": "Cap per section"},
				},
			},
		},
		{
			Name:        "delete_memory",
			Description: "Delete a conversation (with all its messages) or a knowledge entry by id.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"type", "id"},
				"properties": map[string]any{
					"type": map[string]any{"type": "string", "enum": []string{"conversation", "knowledge"}},
					"id":   map[string]any{"type": "string", "description": "UUID of the item to delete"},
				},
			},
		},
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"tools": tools,
		},
	}
}

// handleToolsCall handles tool invocations.
func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
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

	result, err := s.callTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &Error{
				Code:    -32000,
				Message: "Tool error",
				Data: map[string]any{
					"kind":   models.ErrorKind(err),
					"detail": err.Error(),
				},
			},
		}
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": result,
				},
			},
		},
	}
}

// callTool dispatches to the appropriate tool handler.
func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	var (
		result any
		err    error
	)

	switch name {
	case "save_conversation":
		result, err = s.handleSaveConversation(ctx, args)
	case "add_message":
		result, err = s.handleAddMessage(ctx, args)
	case "search_memory":
		result, err = s.handleSearchMemory(ctx, args)
	case "get_recent_conversations":
		result, err = s.handleGetRecentConversations(ctx, args)
	case "save_knowledge":
		result, err = s.handleSaveKnowledge(ctx, args)
	case "update_knowledge":
		result, err = s.handleUpdateKnowledge(ctx, args)
	case "search_knowledge":
		result, err = s.handleSearchKnowledge(ctx, args)
	case "get_context_summary":
		result, err = s.handleGetContextSummary(ctx, args)
	case "delete_memory":
		result, err = s.handleDeleteMemory(ctx, args)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	if err != nil {
		return "", err
	}

	output, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(output), nil
}

// SaveConversationParams represents parameters for save_conversation.
type SaveConversationParams struct {
	Platform string              `json:"platform"`
	Title    string              `json:"title"`
	Summary  string              `json:"summary"`
	Tags     []string            `json:"tags"`
	Metadata map[string]any      `json:"metadata"`
	Messages []models.NewMessage `json:"messages"`
}

func (s *Server) handleSaveConversation(ctx context.Context, args json.RawMessage) (any, error) {
	var params SaveConversationParams
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if len(params.Messages) == 0 {
		return nil, models.NewValidationError("messages", "must contain at least one message")
	}

	return s.conversations.CreateConversation(ctx,
		params.Platform, params.Title, params.Summary, params.Tags, params.Metadata, params.Messages)
}

// AddMessageParams represents parameters for add_message.
type AddMessageParams struct {
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

func (s *Server) handleAddMessage(ctx context.Context, args json.RawMessage) (any, error) {
	var params AddMessageParams
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	id, err := parseUUID("conversation_id", params.ConversationID)
	if err != nil {
		return nil, err
	}

	return s.conversations.AppendMessage(ctx, id, models.Role(params.Role), params.Content)
}

// SearchMemoryParams represents parameters for search_memory.
type SearchMemoryParams struct {
	Query    string `json:"query"`
	Platform string `json:"platform"`
	Limit    int    `json:"limit"`
}

func (s *Server) handleSearchMemory(ctx context.Context, args json.RawMessage) (any, error) {
	var params SearchMemoryParams
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	results, err := s.searchMgr.SearchMemory(ctx, params.Query, params.Platform, params.Limit)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"query":   params.Query,
		"count":   len(results),
		"results": results,
	}, nil
}

// RecentConversationsParams represents parameters for get_recent_conversations.
type RecentConversationsParams struct {
	Platform string `json:"platform"`
	Limit    int    `json:"limit"`
}

func (s *Server) handleGetRecentConversations(ctx context.Context, args json.RawMessage) (any, error) {
	var params RecentConversationsParams
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	convs, err := s.conversations.GetRecentConversations(ctx, params.Platform, params.Limit)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"count":         len(convs),
		"conversations": convs,
	}, nil
}

// SaveKnowledgeParams represents parameters for save_knowledge.
type SaveKnowledgeParams struct {
	Category             string         `json:"category"`
	Content              string         `json:"content"`
	Tags                 []string       `json:"tags"`
	SourcePlatform       string         `json:"source_platform"`
	SourceConversationID string         `json:"source_conversation_id"`
	Metadata             map[string]any `json:"metadata"`
}

func (s *Server) handleSaveKnowledge(ctx context.Context, args json.RawMessage) (any, error) {
	var params SaveKnowledgeParams
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	var sourceID *uuid.UUID
	if params.SourceConversationID != "" {
		id, err := parseUUID("source_conversation_id", params.SourceConversationID)
		if err != nil {
			return nil, err
		}
		sourceID = &id
	}

	return s.knowledge.SaveKnowledge(ctx,
		params.Category, params.Content, params.Tags,
		params.SourcePlatform, sourceID, params.Metadata)
}

// UpdateKnowledgeParams represents parameters for update_knowledge. Nil
// fields are left as-is, so "clear all tags" is expressed as [] and
// "keep tags" as omitting the field.
type UpdateKnowledgeParams struct {
	ID      string    `json:"id"`
	Content *string   `json:"content"`
	Tags    *[]string `json:"tags"`
}

func (s *Server) handleUpdateKnowledge(ctx context.Context, args json.RawMessage) (any, error) {
	var params UpdateKnowledgeParams
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	id, err := parseUUID("id", params.ID)
	if err != nil {
		return nil, err
	}

	return s.knowledge.UpdateKnowledge(ctx, id, db.KnowledgeUpdate{
		Content: params.Content,
		Tags:    params.Tags,
	})
}

// SearchKnowledgeParams represents parameters for search_knowledge.
type SearchKnowledgeParams struct {
	Query    string   `json:"query"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Limit    int      `json:"limit"`
}

// knowledgeResult flattens a scored knowledge entry for tool output.
type knowledgeResult struct {
	models.Knowledge
	Score float64 `json:"score"`
}

func (s *Server) handleSearchKnowledge(ctx context.Context, args json.RawMessage) (any, error) {
	var params SearchKnowledgeParams
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	scored, err := s.searchMgr.SearchKnowledge(ctx, params.Query, params.Category, params.Tags, params.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]knowledgeResult, len(scored))
	for i, sk := range scored {
		results[i] = knowledgeResult{Knowledge: sk.Knowledge, Score: sk.Score}
	}

	return map[string]any{
		"query":   params.Query,
		"count":   len(results),
		"results": results,
	}, nil
}

// ContextSummaryParams represents parameters for get_context_summary.
type ContextSummaryParams struct {
	Topic    string `json:"topic"`
	Platform string `json:"platform"`
	Limit    int    `json:"limit"`
}

func (s *Server) handleGetContextSummary(ctx context.Context, args json.RawMessage) (any, error) {
	var params ContextSummaryParams
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if params.Topic == "" {
		return nil, models.NewValidationError("topic", "must not be empty")
	}

	return s.aggregator.GetContextSummary(ctx, params.Topic, params.Platform, params.Limit)
}

// DeleteMemoryParams represents parameters for delete_memory.
type DeleteMemoryParams struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (s *Server) handleDeleteMemory(ctx context.Context, args json.RawMessage) (any, error) {
	var params DeleteMemoryParams
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	id, err := parseUUID("id", params.ID)
	if err != nil {
		return nil, err
	}

	switch models.EntryKind(params.Type) {
	case models.KindConversation:
		err = s.conversations.DeleteConversation(ctx, id)
	case models.KindKnowledge:
		err = s.knowledge.DeleteKnowledge(ctx, id)
	default:
		return nil, models.NewValidationError("type", "must be 'conversation' or 'knowledge'")
	}
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"deleted": true,
		"type":    params.Type,
		"id":      params.ID,
	}, nil
}

// parseUUID parses a UUID tool argument, mapping failures onto the
// validation error taxonomy.
func parseUUID(field, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, models.NewValidationError(field, "must not be empty")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, models.NewValidationError(field, "not a valid UUID")
	}
	return id, nil
}

// sendResponse sends a JSON-RPC response.
func (s *Server) sendResponse(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		return
	}
	fmt.Fprintln(s.stdout, string(data))
}

// sendError sends a JSON-RPC error response.
func (s *Server) sendError(id any, code int, message string, data any) {
	resp := &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	s.sendResponse(resp)
}
