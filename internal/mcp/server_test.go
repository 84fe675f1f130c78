package mcp

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/recall/pkg/models"
)

func TestNewServer(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "1.0.0")
	require.NotNil(t, server)
	assert.Equal(t, "1.0.0", server.version)
	assert.NotNil(t, server.stdin)
	assert.NotNil(t, server.stdout)
}

func TestHandleInitialize(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "1.2.3")

	resp := server.handleInitialize(&Request{JSONRPC: "2.0", ID: 1, Method: "initialize"})

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, 1, resp.ID)
	assert.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2024-11-05", result["protocolVersion"])

	serverInfo, ok := result["serverInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "recall", serverInfo["name"])
	assert.Equal(t, "1.2.3", serverInfo["version"])

	caps, ok := result["capabilities"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, caps, "tools")
	assert.Contains(t, caps, "resources")
}

func TestHandleToolsList(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")

	resp := server.handleToolsList(&Request{JSONRPC: "2.0", ID: 5, Method: "tools/list"})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	tools, ok := result["tools"].([]Tool)
	require.True(t, ok)

	names := make(map[string]Tool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = tool
	}

	expected := []string{
		"save_conversation",
		"add_message",
		"search_memory",
		"get_recent_conversations",
		"save_knowledge",
		"update_knowledge",
		"search_knowledge",
		"get_context_summary",
		"delete_memory",
	}
	require.Len(t, tools, len(expected))
	for _, name := range expected {
		tool, found := names[name]
		require.True(t, found, name)
		assert.NotEmpty(t, tool.Description, name)
		assert.Equal(t, "object", tool.InputSchema["type"], name)
	}
}

func TestHandleRequestMethodNotFound(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")

	resp := server.handleRequest(context.Background(), &Request{
		JSONRPC: "2.0",
		ID:      9,
		Method:  "prompts/list",
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestHandleRequestNotification(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")

	resp := server.handleRequest(context.Background(), &Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	assert.Nil(t, resp, "notifications must not produce a response")
}

func TestRun(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`not valid json`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	server := &Server{
		stdin:   strings.NewReader(input),
		stdout:  &out,
		version: "test",
	}

	err := server.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3, "initialize, parse error, tools/list")

	var first Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Nil(t, first.Error)

	var second Response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NotNil(t, second.Error)
	assert.Equal(t, -32700, second.Error.Code)

	var third Response
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))
	assert.Nil(t, third.Error)
}

func TestCallToolUnknown(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")

	_, err := server.callTool(context.Background(), "drop_tables", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestSaveConversationRequiresMessages(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")

	_, err := server.handleSaveConversation(context.Background(),
		json.RawMessage(`{"platform":"claude","messages":[]}`))
	require.Error(t, err)
	assert.Equal(t, "validation_error", models.ErrorKind(err))
}

func TestAddMessageRejectsBadUUID(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")

	_, err := server.handleAddMessage(context.Background(),
		json.RawMessage(`{"conversation_id":"not-a-uuid","role":"user","content":"hi"}`))
	require.Error(t, err)
	assert.Equal(t, "validation_error", models.ErrorKind(err))
}

func TestDeleteMemoryRejectsUnknownType(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")

	args, _ := json.Marshal(DeleteMemoryParams{Type: "message", ID: uuid.NewString()})
	_, err := server.handleDeleteMemory(context.Background(), args)
	require.Error(t, err)
	assert.Equal(t, "validation_error", models.ErrorKind(err))
}

func TestParseUUID(t *testing.T) {
	id := uuid.New()

	parsed, err := parseUUID("id", id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = parseUUID("id", "")
	assert.Equal(t, "validation_error", models.ErrorKind(err))

	_, err = parseUUID("id", "zzz")
	assert.Equal(t, "validation_error", models.ErrorKind(err))
}

func TestToolsCallErrorCarriesKind(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")

	params, _ := json.Marshal(ToolCallParams{
		Name:      "delete_memory",
		Arguments: json.RawMessage(`{"type":"conversation","id":"bad"}`),
	})
	resp := server.handleToolsCall(context.Background(), &Request{
		JSONRPC: "2.0",
		ID:      3,
		Method:  "tools/call",
		Params:  params,
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
	data, ok := resp.Error.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "validation_error", data["kind"])
}

func TestHandleResourcesList(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")

	resp := server.handleResourcesList(&Request{JSONRPC: "2.0", ID: 4, Method: "resources/list"})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	resources, ok := result["resources"].([]Resource)
	require.True(t, ok)
	require.Len(t, resources, 2)

	uris := []string{resources[0].URI, resources[1].URI}
	assert.Contains(t, uris, StatsURI)
	assert.Contains(t, uris, PlatformsURI)
}

func TestReadResourceUnknownURI(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")

	_, err := server.readResource(context.Background(), "memory://nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource")
}

func TestStreamableHandlerMethods(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")
	handler := NewStreamableHandler(server)

	// GET is not part of the transport
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Allow"))

	// CORS preflight
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/mcp", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamableHandlerDispatch(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "9.9.9")
	handler := NewStreamableHandler(server)

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	serverInfo, ok := result["serverInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "9.9.9", serverInfo["version"])
}

func TestStreamableHandlerParseError(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")
	handler := NewStreamableHandler(server)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{broken")))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

func TestStreamableHandlerNotification(t *testing.T) {
	server := NewServer(nil, nil, nil, nil, nil, "dev")
	handler := NewStreamableHandler(server)

	body := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", body))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
