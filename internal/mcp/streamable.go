package mcp

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// maxBodySize caps an HTTP request body at the same bound the stdio
// transport applies to one line.
const maxBodySize = maxLineSize

// StreamableHandler exposes the server over the Streamable HTTP MCP
// transport: one endpoint, JSON-RPC request in the POST body, JSON-RPC
// response inline. There is no session state and no long-lived stream,
// so any request can land on any replica.
type StreamableHandler struct {
	server *Server
}

// NewStreamableHandler creates a new Streamable HTTP handler.
func NewStreamableHandler(server *Server) *StreamableHandler {
	return &StreamableHandler{server: server}
}

func (h *StreamableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		h.dispatch(w, r)
	default:
		hdr.Set("Allow", "POST, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// dispatch decodes one JSON-RPC message, hands it to the server, and
// writes the response. A notification produces no response body, only
// 204 No Content.
func (h *StreamableHandler) dispatch(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	defer func() { _ = body.Close() }()

	var req Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		log.Debug().Err(err).Msg("Undecodable MCP request body")
		h.reply(w, &Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: -32700, Message: "Parse error"},
		})
		return
	}

	resp := h.server.handleRequest(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.reply(w, resp)
}

// reply writes a JSON-RPC response with status 200. Transport-level
// failures map onto JSON-RPC error objects, not HTTP status codes.
func (h *StreamableHandler) reply(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode MCP response")
	}
}
