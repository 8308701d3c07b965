// Package proxy routes inbound JSON-RPC methods: catalog methods are answered
// locally, tool calls and resource reads are forwarded to the docs endpoint.
package proxy

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gaspardpetit/bundocs-mcp/internal/jsonrpc"
	"github.com/gaspardpetit/bundocs-mcp/internal/logx"
	"github.com/gaspardpetit/bundocs-mcp/internal/metrics"
)

// Forwarder sends a JSON-RPC payload upstream and returns the terminal
// payload object extracted from the reply stream.
type Forwarder interface {
	Forward(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// Handler dispatches inbound requests. It holds no per-request state; every
// entity lives and dies within one Handle call.
type Handler struct {
	upstream Forwarder
	version  string
}

// NewHandler returns a Handler forwarding through up. version is reported in
// the initialize serverInfo.
func NewHandler(up Forwarder, version string) *Handler {
	return &Handler{upstream: up, version: version}
}

// Handle answers one request. It always returns a response and never
// terminates the process; failures become JSON-RPC error responses carrying
// the inbound id.
func (h *Handler) Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var resp *jsonrpc.Response
	switch req.Method {
	case "initialize":
		resp = h.handleInitialize(req)
	case "tools/list":
		resp = h.handleToolsList(req)
	case "tools/call":
		resp = h.handleToolsCall(ctx, req)
	case "resources/list":
		resp = h.handleResourcesList(req)
	case "resources/read":
		resp = h.handleResourcesRead(ctx, req)
	default:
		logx.Log.Warn().Str("method", req.Method).Msg("unsupported method")
		resp = jsonrpc.NewError(req.ID, jsonrpc.CodeMethodNotFound, "Method not found: "+req.Method)
	}
	outcome := "ok"
	if resp.Error != nil {
		outcome = "error"
	}
	metrics.RequestsTotal.WithLabelValues(req.Method, outcome).Inc()
	return resp
}

func (h *Handler) handleInitialize(req *jsonrpc.Request) *jsonrpc.Response {
	return localResult(req, initializeResult(h.version))
}

func (h *Handler) handleToolsList(req *jsonrpc.Request) *jsonrpc.Response {
	return localResult(req, toolCatalog())
}

func (h *Handler) handleResourcesList(req *jsonrpc.Request) *jsonrpc.Response {
	return localResult(req, resourceCatalog())
}

// handleToolsCall forwards the original envelope verbatim so upstream sees
// exactly what the caller sent.
func (h *Handler) handleToolsCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	payload, err := json.Marshal(req)
	if err != nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "Internal error: could not encode request")
	}
	raw, err := h.upstream.Forward(ctx, payload)
	if err != nil {
		logx.Log.Error().Err(err).Msg("forward tools/call failed")
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "Internal error: docs endpoint request failed")
	}
	return wrapUpstream(req.ID, raw)
}

func (h *Handler) handleResourcesRead(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if req.Params == nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, "Missing params")
	}
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, "Missing or invalid uri parameter")
	}
	query, ok := parseDocsURI(params.URI)
	if !ok {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, "Invalid URI format: "+params.URI)
	}
	if query == "" {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, "Empty search query")
	}

	payload, err := json.Marshal(SearchRequest(req.ID, query))
	if err != nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "Internal error: could not encode request")
	}
	raw, err := h.upstream.Forward(ctx, payload)
	if err != nil {
		logx.Log.Error().Err(err).Str("uri", params.URI).Msg("forward resources/read failed")
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "Internal error: docs endpoint request failed")
	}
	if failure := upstreamFailure(req.ID, raw); failure != nil {
		return failure
	}
	result, err := jsonrpc.MarshalParams(resourceContents(params.URI, raw))
	if err != nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "Internal error: could not encode resource")
	}
	return jsonrpc.NewResult(req.ID, result)
}

// SearchRequest builds the tools/call envelope used to run a SearchBun query,
// shared with the CLI front end.
func SearchRequest(id json.RawMessage, query string) *jsonrpc.Request {
	params, _ := jsonrpc.MarshalParams(map[string]any{
		"name": searchToolName,
		"arguments": map[string]any{
			"query": query,
		},
	})
	return &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: id, Method: "tools/call", Params: params}
}

// parseDocsURI extracts the search term from a bun://docs resource URI.
// bun://docs with no query yields an empty term.
func parseDocsURI(uri string) (query string, ok bool) {
	if rest, found := strings.CutPrefix(uri, "bun://docs?query="); found {
		return rest, true
	}
	if uri == "bun://docs" {
		return "", true
	}
	return "", false
}

// wrapUpstream re-wraps the terminal upstream payload under the inbound id.
// Upstream payloads may omit the envelope id entirely; the caller's id is
// authoritative.
func wrapUpstream(id json.RawMessage, raw json.RawMessage) *jsonrpc.Response {
	if failure := upstreamFailure(id, raw); failure != nil {
		return failure
	}
	var probe struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Result != nil {
		return jsonrpc.NewResult(id, probe.Result)
	}
	// payload without a result envelope: pass it through as the result
	return jsonrpc.NewResult(id, raw)
}

// upstreamFailure converts an upstream error payload into a failure response,
// or returns nil when the payload is not an error.
func upstreamFailure(id json.RawMessage, raw json.RawMessage) *jsonrpc.Response {
	var probe struct {
		Error *jsonrpc.Error `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Error == nil {
		return nil
	}
	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Error: probe.Error}
}

func localResult(req *jsonrpc.Request, v any) *jsonrpc.Response {
	result, err := jsonrpc.MarshalParams(v)
	if err != nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "Internal error: could not encode result")
	}
	return jsonrpc.NewResult(req.ID, result)
}
