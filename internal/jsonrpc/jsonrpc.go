// Package jsonrpc implements the JSON-RPC 2.0 envelopes exchanged on stdio
// and forwarded to the docs endpoint. Payloads (params, results, ids) stay
// opaque json.RawMessage so requests can be relayed verbatim.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the only protocol version accepted on inbound requests.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// NullID is the id used when the inbound id could not be determined.
var NullID = json.RawMessage("null")

// Request is an inbound JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound JSON-RPC 2.0 response. Exactly one of Result and
// Error is set; the constructors below enforce that.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// DecodeRequest parses one inbound message. It fails when the bytes are not
// valid JSON, the version marker is missing, or no method is named.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	if req.JSONRPC != Version {
		return nil, fmt.Errorf("unsupported jsonrpc version %q", req.JSONRPC)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("missing method")
	}
	return &req, nil
}

// NewResult builds a success response echoing the given id.
func NewResult(id json.RawMessage, result json.RawMessage) *Response {
	return &Response{JSONRPC: Version, ID: normalizeID(id), Result: result}
}

// NewError builds a failure response echoing the given id.
func NewError(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: Version, ID: normalizeID(id), Error: &Error{Code: code, Message: message}}
}

// Encode renders the response as a single-line JSON document.
func (r *Response) Encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	// Marshal of a flat struct never emits newlines, but the stdio framing
	// depends on it, so keep the guarantee explicit.
	return bytes.ReplaceAll(b, []byte("\n"), nil), nil
}

// MarshalParams encodes an arbitrary value as a raw params payload.
func MarshalParams(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return b, nil
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return NullID
	}
	return id
}
