package jsonrpc

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"query":"test"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Method != "tools/list" {
		t.Fatalf("method = %q", req.Method)
	}
	if string(req.ID) != "1" {
		t.Fatalf("id = %s", req.ID)
	}
	if req.Params == nil {
		t.Fatalf("expected params")
	}
}

func TestDecodeRequestStringID(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":"test-id","method":"initialize"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(req.ID) != `"test-id"` {
		t.Fatalf("id = %s", req.ID)
	}
	if req.Params != nil {
		t.Fatalf("expected no params, got %s", req.Params)
	}
}

func TestDecodeRequestRejects(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"truncated json", `{"invalid json`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"x"}`},
		{"missing version", `{"id":1,"method":"x"}`},
		{"missing method", `{"jsonrpc":"2.0","id":1}`},
	}
	for _, tc := range cases {
		if _, err := DecodeRequest([]byte(tc.in)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestNewResultEncodes(t *testing.T) {
	resp := NewResult(json.RawMessage(`1`), json.RawMessage(`{"status":"ok"}`))
	b, err := resp.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "\n") {
		t.Fatalf("response not single-line: %q", s)
	}
	if !strings.Contains(s, `"jsonrpc":"2.0"`) || !strings.Contains(s, `"result":{"status":"ok"}`) {
		t.Fatalf("unexpected encoding: %s", s)
	}
	if strings.Contains(s, `"error"`) {
		t.Fatalf("success response carries error: %s", s)
	}
}

func TestNewErrorEncodes(t *testing.T) {
	resp := NewError(json.RawMessage(`"test-id"`), CodeMethodNotFound, "Method not found")
	b, err := resp.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"code":-32601`) || !strings.Contains(s, `"id":"test-id"`) {
		t.Fatalf("unexpected encoding: %s", s)
	}
	if strings.Contains(s, `"result"`) {
		t.Fatalf("error response carries result: %s", s)
	}
	if strings.Contains(s, `"data"`) {
		t.Fatalf("data should be omitted when empty: %s", s)
	}
}

func TestNewErrorNullID(t *testing.T) {
	resp := NewError(nil, CodeParseError, "Parse error")
	b, err := resp.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(b), `"id":null`) {
		t.Fatalf("expected null id: %s", b)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	resp := NewResult(json.RawMessage(`42`), json.RawMessage(`{"content":[{"type":"text","text":"hit"}]}`))
	a, err := resp.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := resp.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("encoding not deterministic: %s vs %s", a, b)
	}
}
