package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       maxAttempts,
		PerAttemptTimeout: 2 * time.Second,
		Backoff:           func(int) time.Duration { return time.Millisecond },
	}
}

func TestForwardSSEResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Accept"); got != "application/json, text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(": hello\n\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{\"ok\":true}}\n\n"))
	}))
	defer srv.Close()

	c, err := New(srv.URL, testPolicy(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if string(got) != `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}` {
		t.Fatalf("got %s", got)
	}
}

func TestForwardPlainJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":[]}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, testPolicy(3))
	got, err := c.Forward(context.Background(), []byte(`{}`))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if string(got) != `{"jsonrpc":"2.0","id":1,"result":[]}` {
		t.Fatalf("got %s", got)
	}
}

func TestForwardRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"result\":\"ok\"}\n\n"))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, testPolicy(3))
	got, err := c.Forward(context.Background(), []byte(`{}`))
	if err != nil {
		t.Fatalf("Forward after retries: %v", err)
	}
	if string(got) != `{"result":"ok"}` {
		t.Fatalf("got %s", got)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("calls = %d, want 3", n)
	}
}

func TestForwardExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, testPolicy(2))
	_, err := c.Forward(context.Background(), []byte(`{}`))
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Fatalf("err = %v, want status 502", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestForwardClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, testPolicy(3))
	_, err := c.Forward(context.Background(), []byte(`{}`))
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want status 404", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 4xx)", n)
	}
}

func TestForwardEmptyStreamIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(": heartbeat only\n\n"))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, testPolicy(3))
	_, err := c.Forward(context.Background(), []byte(`{}`))
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("err = %v, want ErrNoResponse", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1 (complete stream is not retried)", n)
	}
}

func TestForwardAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c, _ := New(srv.URL, RetryPolicy{
		MaxAttempts:       2,
		PerAttemptTimeout: 50 * time.Millisecond,
		Backoff:           func(int) time.Duration { return time.Millisecond },
	})
	start := time.Now()
	_, err := c.Forward(context.Background(), []byte(`{}`))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("took %v; per-attempt deadline not enforced", elapsed)
	}
}

func TestForwardCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _ := New(srv.URL, testPolicy(3))
	if _, err := c.Forward(ctx, []byte(`{}`)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestForwardInvalidJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, testPolicy(1))
	if _, err := c.Forward(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("expected error for invalid JSON body")
	}
}

func TestFetchMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/markdown" {
			t.Errorf("Accept = %q", got)
		}
		_, _ = w.Write([]byte("# Bun\n\nFast runtime."))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, testPolicy(1))
	got, err := c.FetchMarkdown(context.Background(), srv.URL+"/docs/cli/install")
	if err != nil {
		t.Fatalf("FetchMarkdown: %v", err)
	}
	if got != "# Bun\n\nFast runtime." {
		t.Fatalf("got %q", got)
	}
}

func TestFetchMarkdownErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, testPolicy(1))
	if _, err := c.FetchMarkdown(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestDefaultBackoff(t *testing.T) {
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := defaultBackoff(i + 1); got != w {
			t.Fatalf("defaultBackoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
