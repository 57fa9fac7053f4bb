package forwarder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/aiguard/proxy/pkg/registry"
)

func TestBuildUpstreamRequestComposesURLAndHeaders(t *testing.T) {
	f := New(Policy{})
	entry, _ := registry.Lookup("anthropic")

	req := Request{
		Entry:  entry,
		Method: http.MethodPost,
		Path:   "/v1/messages",
		Query:  url.Values{"foo": {"bar"}},
		Header: http.Header{
			"Authorization": {"Bearer should-be-dropped"},
			"X-Custom":      {"keep-me"},
		},
		Body:       []byte(`{}`),
		Credential: "sk-ant-test",
	}

	upstream, err := f.BuildUpstreamRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("BuildUpstreamRequest() error: %v", err)
	}

	if upstream.URL.Scheme+"://"+upstream.URL.Host != "https://api.anthropic.com" {
		t.Errorf("host = %q, want api.anthropic.com", upstream.URL.Host)
	}
	if upstream.URL.Query().Get("foo") != "bar" {
		t.Error("expected query param foo=bar to be preserved")
	}
	if upstream.Header.Get("Authorization") != "" {
		t.Error("Authorization header should be dropped")
	}
	if upstream.Header.Get("X-Custom") != "keep-me" {
		t.Error("custom headers should be preserved")
	}
	if upstream.Header.Get("x-api-key") != "sk-ant-test" {
		t.Errorf("x-api-key = %q, want sk-ant-test", upstream.Header.Get("x-api-key"))
	}
	if upstream.Header.Get("anthropic-version") != "2023-06-01" {
		t.Error("expected constant header anthropic-version to be set")
	}
}

func TestForwardBufferedHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(Policy{RequestTimeout: time.Second})
	entry := testEntry(srv.URL)

	resp, err := f.Forward(context.Background(), Request{
		Entry: entry, Method: http.MethodPost, Path: "/v1/chat/completions",
		Header: http.Header{}, Body: []byte(`{}`), Credential: "sk-test",
	})
	if err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q, want %q", resp.Body, `{"ok":true}`)
	}
}

func TestForwardRetriesOn5xxForIdempotentMethod(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(Policy{RequestTimeout: time.Second, RetryDelay: time.Millisecond})
	entry := testEntry(srv.URL)

	resp, err := f.Forward(context.Background(), Request{
		Entry: entry, Method: http.MethodGet, Path: "/v1/models", Header: http.Header{},
	})
	if err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestIsStreamingRequest(t *testing.T) {
	tests := []struct {
		accept string
		body   bool
		want   bool
	}{
		{"text/event-stream", false, true},
		{"application/x-ndjson", false, true},
		{"application/json", true, true},
		{"application/json", false, false},
	}
	for _, tt := range tests {
		if got := IsStreamingRequest(tt.accept, tt.body); got != tt.want {
			t.Errorf("IsStreamingRequest(%q, %v) = %v, want %v", tt.accept, tt.body, got, tt.want)
		}
	}
}

func testEntry(serverURL string) registry.Entry {
	return registry.Entry{Origin: serverURL, AuthHeader: "Authorization", AuthValuePrefix: "Bearer "}
}
