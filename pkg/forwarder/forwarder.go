// Package forwarder composes the outbound upstream request and relays the
// provider response, buffered or streamed. It is hand-composed over
// net/http the way net/http/httputil.ReverseProxy itself is, since no
// off-the-shelf proxy helper covers both the buffered and SSE-streaming
// relay with the header rewriting the providers need.
package forwarder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aiguard/proxy/pkg/registry"
)

// droppedRequestHeaders are stripped before composing the outbound request.
var droppedRequestHeaders = map[string]bool{
	"host":                true,
	"x-ai-guard-provider": true,
	"authorization":       true,
	"connection":          true,
	"content-length":      true,
	"user-agent":          true,
	"accept-encoding":     true,
	"postman-token":       true,
	"cache-control":       true,
	"pragma":              true,
}

// droppedResponseHeaders are hop-by-hop headers stripped from the relayed
// response.
var droppedResponseHeaders = map[string]bool{
	"content-encoding":  true,
	"transfer-encoding": true,
	"connection":        true,
}

// Policy is the forwarder's retry/timeout configuration.
type Policy struct {
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

// idempotentMethods are safe to retry on transport error or 5xx.
var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Forwarder relays inbound requests to the provider's upstream origin.
type Forwarder struct {
	Policy Policy
	client *http.Client
}

// New constructs a Forwarder, filling in default policy values.
func New(policy Policy) *Forwarder {
	if policy.RequestTimeout <= 0 {
		policy.RequestTimeout = 30 * time.Second
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 3
	}
	if policy.RetryDelay <= 0 {
		policy.RetryDelay = 250 * time.Millisecond
	}
	return &Forwarder{
		Policy: policy,
		client: &http.Client{
			// Timeout is applied per-attempt via context, not here, so
			// streaming responses are not cut off mid-stream.
		},
	}
}

// Request is the forwarder's provider-agnostic input.
type Request struct {
	Entry       registry.Entry
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        []byte
	Credential  string
	IsStreaming bool
}

// IsStreamingRequest reports whether a request should be relayed as an
// SSE/NDJSON stream rather than buffered.
func IsStreamingRequest(accept string, bodyHasStreamTrue bool) bool {
	if bodyHasStreamTrue {
		return true
	}
	a := strings.ToLower(accept)
	return strings.Contains(a, "text/event-stream") || strings.Contains(a, "application/x-ndjson")
}

// BuildUpstreamRequest composes the outbound *http.Request for req.
func (f *Forwarder) BuildUpstreamRequest(ctx context.Context, req Request) (*http.Request, error) {
	u, err := url.Parse(req.Entry.Origin + req.Path)
	if err != nil {
		return nil, fmt.Errorf("forwarder: parsing upstream URL: %w", err)
	}

	q := u.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	for k, v := range req.Entry.ConstantQuery {
		q.Set(k, v) // constants win ties
	}
	u.RawQuery = q.Encode()

	upstream, err := http.NewRequestWithContext(ctx, req.Method, u.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("forwarder: building request: %w", err)
	}

	for name, values := range req.Header {
		if droppedRequestHeaders[strings.ToLower(name)] {
			continue
		}
		for _, v := range values {
			upstream.Header.Add(name, v)
		}
	}
	for name, value := range req.Entry.ConstantHeaders {
		if upstream.Header.Get(name) == "" {
			upstream.Header.Set(name, value)
		}
	}
	upstream.Header.Set(req.Entry.AuthHeader, req.Entry.AuthHeaderValue(req.Credential))
	upstream.Host = u.Host

	return upstream, nil
}

// Response is the result of a completed (buffered) forward.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Forward performs a buffered forward with retry/timeout policy. It must
// not be used for streaming requests; use Stream instead.
func (f *Forwarder) Forward(ctx context.Context, req Request) (Response, error) {
	var lastErr error

	for attempt := 0; attempt <= f.Policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * f.Policy.RetryDelay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, f.Policy.RequestTimeout)
		upstream, err := f.BuildUpstreamRequest(attemptCtx, req)
		if err != nil {
			cancel()
			return Response{}, err
		}

		resp, err := f.client.Do(upstream)
		if err != nil {
			cancel()
			lastErr = err
			if !idempotentMethods[req.Method] {
				break
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("forwarder: reading upstream body: %w", err)
			continue
		}

		if resp.StatusCode >= 500 && idempotentMethods[req.Method] && attempt < f.Policy.MaxRetries {
			lastErr = fmt.Errorf("forwarder: upstream returned %d", resp.StatusCode)
			continue
		}

		header := resp.Header.Clone()
		for name := range droppedResponseHeaders {
			header.Del(name)
		}

		return Response{StatusCode: resp.StatusCode, Header: header, Body: body}, nil
	}

	return Response{}, fmt.Errorf("forwarder: all attempts failed: %w", lastErr)
}
