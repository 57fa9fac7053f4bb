package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// introspectionResponse is the shape the external identity provider is
// expected to return from its verify endpoint.
type introspectionResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Valid       bool   `json:"valid"`
}

// HTTPVerifier calls a configurable HTTP introspection endpoint with the
// bearer token and decodes the resulting profile.
type HTTPVerifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPVerifier constructs a verifier against endpoint. A nil or empty
// endpoint yields a verifier whose Verify always fails; the pipeline
// continues to serve PAT-only traffic in that case.
func NewHTTPVerifier(endpoint string) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify posts bearer to the configured endpoint and parses the profile.
func (v *HTTPVerifier) Verify(ctx context.Context, bearer string) (Profile, error) {
	if v.endpoint == "" {
		return Profile{}, ErrVerificationFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint+"/verify", nil)
	if err != nil {
		return Profile{}, fmt.Errorf("identity: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := v.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("identity: calling verifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, ErrVerificationFailed
	}

	var out introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Profile{}, fmt.Errorf("identity: decoding response: %w", err)
	}
	if !out.Valid || out.UID == "" {
		return Profile{}, ErrVerificationFailed
	}

	return Profile{UID: out.UID, Email: out.Email, DisplayName: out.DisplayName}, nil
}
