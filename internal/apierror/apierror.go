// Package apierror defines the proxy's closed set of error kinds and the
// JSON envelope used for both proxied-request failures and administrative
// API failures.
package apierror

import (
	"fmt"
	"net/http"
	"time"
)

// Kind is one of the closed set of error types carried in the envelope.
type Kind string

const (
	InvalidProvider   Kind = "INVALID_PROVIDER"
	UpstreamError     Kind = "UPSTREAM_ERROR"
	NetworkError      Kind = "NETWORK_ERROR"
	Timeout           Kind = "TIMEOUT"
	InvalidRequest    Kind = "INVALID_REQUEST"
	ConfigurationErr  Kind = "CONFIGURATION_ERROR"
	AuthenticationErr Kind = "AUTHENTICATION_ERROR"
	RateLimitExceeded Kind = "RATE_LIMIT_EXCEEDED"
	QuotaExceeded     Kind = "QUOTA_EXCEEDED"
	Forbidden         Kind = "FORBIDDEN"
	NotFound          Kind = "NOT_FOUND"
	Conflict          Kind = "CONFLICT"
	DatabaseError     Kind = "DATABASE_ERROR"
	ValidationError   Kind = "VALIDATION_ERROR"
	Unknown           Kind = "UNKNOWN_ERROR"
)

// statusByKind maps each error kind to its stage-appropriate HTTP status.
var statusByKind = map[Kind]int{
	InvalidProvider:   http.StatusBadRequest,
	UpstreamError:     http.StatusBadGateway,
	NetworkError:      http.StatusBadGateway,
	Timeout:           http.StatusGatewayTimeout,
	InvalidRequest:    http.StatusBadRequest,
	ConfigurationErr:  http.StatusInternalServerError,
	AuthenticationErr: http.StatusUnauthorized,
	RateLimitExceeded: http.StatusTooManyRequests,
	QuotaExceeded:     http.StatusTooManyRequests,
	Forbidden:         http.StatusForbidden,
	NotFound:          http.StatusNotFound,
	Conflict:          http.StatusConflict,
	DatabaseError:     http.StatusInternalServerError,
	ValidationError:   http.StatusBadRequest,
	Unknown:           http.StatusInternalServerError,
}

// Error is an error value carrying an apierror Kind, a client-safe message,
// and optional structured details. It implements the standard error
// interface so it can be returned and wrapped like any other error.
type Error struct {
	Kind        Kind
	Message     string
	Details     any
	Suggestions []string
	// Headers are set on the response alongside the envelope; rate-limit
	// and quota denials use them to carry the X-RateLimit-*/X-Quota-*
	// explanation the denial contract requires.
	Headers map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code for the error's kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind, retaining cause for Unwrap
// and logging, without leaking cause's text into the client-facing Message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured details (e.g. field validation errors).
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// WithSuggestions attaches human-facing remediation hints.
func (e *Error) WithSuggestions(s ...string) *Error {
	e.Suggestions = s
	return e
}

// WithHeader attaches a response header to be set alongside the envelope.
func (e *Error) WithHeader(name, value string) *Error {
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}
	e.Headers[name] = value
	return e
}

// Envelope is the wire shape returned to clients on failure.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

// EnvelopeBody is the inner `error` object of Envelope.
type EnvelopeBody struct {
	Type        Kind      `json:"type"`
	Message     string    `json:"message"`
	Details     any       `json:"details,omitempty"`
	StatusCode  int       `json:"statusCode"`
	Timestamp   time.Time `json:"timestamp"`
	Path        string    `json:"path"`
	Method      string    `json:"method"`
	RequestID   string    `json:"requestId,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// ToEnvelope builds the wire envelope for a request's path/method/requestID.
func (e *Error) ToEnvelope(path, method, requestID string) Envelope {
	return Envelope{Error: EnvelopeBody{
		Type:        e.Kind,
		Message:     e.Message,
		Details:     e.Details,
		StatusCode:  e.Status(),
		Timestamp:   time.Now().UTC(),
		Path:        path,
		Method:      method,
		RequestID:   requestID,
		Suggestions: e.Suggestions,
	}}
}
