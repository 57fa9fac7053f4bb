// Package pipeline implements the proxy's per-request orchestrator as an
// ordered function-stage pipeline rather than a middleware chain:
// authenticate, validate, rate-limit, admit quota, resolve credential,
// forward, and account. Each stage is a plain function returning either
// the next stage's input or a terminal *apierror.Error, with every
// response header and status code produced at the single point the
// pipeline finishes.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/internal/apierror"
	"github.com/aiguard/proxy/internal/audit"
	"github.com/aiguard/proxy/internal/httpserver"
	"github.com/aiguard/proxy/internal/telemetry"
	"github.com/aiguard/proxy/pkg/authn"
	"github.com/aiguard/proxy/pkg/credential"
	"github.com/aiguard/proxy/pkg/forwarder"
	"github.com/aiguard/proxy/pkg/model"
	"github.com/aiguard/proxy/pkg/quota"
	"github.com/aiguard/proxy/pkg/ratelimit"
	"github.com/aiguard/proxy/pkg/registry"
	"github.com/aiguard/proxy/pkg/schema"
	"github.com/aiguard/proxy/pkg/usage"
)

// ProjectRepository is the narrow lookup contract the pipeline needs beyond
// what its stage packages already declare.
type ProjectRepository interface {
	GetProjectByID(ctx context.Context, id primitive.ObjectID) (*model.Project, error)
}

// Pipeline wires every proxy stage into one ordered request handler.
type Pipeline struct {
	Validator   *authn.Validator
	RateLimiter ratelimit.Backend
	Projects    ProjectRepository
	Credentials *credential.Resolver
	Forwarder   *forwarder.Forwarder
	Usage       *usage.Tracker
	Audit       *audit.Writer
	Logger      *slog.Logger

	// MaxRequestSize bounds the inbound body, independent of schema's
	// safety-screen cap.
	MaxRequestSize int64
}

// prepared carries everything the validation prologue resolved, ready for
// the forward stage (buffered or streamed).
type prepared struct {
	Entry      registry.Entry
	Principal  authn.Principal
	Project    *model.Project
	RateLimit  ratelimit.Decision
	Quota      quota.Decision
	Credential credential.Resolved
	Body       []byte
}

// ServeHTTP is the catch-all proxy handler mounted at the provider routes
// (everything not under /_api). The inbound body is read once up front so
// streaming can be detected from either the Accept header or a JSON
// `"stream": true` field before committing to the buffered or streamed
// forward.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := httpserver.RequestIDFromContext(r.Context())

	body, err := readBody(r, p.MaxRequestSize)
	if err != nil {
		p.writeError(w, r, apierror.Wrap(apierror.InvalidRequest, "failed to read request body", err), requestID)
		return
	}
	maxSize := p.MaxRequestSize
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	if int64(len(body)) > maxSize {
		p.writeError(w, r, apierror.New(apierror.InvalidRequest, "request body exceeds the maximum size"), requestID)
		return
	}

	var decoded map[string]any
	if len(body) > 0 {
		_ = json.Unmarshal(body, &decoded) // non-JSON bodies fall through with decoded == nil
	}

	pr, perr := p.prepare(r, body, decoded)
	if perr != nil {
		p.writeError(w, r, perr, requestID)
		return
	}

	if forwarder.IsStreamingRequest(r.Header.Get("Accept"), decoded != nil && decoded["stream"] == true) {
		p.serveStream(w, r, pr, start, requestID)
		return
	}

	fwdReq := forwardRequest(r, pr, false)
	resp, err := p.Forwarder.Forward(r.Context(), fwdReq)
	if err != nil {
		telemetry.ForwardedRequestsTotal.WithLabelValues(string(pr.Entry.Tag), "network_error").Inc()
		p.writeError(w, r, apierror.Wrap(apierror.UpstreamError, "upstream request failed", err), requestID)
		return
	}
	telemetry.ForwardedRequestsTotal.WithLabelValues(string(pr.Entry.Tag), "success").Inc()

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	setPolicyHeaders(w.Header(), pr)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)

	p.observe(r, pr, resp.Body, resp.StatusCode, start)
}

// prepare runs the pipeline's validation prologue: provider lookup,
// authentication, scope check, safety/schema validation, project context,
// rate limit, quota admission, and credential resolution.
func (p *Pipeline) prepare(r *http.Request, body []byte, decoded map[string]any) (*prepared, *apierror.Error) {
	ctx := r.Context()

	providerTag := r.Header.Get("X-AI-Guard-Provider")
	if providerTag == "" {
		return nil, apierror.New(apierror.InvalidRequest, "X-AI-Guard-Provider header is required")
	}
	entry, err := registry.Lookup(providerTag)
	if err != nil {
		return nil, apierror.New(apierror.InvalidProvider, err.Error())
	}

	principal, authErr := p.Validator.Validate(ctx, bearerToken(r))
	if authErr != nil {
		// Unauthenticated callers are still rate-limited, keyed by client
		// IP, so repeated failing attempts can't hammer the validator.
		ipKey := ratelimit.KeyForIP(audit.ClientIP(r).String())
		if d, lerr := p.RateLimiter.Allow(ctx, ipKey, ratelimit.PolicyFor(nil).RequestsPerMinute); lerr == nil && !d.Allowed {
			return nil, apierror.New(apierror.RateLimitExceeded, "rate limit exceeded").
				WithHeader("X-RateLimit-Limit", strconv.Itoa(d.Limit)).
				WithHeader("X-RateLimit-Remaining", strconv.Itoa(d.Remaining)).
				WithHeader("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10)).
				WithHeader("Retry-After", strconv.Itoa(retryAfterSeconds(d.ResetAt)))
		}
		return nil, apierror.Wrap(apierror.AuthenticationErr, "authentication failed", authErr)
	}

	if perr := checkScope(principal, r.Method); perr != nil {
		return nil, perr
	}

	if violation, fieldErrs := schema.Validate(body, decoded, entry.Tag, r.Method, r.URL.Path); violation != nil {
		return nil, apierror.New(apierror.InvalidRequest, violation.Reason)
	} else if len(fieldErrs) > 0 {
		details := make([]map[string]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, map[string]string{"field": fe.Field, "message": fe.Message})
		}
		return nil, apierror.New(apierror.ValidationError, "request body failed schema validation").WithDetails(details)
	}

	// Project context is a hint, not a precondition: the process-default
	// credential tier (no project at all) must stay reachable, so a
	// caller with none is not rejected here. Without a project, rate
	// limiting applies the free-tier default (ratelimit.PolicyFor(nil)) and
	// quota admission is skipped.
	projectID := projectContextID(r, principal)
	var project *model.Project
	if projectID != nil {
		if proj, perr := p.Projects.GetProjectByID(ctx, *projectID); perr == nil && proj != nil {
			project = proj
		}
	}

	rlKey := ratelimit.KeyForUser(principal.User.ID)
	rlDecision, err := p.RateLimiter.Allow(ctx, rlKey, ratelimit.PolicyFor(project).RequestsPerMinute)
	if err != nil {
		// The shared backend fails open internally; any error surfacing
		// here is unexpected, and the limiter's fail-open policy still
		// applies.
		p.Logger.Warn("rate limit check errored, failing open", "error", err)
		rlDecision = ratelimit.Decision{Allowed: true}
	}
	if rlDecision.Allowed {
		telemetry.RateLimitDecisionsTotal.WithLabelValues("allow", p.RateLimiter.Name()).Inc()
	} else {
		telemetry.RateLimitDecisionsTotal.WithLabelValues("deny", p.RateLimiter.Name()).Inc()
		return nil, apierror.New(apierror.RateLimitExceeded, "rate limit exceeded").
			WithDetails(map[string]any{"limit": rlDecision.Limit, "remaining": rlDecision.Remaining, "resetAt": rlDecision.ResetAt}).
			WithHeader("X-RateLimit-Limit", strconv.Itoa(rlDecision.Limit)).
			WithHeader("X-RateLimit-Remaining", strconv.Itoa(rlDecision.Remaining)).
			WithHeader("X-RateLimit-Reset", strconv.FormatInt(rlDecision.ResetAt.Unix(), 10)).
			WithHeader("Retry-After", strconv.Itoa(retryAfterSeconds(rlDecision.ResetAt)))
	}

	// Quota has nothing to admit against without a resolved project; it is
	// skipped rather than treated as a denial.
	quotaDecision := quota.Decision{Allowed: true}
	if project != nil {
		quotaDecision = quota.Admit(project)
		if !quotaDecision.Allowed {
			telemetry.QuotaDenialsTotal.WithLabelValues(quotaDecision.Exceeded).Inc()
			return nil, apierror.New(apierror.QuotaExceeded, "quota exceeded").
				WithDetails(map[string]any{
					"quotaType":  quotaDecision.Exceeded,
					"dayLimit":   quotaDecision.DayLimit,
					"dayUsed":    quotaDecision.DayUsed,
					"monthLimit": quotaDecision.MonthLimit,
					"monthUsed":  quotaDecision.MonthUsed,
				}).
				WithHeader("X-Quota-Day-Limit", strconv.Itoa(quotaDecision.DayLimit)).
				WithHeader("X-Quota-Day-Used", strconv.FormatInt(quotaDecision.DayUsed, 10)).
				WithHeader("X-Quota-Month-Limit", strconv.Itoa(quotaDecision.MonthLimit)).
				WithHeader("X-Quota-Month-Used", strconv.FormatInt(quotaDecision.MonthUsed, 10))
		}
	}

	resolved, err := p.Credentials.Resolve(ctx, entry.Tag, projectID, principal.User.DefaultProjectID)
	if err != nil {
		switch err {
		case credential.ErrProviderForbidden:
			return nil, apierror.New(apierror.Forbidden, "provider not permitted for this project")
		default:
			return nil, apierror.Wrap(apierror.ConfigurationErr, "no credential available for provider", err)
		}
	}

	return &prepared{
		Entry:      entry,
		Principal:  principal,
		Project:    project,
		RateLimit:  rlDecision,
		Quota:      quotaDecision,
		Credential: resolved,
		Body:       body,
	}, nil
}

// checkScope enforces the PAT scope model on proxied calls: read methods
// need api:read (or api:write), everything else needs api:write; the admin
// scope covers both. External-identity principals carry no scopes and are
// not restricted here.
func checkScope(principal authn.Principal, method string) *apierror.Error {
	if principal.AuthType != authn.AuthPAT || principal.Token == nil {
		return nil
	}
	tok := principal.Token
	if tok.HasScope(model.ScopeAdmin) {
		return nil
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		if tok.HasScope(model.ScopeAPIRead) || tok.HasScope(model.ScopeAPIWrite) {
			return nil
		}
	default:
		if tok.HasScope(model.ScopeAPIWrite) {
			return nil
		}
	}
	return apierror.New(apierror.Forbidden, "token does not carry the required API scope")
}

// serveStream pipes the upstream response directly to w. A streaming
// forward commits to writing the response as soon as headers arrive and
// cannot be retried or buffered; the relayed bytes are teed into an
// in-memory sink so post-response usage parsing still runs at stream end.
func (p *Pipeline) serveStream(w http.ResponseWriter, r *http.Request, pr *prepared, start time.Time, requestID string) {
	setPolicyHeaders(w.Header(), pr)

	sink := &responseWriterSink{w: w}
	if err := p.Forwarder.Stream(r.Context(), forwardRequest(r, pr, true), sink); err != nil {
		// A downstream disconnect surfaces as context.Canceled once the
		// stream is underway; the partial stream still gets accounted,
		// unlike a timeout or transport failure, which does not.
		if errors.Is(err, context.Canceled) && sink.wroteHeader {
			telemetry.ForwardedRequestsTotal.WithLabelValues(string(pr.Entry.Tag), "client_abort").Inc()
			p.Logger.Info("streaming forward aborted by client", "requestId", requestID)
			p.observe(r, pr, sink.captured.Bytes(), sink.status, start)
			return
		}
		telemetry.ForwardedRequestsTotal.WithLabelValues(string(pr.Entry.Tag), "network_error").Inc()
		p.Logger.Error("streaming forward failed", "error", err, "requestId", requestID)
		if !sink.wroteHeader {
			p.writeError(w, r, apierror.Wrap(apierror.UpstreamError, "upstream request failed", err), requestID)
		}
		return
	}
	telemetry.ForwardedRequestsTotal.WithLabelValues(string(pr.Entry.Tag), "success").Inc()

	p.observe(r, pr, sink.captured.Bytes(), sink.status, start)
}

// observe hands the completed forward to the usage tracker and audit
// writer. Both are async and best-effort; nothing here can fail the
// response.
func (p *Pipeline) observe(r *http.Request, pr *prepared, responseBody []byte, statusCode int, start time.Time) {
	obs := usage.Observation{
		UserID:         pr.Principal.User.ID,
		Provider:       pr.Entry.Tag,
		Path:           r.URL.Path,
		Method:         r.Method,
		RequestBody:    pr.Body,
		ResponseBody:   responseBody,
		ResponseTimeMS: time.Since(start).Milliseconds(),
		StatusCode:     statusCode,
	}
	// A tier-3 system-default credential carries no project; the record is
	// still written for the user but no project counters are incremented
	// (tracker.flush skips the zero-value ProjectID).
	if pr.Project != nil {
		obs.ProjectID = pr.Project.ID
	}
	p.Usage.Observe(obs)

	status := model.AuditSuccess
	if statusCode >= 400 {
		status = model.AuditFailure
	}
	p.Audit.LogRequest(r, &pr.Principal.User.ID, "api."+r.Method, string(pr.Entry.Tag), "", status, nil, "")
}

func forwardRequest(r *http.Request, pr *prepared, streaming bool) forwarder.Request {
	return forwarder.Request{
		Entry:       pr.Entry,
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       r.URL.Query(),
		Header:      r.Header,
		Body:        pr.Body,
		Credential:  pr.Credential.Secret,
		IsStreaming: streaming,
	}
}

// setPolicyHeaders stamps the rate-limit and quota headers every admitted
// request carries.
func setPolicyHeaders(h http.Header, pr *prepared) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(pr.RateLimit.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(pr.RateLimit.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(pr.RateLimit.ResetAt.Unix(), 10))
	h.Set("X-Quota-Day-Limit", strconv.Itoa(pr.Quota.DayLimit))
	h.Set("X-Quota-Day-Used", strconv.FormatInt(pr.Quota.DayUsed, 10))
	h.Set("X-Quota-Month-Limit", strconv.Itoa(pr.Quota.MonthLimit))
	h.Set("X-Quota-Month-Used", strconv.FormatInt(pr.Quota.MonthUsed, 10))
	if pr.Quota.Warning {
		h.Set("X-Quota-Warning", "true")
	}
}

func (p *Pipeline) writeError(w http.ResponseWriter, r *http.Request, err *apierror.Error, requestID string) {
	for name, value := range err.Headers {
		w.Header().Set(name, value)
	}
	envelope := err.ToEnvelope(r.URL.Path, r.Method, requestID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(envelope)

	// One audit record per proxied request, failures included; the
	// principal is unknown on auth failures so UserID stays nil there.
	p.Audit.LogRequest(r, nil, "api."+r.Method, r.Header.Get("X-AI-Guard-Provider"), "", model.AuditFailure, nil, err.Message)
}

// projectContextID resolves the project the request bills against: an
// explicit hint (header or query) takes precedence over the caller's
// default project. A nil result is not an error; a caller with no
// project at all still reaches the system-default credential tier.
func projectContextID(r *http.Request, principal authn.Principal) *primitive.ObjectID {
	hint := r.Header.Get("X-AI-Guard-Project")
	if hint == "" {
		hint = r.URL.Query().Get("project")
	}
	if hint != "" {
		if id, err := primitive.ObjectIDFromHex(hint); err == nil {
			return &id
		}
	}
	return principal.User.DefaultProjectID
}

// bearerToken extracts the caller's token from the Authorization header.
// The "Bearer " prefix is optional on the wire; a bare token is accepted
// as-is.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return h
}

func retryAfterSeconds(resetAt time.Time) int {
	s := int(time.Until(resetAt).Seconds()) + 1
	if s < 1 {
		s = 1
	}
	return s
}

func readBody(r *http.Request, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxSize+1))
}

// responseWriterSink adapts an http.ResponseWriter + http.Flusher to
// forwarder.StreamSink, additionally tee-ing the relayed bytes into an
// in-memory buffer so the pipeline can still run post-response usage
// parsing on a streamed body.
type responseWriterSink struct {
	w           http.ResponseWriter
	status      int
	wroteHeader bool
	captured    bytes.Buffer
}

func (s *responseWriterSink) WriteHeader(statusCode int, header http.Header) {
	s.status = statusCode
	s.wroteHeader = true
	for name, values := range header {
		for _, v := range values {
			s.w.Header().Add(name, v)
		}
	}
	s.w.WriteHeader(statusCode)
}

func (s *responseWriterSink) Write(p []byte) (int, error) {
	s.captured.Write(p)
	return s.w.Write(p)
}

func (s *responseWriterSink) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
