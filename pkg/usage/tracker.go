// Package usage implements the post-response accounting step:
// parsing a provider's response body for token counts,
// pricing it against a static cost table, and recording both a UsageRecord
// and an atomic increment of the owning project's counters. Grounded on
// internal/audit/audit.go's async buffered writer (channel + ticker + batch
// flush); failures here are logged and swallowed, never propagated to the
// caller's response.
package usage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/internal/telemetry"
	"github.com/aiguard/proxy/pkg/model"
	"github.com/aiguard/proxy/pkg/quota"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// RecordRepository persists completed UsageRecords in bulk.
type RecordRepository interface {
	InsertUsageRecords(ctx context.Context, records []model.UsageRecord) error
}

// Observation is one completed forward, ready for accounting.
type Observation struct {
	UserID         primitive.ObjectID
	ProjectID      primitive.ObjectID
	Provider       model.Provider
	Path           string
	Method         string
	RequestBody    []byte
	ResponseBody   []byte
	ResponseTimeMS int64
	StatusCode     int
}

// Tracker is an async, buffered usage accountant.
type Tracker struct {
	Records  RecordRepository
	Counters quota.Incrementer
	logger   *slog.Logger
	entries  chan Observation
	wg       sync.WaitGroup
}

// New constructs a Tracker. Call Start to begin processing observations.
func New(records RecordRepository, counters quota.Incrementer, logger *slog.Logger) *Tracker {
	return &Tracker{
		Records:  records,
		Counters: counters,
		logger:   logger,
		entries:  make(chan Observation, bufferSize),
	}
}

// Start launches the background flush loop in a goroutine and returns at
// once. The loop flushes pending observations and exits when ctx is
// cancelled or Close is called.
func (t *Tracker) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx)
	}()
}

// Close waits for all pending observations to be flushed.
func (t *Tracker) Close() {
	close(t.entries)
	t.wg.Wait()
}

// Observe enqueues a completed forward for async accounting. Never blocks
// the caller; if the buffer is full the observation is dropped and a
// warning is logged — accounting failures must never fail the response.
func (t *Tracker) Observe(obs Observation) {
	select {
	case t.entries <- obs:
	default:
		t.logger.Warn("usage tracker buffer full, dropping observation",
			"provider", obs.Provider, "path", obs.Path)
	}
}

func (t *Tracker) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Observation, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		t.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case obs, ok := <-t.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, obs)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case obs, ok := <-t.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, obs)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush parses each observation, writes the resulting UsageRecords in one
// batch, then increments each affected project's counters once per project
// (summed across the batch) via a single atomic operation each.
func (t *Tracker) flush(observations []Observation) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records := make([]model.UsageRecord, 0, len(observations))
	type delta struct {
		requests int64
		tokens   int64
		cost     float64
	}
	deltas := make(map[primitive.ObjectID]delta)

	for _, obs := range observations {
		u := parseUsage(obs.Provider, obs.Path, obs.RequestBody, obs.ResponseBody)
		cost := Cost(u.Model, valueOr(u.TotalTokens, 0))

		records = append(records, model.UsageRecord{
			ID:               primitive.NewObjectID(),
			UserID:           obs.UserID,
			ProjectID:        obs.ProjectID,
			Provider:         obs.Provider,
			Path:             obs.Path,
			Method:           obs.Method,
			Model:            u.Model,
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
			Cost:             cost,
			ResponseTimeMS:   obs.ResponseTimeMS,
			StatusCode:       obs.StatusCode,
			Timestamp:        time.Now().UTC(),
		})

		tokenDelta := valueOr(u.TotalTokens, 1)
		costDelta := 0.0
		if cost != nil {
			costDelta = *cost
		}
		d := deltas[obs.ProjectID]
		d.requests++
		d.tokens += tokenDelta
		d.cost += costDelta
		deltas[obs.ProjectID] = d
	}

	if t.Records != nil {
		if err := t.Records.InsertUsageRecords(ctx, records); err != nil {
			t.logger.Error("writing usage records", "error", err, "count", len(records))
		} else {
			for _, rec := range records {
				telemetry.UsageRecordsTotal.WithLabelValues(string(rec.Provider)).Inc()
			}
		}
	}

	if t.Counters != nil {
		for projectID, d := range deltas {
			if projectID.IsZero() {
				// A tier-3 system-default credential has no billing
				// project (pkg/pipeline leaves Observation.ProjectID
				// unset in that case).
				continue
			}
			if err := t.Counters.IncrementUsageCounters(ctx, projectID, d.requests, d.tokens, d.cost); err != nil {
				t.logger.Error("incrementing project usage counters", "error", err, "projectId", projectID)
			}
		}
	}
}

func valueOr(p *int64, fallback int64) int64 {
	if p == nil {
		return fallback
	}
	return *p
}

// providerUsage is the token/model extraction result for one response.
type providerUsage struct {
	Model            string
	PromptTokens     *int64
	CompletionTokens *int64
	TotalTokens      *int64
}

// parseUsage extracts model and token counts per provider. Parse
// failures (non-JSON or unexpected shape, e.g. an error response body)
// yield zero-value fields rather than an error: accounting is best-effort.
func parseUsage(provider model.Provider, path string, requestBody, responseBody []byte) providerUsage {
	switch provider {
	case model.ProviderOpenAI:
		return parseOpenAI(requestBody, responseBody)
	case model.ProviderAnthropic:
		return parseAnthropic(requestBody, responseBody)
	case model.ProviderGemini:
		return parseGemini(path, responseBody)
	default:
		return providerUsage{}
	}
}

// The parsers below use pointer targets throughout so a well-formed
// response that simply omits the usage object (or a count inside it)
// leaves the corresponding field nil. Callers treat nil as "count absent"
// and fall back to a +1 token increment, which a present-but-zero count
// must not trigger.

func parseOpenAI(requestBody, responseBody []byte) providerUsage {
	u := providerUsage{Model: modelFromRequestBody(requestBody)}

	var resp struct {
		Usage *struct {
			PromptTokens     *int64 `json:"prompt_tokens"`
			CompletionTokens *int64 `json:"completion_tokens"`
			TotalTokens      *int64 `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(responseBody, &resp); err != nil || resp.Usage == nil {
		return u
	}
	u.PromptTokens = resp.Usage.PromptTokens
	u.CompletionTokens = resp.Usage.CompletionTokens
	u.TotalTokens = resp.Usage.TotalTokens
	return u
}

func parseAnthropic(requestBody, responseBody []byte) providerUsage {
	u := providerUsage{Model: modelFromRequestBody(requestBody)}

	var resp struct {
		Usage *struct {
			InputTokens  *int64 `json:"input_tokens"`
			OutputTokens *int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(responseBody, &resp); err != nil || resp.Usage == nil {
		return u
	}
	u.PromptTokens = resp.Usage.InputTokens
	u.CompletionTokens = resp.Usage.OutputTokens
	if resp.Usage.InputTokens != nil || resp.Usage.OutputTokens != nil {
		total := valueOr(resp.Usage.InputTokens, 0) + valueOr(resp.Usage.OutputTokens, 0)
		u.TotalTokens = &total
	}
	return u
}

func parseGemini(path string, responseBody []byte) providerUsage {
	u := providerUsage{Model: modelFromGeminiPath(path)}

	var resp struct {
		UsageMetadata *struct {
			PromptTokenCount     *int64 `json:"promptTokenCount"`
			CandidatesTokenCount *int64 `json:"candidatesTokenCount"`
			TotalTokenCount      *int64 `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(responseBody, &resp); err != nil || resp.UsageMetadata == nil {
		return u
	}
	u.PromptTokens = resp.UsageMetadata.PromptTokenCount
	u.CompletionTokens = resp.UsageMetadata.CandidatesTokenCount
	u.TotalTokens = resp.UsageMetadata.TotalTokenCount
	return u
}

func modelFromRequestBody(requestBody []byte) string {
	var body struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(requestBody, &body); err != nil {
		return ""
	}
	return body.Model
}

// modelFromGeminiPath extracts the model segment from a path of the form
// /v1beta/models/<model>/generateContent or ...:streamGenerateContent.
func modelFromGeminiPath(path string) string {
	const marker = "models/"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return ""
	}
	rest := path[idx+len(marker):]
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		rest = rest[:slash]
	}
	if colon := strings.IndexByte(rest, ':'); colon >= 0 {
		rest = rest[:colon]
	}
	return rest
}
