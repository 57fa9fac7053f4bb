package usage

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/pkg/model"
)

type fakeRecords struct {
	mu      sync.Mutex
	written []model.UsageRecord
}

func (f *fakeRecords) InsertUsageRecords(ctx context.Context, records []model.UsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, records...)
	return nil
}

type incrementCall struct {
	projectID primitive.ObjectID
	requests  int64
	tokens    int64
	cost      float64
}

type fakeIncrementer struct {
	mu    sync.Mutex
	calls []incrementCall
}

func (f *fakeIncrementer) IncrementUsageCounters(ctx context.Context, projectID primitive.ObjectID, requests, tokens int64, cost float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, incrementCall{projectID, requests, tokens, cost})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestParseOpenAIUsage(t *testing.T) {
	u := parseUsage(model.ProviderOpenAI, "/v1/chat/completions",
		[]byte(`{"model":"gpt-4"}`),
		[]byte(`{"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	if u.Model != "gpt-4" {
		t.Errorf("Model = %q, want gpt-4", u.Model)
	}
	if u.TotalTokens == nil || *u.TotalTokens != 15 {
		t.Errorf("TotalTokens = %v, want 15", u.TotalTokens)
	}
}

func TestParseAnthropicUsageSumsTotal(t *testing.T) {
	u := parseUsage(model.ProviderAnthropic, "/v1/messages",
		[]byte(`{"model":"claude-3-sonnet-20240229"}`),
		[]byte(`{"usage":{"input_tokens":20,"output_tokens":8}}`))
	if u.TotalTokens == nil || *u.TotalTokens != 28 {
		t.Errorf("TotalTokens = %v, want 28", u.TotalTokens)
	}
}

func TestParseGeminiUsageModelFromPath(t *testing.T) {
	u := parseUsage(model.ProviderGemini, "/v1beta/models/gemini-1.5-pro/generateContent",
		nil,
		[]byte(`{"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":4,"totalTokenCount":7}}`))
	if u.Model != "gemini-1.5-pro" {
		t.Errorf("Model = %q, want gemini-1.5-pro", u.Model)
	}
	if u.TotalTokens == nil || *u.TotalTokens != 7 {
		t.Errorf("TotalTokens = %v, want 7", u.TotalTokens)
	}
}

func TestParseUsageAbsentUsageObjectYieldsNilTokens(t *testing.T) {
	u := parseUsage(model.ProviderOpenAI, "/v1/chat/completions",
		[]byte(`{"model":"gpt-4"}`),
		[]byte(`{"id":"chatcmpl-1","choices":[]}`))
	if u.TotalTokens != nil {
		t.Errorf("TotalTokens = %v, want nil when the usage object is absent", u.TotalTokens)
	}
}

func TestParseUsagePresentZeroCountStaysZero(t *testing.T) {
	u := parseUsage(model.ProviderOpenAI, "/v1/chat/completions",
		[]byte(`{"model":"gpt-4"}`),
		[]byte(`{"usage":{"prompt_tokens":0,"completion_tokens":0,"total_tokens":0}}`))
	if u.TotalTokens == nil || *u.TotalTokens != 0 {
		t.Errorf("TotalTokens = %v, want explicit 0 for a present zero count", u.TotalTokens)
	}
}

func TestParseUsageMalformedResponseBodyYieldsNilTokens(t *testing.T) {
	u := parseUsage(model.ProviderOpenAI, "/v1/chat/completions", []byte(`{"model":"gpt-4"}`), []byte(`not json`))
	if u.TotalTokens != nil {
		t.Errorf("TotalTokens = %v, want nil on parse failure", u.TotalTokens)
	}
}

func TestCostKnownModel(t *testing.T) {
	c := Cost("gpt-4", 1000)
	if c == nil || *c != 0.03 {
		t.Errorf("Cost = %v, want 0.03", c)
	}
}

func TestCostUnknownModelIsNil(t *testing.T) {
	if c := Cost("some-future-model-9000", 1000); c != nil {
		t.Errorf("Cost = %v, want nil for unknown model", c)
	}
}

func TestTrackerFlushWritesRecordsAndIncrementsOncePerProject(t *testing.T) {
	records := &fakeRecords{}
	incrementer := &fakeIncrementer{}
	tracker := New(records, incrementer, discardLogger())

	projectID := primitive.NewObjectID()
	userID := primitive.NewObjectID()

	obs := Observation{
		UserID: userID, ProjectID: projectID, Provider: model.ProviderOpenAI,
		Path: "/v1/chat/completions", Method: "POST",
		RequestBody:  []byte(`{"model":"gpt-4"}`),
		ResponseBody: []byte(`{"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`),
		StatusCode:   200,
	}

	tracker.flush([]Observation{obs, obs})

	if len(records.written) != 2 {
		t.Fatalf("written = %d records, want 2", len(records.written))
	}
	if len(incrementer.calls) != 1 {
		t.Fatalf("increment calls = %d, want 1 (batched per project)", len(incrementer.calls))
	}
	call := incrementer.calls[0]
	if call.requests != 2 || call.tokens != 30 {
		t.Errorf("increment call = %+v, want requests=2 tokens=30", call)
	}
}

func TestTrackerFlushAbsentTokenCountIncrementsTokensByOne(t *testing.T) {
	records := &fakeRecords{}
	incrementer := &fakeIncrementer{}
	tracker := New(records, incrementer, discardLogger())

	obs := Observation{
		UserID: primitive.NewObjectID(), ProjectID: primitive.NewObjectID(),
		Provider: model.ProviderOpenAI, Path: "/v1/chat/completions", Method: "POST",
		RequestBody:  []byte(`{"model":"gpt-4"}`),
		ResponseBody: []byte(`{"id":"chatcmpl-1","choices":[]}`),
		StatusCode:   200,
	}

	tracker.flush([]Observation{obs})

	if len(incrementer.calls) != 1 {
		t.Fatalf("increment calls = %d, want 1", len(incrementer.calls))
	}
	if call := incrementer.calls[0]; call.requests != 1 || call.tokens != 1 {
		t.Errorf("increment call = %+v, want requests=1 tokens=1 when the count is absent", call)
	}
}

func TestTrackerObserveDropsWhenBufferFull(t *testing.T) {
	tracker := New(&fakeRecords{}, &fakeIncrementer{}, discardLogger())
	for i := 0; i < bufferSize+10; i++ {
		tracker.Observe(Observation{})
	}
	// Must not block or panic; buffer-full observations are dropped.
}

func TestTrackerStartCloseFlushesPending(t *testing.T) {
	records := &fakeRecords{}
	incrementer := &fakeIncrementer{}
	tracker := New(records, incrementer, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	tracker.Start(ctx)

	tracker.Observe(Observation{
		ProjectID: primitive.NewObjectID(), Provider: model.ProviderAnthropic,
		RequestBody: []byte(`{"model":"claude-3-haiku"}`),
		ResponseBody: []byte(`{"usage":{"input_tokens":1,"output_tokens":1}}`),
	})

	cancel()
	tracker.Close()

	time.Sleep(10 * time.Millisecond)
	if len(records.written) != 1 {
		t.Fatalf("written = %d records, want 1 after close", len(records.written))
	}
}
