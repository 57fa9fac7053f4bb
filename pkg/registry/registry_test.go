package registry

import "testing"

func TestLookupKnownProviders(t *testing.T) {
	tests := []struct {
		tag        string
		wantOrigin string
		wantHeader string
	}{
		{"openai", "https://api.openai.com", "Authorization"},
		{"Anthropic", "https://api.anthropic.com", "x-api-key"},
		{"GEMINI", "https://generativelanguage.googleapis.com", "x-goog-api-key"},
	}

	for _, tt := range tests {
		e, err := Lookup(tt.tag)
		if err != nil {
			t.Fatalf("Lookup(%q) error: %v", tt.tag, err)
		}
		if e.Origin != tt.wantOrigin {
			t.Errorf("Lookup(%q).Origin = %q, want %q", tt.tag, e.Origin, tt.wantOrigin)
		}
		if e.AuthHeader != tt.wantHeader {
			t.Errorf("Lookup(%q).AuthHeader = %q, want %q", tt.tag, e.AuthHeader, tt.wantHeader)
		}
	}
}

func TestLookupUnknownProvider(t *testing.T) {
	_, err := Lookup("web-ui")
	if _, ok := err.(ErrUnknownProvider); !ok {
		t.Errorf("Lookup(%q) error = %v, want ErrUnknownProvider", "web-ui", err)
	}
}

func TestAnthropicConstantHeader(t *testing.T) {
	e, _ := Lookup("anthropic")
	if e.ConstantHeaders["anthropic-version"] != "2023-06-01" {
		t.Errorf("anthropic-version = %q, want %q", e.ConstantHeaders["anthropic-version"], "2023-06-01")
	}
}

func TestAuthHeaderValue(t *testing.T) {
	openai, _ := Lookup("openai")
	if got := openai.AuthHeaderValue("sk-123"); got != "Bearer sk-123" {
		t.Errorf("AuthHeaderValue() = %q, want %q", got, "Bearer sk-123")
	}

	anthropic, _ := Lookup("anthropic")
	if got := anthropic.AuthHeaderValue("sk-123"); got != "sk-123" {
		t.Errorf("AuthHeaderValue() = %q, want %q", got, "sk-123")
	}
}

func TestAllReturnsThreeProviders(t *testing.T) {
	all := All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d entries, want 3", len(all))
	}
}

func TestIsKnown(t *testing.T) {
	if !IsKnown("openai") {
		t.Error("IsKnown(openai) should be true")
	}
	if IsKnown("web-ui") {
		t.Error("IsKnown(web-ui) should be false")
	}
}
