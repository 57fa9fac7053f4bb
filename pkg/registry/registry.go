// Package registry holds the static per-provider table the forwarder and
// schema validator key off of: upstream origin, auth header shape, and any
// constant headers/query parameters. It is read-only after process start.
package registry

import (
	"fmt"
	"strings"

	"github.com/aiguard/proxy/pkg/model"
)

// Entry describes how to reach and authenticate against one upstream
// provider.
type Entry struct {
	Tag             model.Provider
	Origin          string
	AuthHeader      string
	AuthValuePrefix string // e.g. "Bearer "; empty means the raw secret is the header value
	ConstantHeaders map[string]string
	ConstantQuery   map[string]string
}

// AuthHeaderValue composes the header value for a decrypted secret.
func (e Entry) AuthHeaderValue(secret string) string {
	if e.AuthValuePrefix == "" {
		return secret
	}
	return e.AuthValuePrefix + secret
}

var table = map[model.Provider]Entry{
	model.ProviderOpenAI: {
		Tag:             model.ProviderOpenAI,
		Origin:          "https://api.openai.com",
		AuthHeader:      "Authorization",
		AuthValuePrefix: "Bearer ",
	},
	model.ProviderAnthropic: {
		Tag:             model.ProviderAnthropic,
		Origin:          "https://api.anthropic.com",
		AuthHeader:      "x-api-key",
		ConstantHeaders: map[string]string{"anthropic-version": "2023-06-01"},
	},
	model.ProviderGemini: {
		Tag:        model.ProviderGemini,
		Origin:     "https://generativelanguage.googleapis.com",
		AuthHeader: "x-goog-api-key",
	},
}

// ErrUnknownProvider is returned by Lookup for a tag outside the static
// table.
type ErrUnknownProvider struct{ Tag string }

func (e ErrUnknownProvider) Error() string {
	return fmt.Sprintf("registry: unknown provider %q", e.Tag)
}

// Lookup resolves a lowercased provider tag from a request header value.
// Matching is case-insensitive; the returned Entry's Tag is always the
// canonical lowercase form.
func Lookup(tag string) (Entry, error) {
	p := model.Provider(strings.ToLower(strings.TrimSpace(tag)))
	e, ok := table[p]
	if !ok {
		return Entry{}, ErrUnknownProvider{Tag: tag}
	}
	return e, nil
}

// All returns every registered provider entry, in a stable order.
func All() []Entry {
	return []Entry{table[model.ProviderOpenAI], table[model.ProviderAnthropic], table[model.ProviderGemini]}
}

// IsKnown reports whether tag names a registered provider.
func IsKnown(tag string) bool {
	_, err := Lookup(tag)
	return err == nil
}
