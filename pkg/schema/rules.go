package schema

import (
	"strings"

	"github.com/aiguard/proxy/pkg/model"
)

// Rule is a declarative (provider, method, path) body schema: newTarget
// returns a fresh pointer to the typed request struct for this route,
// decoded and struct-tag validated by Validate.
type Rule struct {
	Provider  model.Provider
	Method    string
	Path      string // exact segments, ":name" matches any single segment
	newTarget func() any
}

// segments splits a path into its non-empty components.
func segments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// matchesPath reports whether requestPath matches the rule's path template,
// where a ":name" segment matches any single segment.
func matchesPath(template, requestPath string) bool {
	t := segments(template)
	r := segments(requestPath)
	if len(t) != len(r) {
		return false
	}
	for i := range t {
		if strings.HasPrefix(t[i], ":") {
			continue
		}
		if t[i] != r[i] {
			return false
		}
	}
	return true
}

// Rules is the per-provider route rule table. Unknown fields not
// named by a target struct are always permitted (forward compatibility);
// unmatched routes fail open in Validate.
var Rules = []Rule{
	{
		Provider:  model.ProviderOpenAI,
		Method:    "POST",
		Path:      "/v1/chat/completions",
		newTarget: func() any { return &openAIChatRequest{} },
	},
	{
		Provider:  model.ProviderAnthropic,
		Method:    "POST",
		Path:      "/v1/messages",
		newTarget: func() any { return &anthropicMessagesRequest{} },
	},
	{
		Provider:  model.ProviderGemini,
		Method:    "POST",
		Path:      "/v1beta/models/:model/generateContent",
		newTarget: func() any { return &geminiGenerateContentRequest{} },
	},
}

// Find returns the rule matching (provider, method, path), or false if none
// does (callers should fail open for forward compatibility).
func Find(provider model.Provider, method, path string) (Rule, bool) {
	method = strings.ToUpper(method)
	for _, r := range Rules {
		if r.Provider == provider && r.Method == method && matchesPath(r.Path, path) {
			return r, true
		}
	}
	return Rule{}, false
}
