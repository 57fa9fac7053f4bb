package usage

import "strings"

// costPerThousandTokens is a static per-model-family lookup, matched by the
// first substring of model that appears in the table. Order matters: more
// specific families are listed before their cheaper siblings. Unknown models
// yield a nil cost rather than a guess.
var costPerThousandTokens = []struct {
	substr string
	usd    float64
}{
	{"gpt-4o-mini", 0.00015},
	{"gpt-4o", 0.005},
	{"gpt-4-turbo", 0.01},
	{"gpt-4", 0.03},
	{"gpt-3.5-turbo", 0.0005},
	{"claude-3-opus", 0.015},
	{"claude-3-sonnet", 0.003},
	{"claude-3-haiku", 0.00025},
	{"claude-3-5-sonnet", 0.003},
	{"gemini-1.5-pro", 0.0035},
	{"gemini-1.5-flash", 0.00035},
	{"gemini-pro", 0.0005},
}

// Cost looks up a per-thousand-token rate for model and multiplies by
// totalTokens. Returns nil if no family in the table matches.
func Cost(model string, totalTokens int64) *float64 {
	m := strings.ToLower(model)
	for _, row := range costPerThousandTokens {
		if strings.Contains(m, row.substr) {
			c := row.usd * float64(totalTokens) / 1000
			return &c
		}
	}
	return nil
}
