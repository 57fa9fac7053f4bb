package schema

import (
	"regexp"
)

// maxSafetyBodyBytes bounds the serialized body regardless of any
// transport limit.
const maxSafetyBodyBytes = 1 << 20 // 1 MiB

// injectionPatterns are conservative SQL/script-injection screens. False
// positives are acceptable by design — the screen favors caution.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(union|select|insert|update|delete|drop|create|alter)\b[^a-z0-9]{0,6}(['"]|--|/\*)`),
	regexp.MustCompile(`(?i)<script[\s>]`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*['"]`),
}

// SafetyViolation describes why the safety screen rejected a body.
type SafetyViolation struct {
	Reason string
}

// CheckSafety runs the cheap pre-schema safety screen over a body's raw
// serialized bytes. It is deliberately conservative.
func CheckSafety(raw []byte) *SafetyViolation {
	if len(raw) > maxSafetyBodyBytes {
		return &SafetyViolation{Reason: "request body exceeds 1 MiB safety limit"}
	}

	for _, p := range injectionPatterns {
		if p.Match(raw) {
			return &SafetyViolation{Reason: "request body matched a disallowed pattern"}
		}
	}

	return nil
}
