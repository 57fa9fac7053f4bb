package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aiguard/proxy/pkg/model"
)

// validate is a package-level, concurrency-safe validator instance,
// registered to report field names as their JSON tag rather than the Go
// struct field name (matching internal/httpserver's idiom, minus the
// snake_case guesswork that one needs — these structs already carry the
// wire name in their json tag).
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// FieldError describes one field's schema violation.
type FieldError struct {
	Field   string
	Message string
}

// Validate runs the safety screen then, if a rule matches the route, a
// struct-tag validation pass over a freshly-decoded copy of raw:
// required fields, enum-constrained roles, and nested range
// constraints on fields like generationConfig.temperature. body is the
// already-decoded generic map used only to detect whether raw parsed as
// JSON at all; unmatched routes pass through untouched (fail-open for
// forward compatibility), and a route match on a non-JSON-object body
// reports a single decode error rather than panicking through reflection.
func Validate(raw []byte, body map[string]any, provider model.Provider, method, path string) (*SafetyViolation, []FieldError) {
	if v := CheckSafety(raw); v != nil {
		return v, nil
	}

	rule, ok := Find(provider, method, path)
	if !ok {
		return nil, nil
	}
	if body == nil {
		return nil, []FieldError{{Field: "", Message: "request body must be a JSON object"}}
	}

	target := rule.newTarget()
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, []FieldError{{Field: "", Message: fmt.Sprintf("request body does not match the expected shape: %v", err)}}
	}

	err := validate.Struct(target)
	if err == nil {
		return nil, nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, []FieldError{{Field: "", Message: err.Error()}}
	}

	errs := make([]FieldError, 0, len(ve))
	for _, fe := range ve {
		errs = append(errs, FieldError{Field: fieldPath(fe), Message: fieldErrorMessage(fe)})
	}
	return nil, errs
}

// fieldPath strips the target struct's own name from a validator
// namespace, leaving the json-tag path a caller can match against the
// request body (e.g. "messages[0].role").
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed on %q validation", fe.Tag())
	}
}
