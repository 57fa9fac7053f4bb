package authn

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aiguard/proxy/pkg/model"
)

type contextKey string

const principalKey contextKey = "authn_principal"

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the Principal a Middleware attached to the request
// context. ok is false if no principal is present.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// bearerToken extracts the token from the Authorization header. The
// "Bearer " prefix is optional on the wire; a bare token is accepted
// as-is.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return h
}

// Middleware authenticates every request behind it, attaching the resolved
// Principal to the request context on success or rejecting with onFailure.
func Middleware(v *Validator, onFailure func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := v.Validate(r.Context(), bearerToken(r))
			if err != nil {
				onFailure(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// AdminGuard protects the /_api/admin surface: a request passes with
// either the configured admin override secret in X-Admin-Key, or a PAT
// carrying the admin scope. An empty configured secret disables the
// header path entirely.
func AdminGuard(v *Validator, adminSecret string, onFailure func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := r.Header.Get("X-Admin-Key"); key != "" && adminSecret != "" &&
				subtle.ConstantTimeCompare([]byte(key), []byte(adminSecret)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := v.Validate(r.Context(), bearerToken(r))
			if err != nil {
				onFailure(w, r, err)
				return
			}
			if principal.Token == nil || !principal.Token.HasScope(model.ScopeAdmin) {
				onFailure(w, r, ErrAuthenticationFailed)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}
