// Package identity verifies opaque bearer tokens issued by the external
// identity provider. The proxy never validates token signatures itself;
// it is a thin client over the provider's own introspection endpoint.
package identity

import (
	"context"
	"errors"
)

// ErrVerificationFailed is returned when the bearer string is rejected by
// the identity provider (expired, malformed, revoked).
var ErrVerificationFailed = errors.New("identity: verification failed")

// Profile is the minimal identity the proxy needs to upsert a User.
type Profile struct {
	UID         string
	Email       string
	DisplayName string
}

// Verifier checks a bearer string against the external identity provider.
type Verifier interface {
	Verify(ctx context.Context, bearer string) (Profile, error)
}
