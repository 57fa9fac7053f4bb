// Package tokenauth mints and verifies personal access tokens of shape
// pat_<16 hex>_<32 url-safe b64>. The public id is an index-lookup key;
// the secret half is never stored, only its slow-hash.
package tokenauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Prefix identifies a string as a personal access token.
const Prefix = "pat_"

const (
	publicIDBytes = 8  // -> 16 hex chars
	secretBytes   = 24 // -> 32 url-safe base64 chars
)

// ErrMalformed is returned by Parse when the token does not match the
// pat_<id>_<secret> shape.
var ErrMalformed = errors.New("tokenauth: malformed token")

// Generated is a freshly minted token: Raw is shown to the caller exactly
// once, PublicID (wire prefix included, i.e. pat_<16 hex>) is the durable
// lookup key stored alongside SecretHash.
type Generated struct {
	Raw      string
	PublicID string
	Secret   string
}

// Generate mints a new random token.
func Generate() (Generated, error) {
	idBuf := make([]byte, publicIDBytes)
	if _, err := rand.Read(idBuf); err != nil {
		return Generated{}, fmt.Errorf("tokenauth: generating public id: %w", err)
	}
	secretBuf := make([]byte, secretBytes)
	if _, err := rand.Read(secretBuf); err != nil {
		return Generated{}, fmt.Errorf("tokenauth: generating secret: %w", err)
	}

	publicID := Prefix + hex.EncodeToString(idBuf)
	secret := base64.RawURLEncoding.EncodeToString(secretBuf)

	return Generated{
		Raw:      publicID + "_" + secret,
		PublicID: publicID,
		Secret:   secret,
	}, nil
}

// Parsed is a token string split into its lookup key and secret. PublicID
// keeps the wire prefix, matching the indexed identifier stored on the
// token document.
type Parsed struct {
	PublicID string
	Secret   string
}

// Parse splits raw into its public id and secret. It does not verify the
// secret against any stored hash.
func Parse(raw string) (Parsed, error) {
	if !strings.HasPrefix(raw, Prefix) {
		return Parsed{}, ErrMalformed
	}
	rest := strings.TrimPrefix(raw, Prefix)
	idx := strings.IndexByte(rest, '_')
	if idx <= 0 || idx == len(rest)-1 {
		return Parsed{}, ErrMalformed
	}
	return Parsed{PublicID: Prefix + rest[:idx], Secret: rest[idx+1:]}, nil
}

// HasPrefix reports whether raw looks like a PAT (vs. an external identity
// token), without fully parsing or validating it.
func HasPrefix(raw string) bool {
	return strings.HasPrefix(raw, Prefix)
}
