// Package authn dispatches an inbound bearer string to either the PAT path
// or the external identity path and returns a unified principal.
package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/pkg/identity"
	"github.com/aiguard/proxy/pkg/model"
	"github.com/aiguard/proxy/pkg/tokenauth"
)

// ErrAuthenticationFailed covers every rejection path: missing header,
// malformed token, unknown token, revoked/expired token, inactive owner, or
// identity verification failure.
var ErrAuthenticationFailed = errors.New("authn: authentication failed")

// AuthType distinguishes how a principal was authenticated.
type AuthType string

const (
	AuthPAT      AuthType = "pat"
	AuthExternal AuthType = "external"
)

// Principal is the authenticated identity attached to the request context
// for the remainder of the pipeline.
type Principal struct {
	User     *model.User
	Token    *model.PersonalAccessToken // non-nil only for AuthPAT
	AuthType AuthType
}

// TokenRepository is the narrow PAT lookup contract the validator needs.
type TokenRepository interface {
	FindPATByPublicID(ctx context.Context, publicID string) (*model.PersonalAccessToken, error)
	TouchPATLastUsed(ctx context.Context, id primitive.ObjectID) error
}

// UserRepository is the narrow user lookup/upsert contract the validator
// needs.
type UserRepository interface {
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*model.User, error)
	UpsertUserByExternalID(ctx context.Context, externalID string, profile identity.Profile) (*model.User, error)
	TouchLastLogin(ctx context.Context, id primitive.ObjectID) error
}

// Validator dispatches bearer strings across the two supported token
// schemes.
type Validator struct {
	Tokens   TokenRepository
	Users    UserRepository
	Verifier identity.Verifier
}

// New constructs a Validator.
func New(tokens TokenRepository, users UserRepository, verifier identity.Verifier) *Validator {
	return &Validator{Tokens: tokens, Users: users, Verifier: verifier}
}

// Validate dispatches bearer to the PAT path (prefix pat_) or the identity
// path (anything else), returning a Principal on success.
func (v *Validator) Validate(ctx context.Context, bearer string) (Principal, error) {
	if bearer == "" {
		return Principal{}, ErrAuthenticationFailed
	}

	if tokenauth.HasPrefix(bearer) {
		return v.validatePAT(ctx, bearer)
	}
	return v.validateIdentity(ctx, bearer)
}

func (v *Validator) validatePAT(ctx context.Context, raw string) (Principal, error) {
	parsed, err := tokenauth.Parse(raw)
	if err != nil {
		return Principal{}, ErrAuthenticationFailed
	}

	tok, err := v.Tokens.FindPATByPublicID(ctx, parsed.PublicID)
	if err != nil || tok == nil {
		return Principal{}, ErrAuthenticationFailed
	}

	if !tokenauth.Verify(tok.SecretHash, raw) {
		return Principal{}, ErrAuthenticationFailed
	}

	if !tok.Usable(time.Now().UTC()) {
		return Principal{}, ErrAuthenticationFailed
	}

	user, err := v.Users.GetUserByID(ctx, tok.UserID)
	if err != nil || user == nil || !user.IsActive() {
		return Principal{}, ErrAuthenticationFailed
	}

	_ = v.Tokens.TouchPATLastUsed(ctx, tok.ID) // best-effort bookkeeping

	return Principal{User: user, Token: tok, AuthType: AuthPAT}, nil
}

func (v *Validator) validateIdentity(ctx context.Context, bearer string) (Principal, error) {
	if v.Verifier == nil {
		return Principal{}, ErrAuthenticationFailed
	}

	profile, err := v.Verifier.Verify(ctx, bearer)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	user, err := v.Users.UpsertUserByExternalID(ctx, profile.UID, profile)
	if err != nil || user == nil {
		return Principal{}, ErrAuthenticationFailed
	}
	if !user.IsActive() {
		return Principal{}, ErrAuthenticationFailed
	}

	_ = v.Users.TouchLastLogin(ctx, user.ID) // best-effort bookkeeping

	return Principal{User: user, AuthType: AuthExternal}, nil
}
