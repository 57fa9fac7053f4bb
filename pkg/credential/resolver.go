// Package credential implements the three-tier credential fallback:
// project credential, then the caller's default project, then a
// process-default credential supplied via environment.
package credential

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/pkg/model"
	"github.com/aiguard/proxy/pkg/vault"
)

// Source identifies which tier resolved a credential.
type Source string

const (
	SourceProject Source = "project"
	SourceUser    Source = "user"
	SourceSystem  Source = "system"
)

var (
	// ErrUnavailable means no tier produced a credential for the provider.
	ErrUnavailable = errors.New("credential: unavailable")
	// ErrProviderForbidden means the project's allowlist excludes the
	// requested provider, independent of credential availability.
	ErrProviderForbidden = errors.New("credential: provider forbidden by project allowlist")
)

// Resolved is a decrypted credential ready to use on an outbound request.
type Resolved struct {
	Secret string
	Source Source
	KeyID  string
}

// ProjectRepository is the narrow lookup contract the resolver needs.
type ProjectRepository interface {
	GetProjectByID(ctx context.Context, id primitive.ObjectID) (*model.Project, error)
}

// SystemDefaults holds process-default provider credentials supplied via
// environment (credential-resolver tier 3).
type SystemDefaults map[model.Provider]string

// Resolver implements the fallback chain over a Vault and project
// repository.
type Resolver struct {
	Projects ProjectRepository
	Vault    *vault.Vault
	Defaults SystemDefaults
}

// New constructs a Resolver.
func New(projects ProjectRepository, v *vault.Vault, defaults SystemDefaults) *Resolver {
	return &Resolver{Projects: projects, Vault: v, Defaults: defaults}
}

// Resolve returns a decrypted credential for provider, preferring project,
// then the user's default project, then the system default. It enforces
// the allowlist of each project it consults (project, then the user's
// default project) before falling through to lower tiers.
func (r *Resolver) Resolve(ctx context.Context, provider model.Provider, projectID, userDefaultProjectID *primitive.ObjectID) (Resolved, error) {
	if projectID != nil {
		proj, err := r.Projects.GetProjectByID(ctx, *projectID)
		if err == nil && proj != nil {
			if !proj.AllowsProvider(provider) {
				return Resolved{}, ErrProviderForbidden
			}
			if cred, ok := proj.ActiveCredential(provider); ok {
				opened, derr := r.Vault.Decrypt(vault.Envelope{KeyID: cred.MasterKeyID, Ciphertext: cred.Ciphertext})
				if derr == nil {
					return Resolved{Secret: opened.APIKey, Source: SourceProject, KeyID: cred.KeyID}, nil
				}
			}
		}
	}

	if userDefaultProjectID != nil {
		proj, err := r.Projects.GetProjectByID(ctx, *userDefaultProjectID)
		if err == nil && proj != nil {
			if !proj.AllowsProvider(provider) {
				return Resolved{}, ErrProviderForbidden
			}
			if cred, ok := proj.ActiveCredential(provider); ok {
				opened, derr := r.Vault.Decrypt(vault.Envelope{KeyID: cred.MasterKeyID, Ciphertext: cred.Ciphertext})
				if derr == nil {
					return Resolved{Secret: opened.APIKey, Source: SourceUser, KeyID: cred.KeyID}, nil
				}
			}
		}
	}

	if secret, ok := r.Defaults[provider]; ok && secret != "" {
		return Resolved{Secret: secret, Source: SourceSystem}, nil
	}

	return Resolved{}, ErrUnavailable
}
