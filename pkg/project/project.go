// Package project exposes the administrative HTTP surface for project
// management: create/list, membership, provider keys, settings, quota,
// and usage inspection, backed by pkg/repo's Mongo-backed project store
// and pkg/vault for credential sealing.
package project

import (
	"time"

	"github.com/aiguard/proxy/pkg/model"
)

// CreateRequest is the JSON body for POST /_api/projects.
type CreateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// AddMemberRequest is the JSON body for POST /_api/projects/{id}/members.
type AddMemberRequest struct {
	UserID string          `json:"userId" validate:"required"`
	Role   model.MemberRole `json:"role" validate:"required,oneof=admin member"`
}

// AddCredentialRequest is the JSON body for POST
// /_api/projects/{id}/keys. The plaintext APIKey is sealed by the vault
// and never persisted or echoed back.
type AddCredentialRequest struct {
	Provider model.Provider `json:"provider" validate:"required,oneof=openai anthropic gemini"`
	APIKey   string         `json:"apiKey" validate:"required,min=1"`
}

// UpdateSettingsRequest is the JSON body for PUT
// /_api/projects/{id}/settings.
type UpdateSettingsRequest struct {
	RateLimitOverride *model.RateLimitPolicy `json:"rateLimitOverride,omitempty"`
	QuotaOverride     *model.QuotaPolicy     `json:"quotaOverride,omitempty"`
	AllowedProviders  []model.Provider       `json:"allowedProviders,omitempty"`
	WebhookURL        string                 `json:"webhookUrl,omitempty" validate:"omitempty,url"`
}

// SetQuotaRequest is the JSON body for PUT /_api/projects/{id}/quota. Both
// limits null clears the override, restoring the tier default.
type SetQuotaRequest struct {
	MaxRequestsPerDay   *int `json:"maxRequestsPerDay,omitempty" validate:"omitempty,min=1"`
	MaxRequestsPerMonth *int `json:"maxRequestsPerMonth,omitempty" validate:"omitempty,min=1"`
}

// QuotaResponse is the effective quota policy plus current consumption.
type QuotaResponse struct {
	MaxRequestsPerDay   int   `json:"maxRequestsPerDay"`
	MaxRequestsPerMonth int   `json:"maxRequestsPerMonth"`
	DayUsed             int64 `json:"dayUsed"`
	MonthUsed           int64 `json:"monthUsed"`
	Override            bool  `json:"override"`
}

// MemberResponse is one project member's wire shape.
type MemberResponse struct {
	UserID  string    `json:"userId"`
	Role    string    `json:"role"`
	AddedAt time.Time `json:"addedAt"`
}

// CredentialResponse is one project credential's wire shape. The
// ciphertext is never exposed; only enough to identify and manage it.
type CredentialResponse struct {
	Provider string    `json:"provider"`
	KeyID    string    `json:"keyId"`
	Active   bool      `json:"active"`
	AddedAt  time.Time `json:"addedAt"`
}

// Response is a project's wire shape.
type Response struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	OwnerID       string               `json:"ownerId"`
	Members       []MemberResponse     `json:"members"`
	Credentials   []CredentialResponse `json:"credentials"`
	Settings      model.Settings       `json:"settings"`
	UsageCounters model.UsageCounters  `json:"usageCounters"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// ToResponse converts a stored Project to its wire shape, omitting every
// credential's ciphertext.
func ToResponse(p *model.Project) Response {
	members := make([]MemberResponse, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, MemberResponse{UserID: m.UserID.Hex(), Role: string(m.Role), AddedAt: m.AddedAt})
	}

	creds := make([]CredentialResponse, 0, len(p.Credentials))
	for _, c := range p.Credentials {
		creds = append(creds, CredentialResponse{Provider: string(c.Provider), KeyID: c.KeyID, Active: c.Active, AddedAt: c.AddedAt})
	}

	return Response{
		ID:            p.ID.Hex(),
		Name:          p.Name,
		OwnerID:       p.OwnerID.Hex(),
		Members:       members,
		Credentials:   creds,
		Settings:      p.Settings,
		UsageCounters: p.UsageCounters,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
