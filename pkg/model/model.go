// Package model holds the persisted data types shared across the proxy:
// users, personal access tokens, projects (with embedded credentials and
// usage counters), usage records, and audit logs.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserStatus is the lifecycle state of a User.
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
	UserDeleted   UserStatus = "deleted"
)

// User is a proxy account, created either on first successful identity
// verification or by admin provisioning.
type User struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ExternalID        string              `bson:"externalId,omitempty" json:"externalId,omitempty"`
	Email             string              `bson:"email" json:"email"`
	DisplayName       string              `bson:"displayName,omitempty" json:"displayName,omitempty"`
	Status            UserStatus          `bson:"status" json:"status"`
	DefaultProjectID  *primitive.ObjectID `bson:"defaultProjectId,omitempty" json:"defaultProjectId,omitempty"`
	CreatedAt         time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time           `bson:"updatedAt" json:"updatedAt"`
	LastLoginAt       *time.Time          `bson:"lastLoginAt,omitempty" json:"lastLoginAt,omitempty"`
}

// IsActive reports whether the user can authenticate.
func (u *User) IsActive() bool { return u.Status == UserActive }

// Scope is a PAT permission grant.
type Scope string

const (
	ScopeAPIRead       Scope = "api:read"
	ScopeAPIWrite      Scope = "api:write"
	ScopeProjectsRead  Scope = "projects:read"
	ScopeProjectsWrite Scope = "projects:write"
	ScopeUsersRead     Scope = "users:read"
	ScopeUsersWrite    Scope = "users:write"
	ScopeAdmin         Scope = "admin"
)

// PersonalAccessToken is a machine-usable bearer credential minted by the
// proxy. The raw secret is shown once at creation and never stored; only
// its slow-hash is persisted.
type PersonalAccessToken struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PublicID   string              `bson:"publicId" json:"publicId"` // pat_<16 hex>, used for index lookup
	SecretHash string              `bson:"secretHash" json:"-"`
	UserID     primitive.ObjectID  `bson:"userId" json:"userId"`
	ProjectID  *primitive.ObjectID `bson:"projectId,omitempty" json:"projectId,omitempty"`
	Name       string              `bson:"name" json:"name"`
	Scopes     []Scope             `bson:"scopes" json:"scopes"`
	ExpiresAt  *time.Time          `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	Revoked    bool                `bson:"revoked" json:"revoked"`
	LastUsedAt *time.Time          `bson:"lastUsedAt,omitempty" json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Usable reports whether the token may be used to authenticate, independent
// of the owning user's status (callers must check that separately since it
// requires a User lookup).
func (t *PersonalAccessToken) Usable(now time.Time) bool {
	if t.Revoked {
		return false
	}
	if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
		return false
	}
	return true
}

// HasScope reports whether the token carries the given scope.
func (t *PersonalAccessToken) HasScope(s Scope) bool {
	for _, have := range t.Scopes {
		if have == s {
			return true
		}
	}
	return false
}

// MemberRole is a project membership role.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// Member is a user's membership record within a Project.
type Member struct {
	UserID  primitive.ObjectID `bson:"userId" json:"userId"`
	Role    MemberRole         `bson:"role" json:"role"`
	AddedAt time.Time          `bson:"addedAt" json:"addedAt"`
}

// Provider is one of the proxy's closed set of upstream LLM providers.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Credential is an embedded, encrypted provider credential. Ciphertext is
// the vault-sealed envelope; at most one credential per provider is
// "active" at forward time. KeyID is the per-credential stable handle
// minted by vault.Encrypt, distinct from MasterKeyID,
// which records which vault master key sealed the envelope so a later
// Decrypt call can pick the right historical key during rotation.
type Credential struct {
	Provider    Provider           `bson:"provider" json:"provider"`
	Ciphertext  string             `bson:"ciphertext" json:"-"`
	KeyID       string             `bson:"keyId" json:"keyId"`
	MasterKeyID string             `bson:"masterKeyId" json:"-"`
	Active      bool               `bson:"active" json:"active"`
	AddedBy     primitive.ObjectID `bson:"addedBy" json:"addedBy"`
	AddedAt     time.Time          `bson:"addedAt" json:"addedAt"`
}

// Settings holds per-project policy overrides.
type Settings struct {
	RateLimitOverride *RateLimitPolicy `bson:"rateLimitOverride,omitempty" json:"rateLimitOverride,omitempty"`
	QuotaOverride     *QuotaPolicy     `bson:"quotaOverride,omitempty" json:"quotaOverride,omitempty"`
	AllowedProviders  []Provider       `bson:"allowedProviders,omitempty" json:"allowedProviders,omitempty"`
	WebhookURL        string           `bson:"webhookUrl,omitempty" json:"webhookUrl,omitempty"`
}

// RateLimitPolicy bounds requests per one-minute window.
type RateLimitPolicy struct {
	RequestsPerMinute int `bson:"requestsPerMinute" json:"requestsPerMinute"`
	BurstSize         int `bson:"burstSize" json:"burstSize"`
}

// QuotaPolicy bounds requests per day/month.
type QuotaPolicy struct {
	MaxRequestsPerDay   int `bson:"maxRequestsPerDay" json:"maxRequestsPerDay"`
	MaxRequestsPerMonth int `bson:"maxRequestsPerMonth" json:"maxRequestsPerMonth"`
}

// UsageBucket is one of a project's three accounting windows.
type UsageBucket struct {
	Requests int64   `bson:"requests" json:"requests"`
	Tokens   int64   `bson:"tokens" json:"tokens"`
	Cost     float64 `bson:"cost" json:"cost"`
}

// UsageCounters holds a project's total/month/day accounting buckets.
type UsageCounters struct {
	Total        UsageBucket `bson:"total" json:"total"`
	CurrentMonth UsageBucket `bson:"currentMonth" json:"currentMonth"`
	CurrentDay   UsageBucket `bson:"currentDay" json:"currentDay"`
	LastUpdated  time.Time   `bson:"lastUpdated" json:"lastUpdated"`
}

// Project groups members, credentials, policy, and usage accounting under
// a single owner.
type Project struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	OwnerID       primitive.ObjectID `bson:"ownerId" json:"ownerId"`
	Members       []Member           `bson:"members" json:"members"`
	Credentials   []Credential       `bson:"credentials" json:"credentials"`
	Settings      Settings           `bson:"settings" json:"settings"`
	UsageCounters UsageCounters      `bson:"usageCounters" json:"usageCounters"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ActiveCredential returns the first active credential for provider, in
// insertion order, or false if none is active.
func (p *Project) ActiveCredential(provider Provider) (Credential, bool) {
	for _, c := range p.Credentials {
		if c.Provider == provider && c.Active {
			return c, true
		}
	}
	return Credential{}, false
}

// AllowsProvider reports whether provider is permitted by the project's
// allowlist. An empty allowlist permits every provider.
func (p *Project) AllowsProvider(provider Provider) bool {
	if len(p.Settings.AllowedProviders) == 0 {
		return true
	}
	for _, allowed := range p.Settings.AllowedProviders {
		if allowed == provider {
			return true
		}
	}
	return false
}

// UsageRecord is one proxied request's accounting entry. TTL-indexed for
// 90-day retention.
type UsageRecord struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID `bson:"userId" json:"userId"`
	ProjectID        primitive.ObjectID `bson:"projectId" json:"projectId"`
	Provider         Provider           `bson:"provider" json:"provider"`
	Path             string             `bson:"path" json:"path"`
	Method           string             `bson:"method" json:"method"`
	Model            string             `bson:"model,omitempty" json:"model,omitempty"`
	PromptTokens     *int64             `bson:"promptTokens,omitempty" json:"promptTokens,omitempty"`
	CompletionTokens *int64             `bson:"completionTokens,omitempty" json:"completionTokens,omitempty"`
	TotalTokens      *int64             `bson:"totalTokens,omitempty" json:"totalTokens,omitempty"`
	Cost             *float64           `bson:"cost,omitempty" json:"cost,omitempty"`
	ResponseTimeMS   int64              `bson:"responseTimeMs" json:"responseTimeMs"`
	StatusCode       int                `bson:"statusCode" json:"statusCode"`
	Timestamp        time.Time          `bson:"timestamp" json:"timestamp"`
	Metadata         map[string]any     `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// AuditStatus is the outcome of an audited action.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
)

// AuditLog is one append-only administrative or proxied-request event.
// TTL-indexed for 90-day retention.
type AuditLog struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID       *primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"`
	Action       string              `bson:"action" json:"action"`
	ResourceType string              `bson:"resourceType,omitempty" json:"resourceType,omitempty"`
	ResourceID   string              `bson:"resourceId,omitempty" json:"resourceId,omitempty"`
	Details      map[string]any      `bson:"details,omitempty" json:"details,omitempty"`
	ClientIP     string              `bson:"clientIp,omitempty" json:"clientIp,omitempty"`
	UserAgent    string              `bson:"userAgent,omitempty" json:"userAgent,omitempty"`
	Timestamp    time.Time           `bson:"timestamp" json:"timestamp"`
	Status       AuditStatus         `bson:"status" json:"status"`
	ErrorMessage string              `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
}
