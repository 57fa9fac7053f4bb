// Package ratelimit implements per-principal rate limiting: one Backend
// contract, a Redis-backed shared implementation (sliding one-minute
// window) preferred in multi-process deployments, and an in-process local
// implementation (fixed one-minute window) used when no shared store is
// configured.
package ratelimit

import (
	"context"
	"time"

	"github.com/aiguard/proxy/pkg/model"
)

// Tier is a rate-limit policy tier inferred from project member count.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Policy is a requests-per-minute ceiling.
type Policy struct {
	RequestsPerMinute int
}

var tierDefaults = map[Tier]Policy{
	TierFree:       {RequestsPerMinute: 10},
	TierPro:        {RequestsPerMinute: 100},
	TierEnterprise: {RequestsPerMinute: 1000},
}

// TierForMemberCount infers a project's rate-limit tier from its member
// count: <=1 free, 2..5 pro, >5 enterprise.
func TierForMemberCount(memberCount int) Tier {
	switch {
	case memberCount <= 1:
		return TierFree
	case memberCount <= 5:
		return TierPro
	default:
		return TierEnterprise
	}
}

// DefaultPolicy returns the tier default policy.
func DefaultPolicy(t Tier) Policy {
	if p, ok := tierDefaults[t]; ok {
		return p
	}
	return tierDefaults[TierFree]
}

// PolicyFor resolves the effective rate-limit policy for a project: its
// override, else the tier default inferred from member count. A nil
// project (no project context resolved for the caller) gets the free tier
// default.
func PolicyFor(project *model.Project) Policy {
	if project == nil {
		return DefaultPolicy(TierFree)
	}
	if o := project.Settings.RateLimitOverride; o != nil && o.RequestsPerMinute > 0 {
		return Policy{RequestsPerMinute: o.RequestsPerMinute}
	}
	return DefaultPolicy(TierForMemberCount(len(project.Members)))
}

// Decision is the outcome of a rate-limit check, carrying the values the
// pipeline turns into X-RateLimit-* response headers.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Backend is the contract both the shared and local implementations
// satisfy.
type Backend interface {
	// Allow records one attempt under key and reports whether it is within
	// limit for the current one-minute window. The shared backend counts
	// attempts in the sliding minute before now. The local backend counts
	// them in a fixed minute that starts at a key's first attempt and
	// restarts after it lapses; it does not slide, so up to twice limit
	// attempts can be allowed across a restart.
	Allow(ctx context.Context, key string, limit int) (Decision, error)
	// Name identifies the backend for metrics labelling.
	Name() string
}

const window = time.Minute
