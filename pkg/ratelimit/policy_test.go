package ratelimit

import (
	"testing"

	"github.com/aiguard/proxy/pkg/model"
)

func TestPolicyForUsesOverride(t *testing.T) {
	proj := &model.Project{
		Settings: model.Settings{
			RateLimitOverride: &model.RateLimitPolicy{RequestsPerMinute: 42},
		},
	}
	p := PolicyFor(proj)
	if p.RequestsPerMinute != 42 {
		t.Errorf("PolicyFor() = %+v, want override 42/min", p)
	}
}

func TestPolicyForTierDefaultByMemberCount(t *testing.T) {
	proj := &model.Project{Members: make([]model.Member, 3)} // pro tier
	p := PolicyFor(proj)
	if p.RequestsPerMinute != 100 {
		t.Errorf("RequestsPerMinute = %d, want 100 for pro tier", p.RequestsPerMinute)
	}
}

func TestPolicyForNilProjectFallsBackToFreeTier(t *testing.T) {
	p := PolicyFor(nil)
	if p.RequestsPerMinute != 10 {
		t.Errorf("RequestsPerMinute = %d, want 10 for nil project (free tier)", p.RequestsPerMinute)
	}
}
