package quota

import (
	"testing"

	"github.com/aiguard/proxy/pkg/model"
)

func TestAdmitWithinLimits(t *testing.T) {
	proj := &model.Project{
		UsageCounters: model.UsageCounters{
			CurrentDay:   model.UsageBucket{Requests: 5},
			CurrentMonth: model.UsageBucket{Requests: 50},
		},
	}
	d := Admit(proj)
	if !d.Allowed {
		t.Error("expected admission within default free-tier limits")
	}
	if d.Warning {
		t.Error("did not expect a warning at low usage")
	}
}

func TestAdmitDeniesAtDayLimit(t *testing.T) {
	proj := &model.Project{
		UsageCounters: model.UsageCounters{
			CurrentDay: model.UsageBucket{Requests: 100}, // free tier day limit
		},
	}
	d := Admit(proj)
	if d.Allowed {
		t.Error("expected denial at day limit")
	}
	if d.Exceeded != "daily" {
		t.Errorf("Exceeded = %q, want %q", d.Exceeded, "daily")
	}
}

func TestAdmitDeniesAtMonthLimit(t *testing.T) {
	proj := &model.Project{
		UsageCounters: model.UsageCounters{
			CurrentMonth: model.UsageBucket{Requests: 1_000}, // free tier month limit
		},
	}
	d := Admit(proj)
	if d.Allowed {
		t.Error("expected denial at month limit")
	}
	if d.Exceeded != "monthly" {
		t.Errorf("Exceeded = %q, want %q", d.Exceeded, "monthly")
	}
}

func TestAdmitWarnsNearLimit(t *testing.T) {
	proj := &model.Project{
		UsageCounters: model.UsageCounters{
			CurrentDay: model.UsageBucket{Requests: 91}, // 91% of 100
		},
	}
	d := Admit(proj)
	if !d.Warning {
		t.Error("expected warning at 91% of day limit")
	}
	if !d.Allowed {
		t.Error("91 < 100 should still be admitted")
	}
}

func TestPolicyForUsesOverride(t *testing.T) {
	proj := &model.Project{
		Settings: model.Settings{
			QuotaOverride: &model.QuotaPolicy{MaxRequestsPerDay: 7, MaxRequestsPerMonth: 70},
		},
	}
	p := PolicyFor(proj)
	if p.MaxRequestsPerDay != 7 || p.MaxRequestsPerMonth != 70 {
		t.Errorf("PolicyFor() = %+v, want override 7/70", p)
	}
}

func TestPolicyForTierDefaultByMemberCount(t *testing.T) {
	proj := &model.Project{Members: make([]model.Member, 3)} // pro tier
	p := PolicyFor(proj)
	if p.MaxRequestsPerDay != 5_000 {
		t.Errorf("MaxRequestsPerDay = %d, want 5000 for pro tier", p.MaxRequestsPerDay)
	}
}
