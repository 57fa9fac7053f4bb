// Package quota implements the day/month request-budget admission check.
// Admission reads a project's already-loaded counters; advancement is the
// caller's responsibility (the usage tracker, after a successful forward)
// via an atomic increment on the repository.
package quota

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aiguard/proxy/pkg/model"
	"github.com/aiguard/proxy/pkg/ratelimit"
)

// Policy bounds requests per day and month.
type Policy struct {
	MaxRequestsPerDay   int
	MaxRequestsPerMonth int
}

var tierDefaults = map[ratelimit.Tier]Policy{
	ratelimit.TierFree:       {MaxRequestsPerDay: 100, MaxRequestsPerMonth: 1_000},
	ratelimit.TierPro:        {MaxRequestsPerDay: 5_000, MaxRequestsPerMonth: 50_000},
	ratelimit.TierEnterprise: {MaxRequestsPerDay: 50_000, MaxRequestsPerMonth: 1_000_000},
}

// warningThreshold is the fraction of a limit at which X-Quota-Warning is
// set.
const warningThreshold = 0.9

// PolicyFor resolves the effective policy for a project: its override, else
// the tier default inferred from member count.
func PolicyFor(project *model.Project) Policy {
	if project.Settings.QuotaOverride != nil {
		o := project.Settings.QuotaOverride
		return Policy{MaxRequestsPerDay: o.MaxRequestsPerDay, MaxRequestsPerMonth: o.MaxRequestsPerMonth}
	}
	tier := ratelimit.TierForMemberCount(len(project.Members))
	return tierDefaults[tier]
}

// Decision is the outcome of a quota admission check, carrying the values
// the pipeline turns into X-Quota-* response headers.
type Decision struct {
	Allowed    bool
	DayLimit   int
	DayUsed    int64
	MonthLimit int
	MonthUsed  int64
	Warning    bool
	// Exceeded names which bucket denied the request ("daily" or
	// "monthly"); empty when Allowed.
	Exceeded string
}

// Admit checks project's current day/month counters against its effective
// policy. Both bounds must hold for admission.
func Admit(project *model.Project) Decision {
	policy := PolicyFor(project)
	day := project.UsageCounters.CurrentDay.Requests
	month := project.UsageCounters.CurrentMonth.Requests

	allowed := day < int64(policy.MaxRequestsPerDay) && month < int64(policy.MaxRequestsPerMonth)

	exceeded := ""
	if day >= int64(policy.MaxRequestsPerDay) {
		exceeded = "daily"
	} else if month >= int64(policy.MaxRequestsPerMonth) {
		exceeded = "monthly"
	}

	warning := false
	if policy.MaxRequestsPerDay > 0 && float64(day) >= warningThreshold*float64(policy.MaxRequestsPerDay) {
		warning = true
	}
	if policy.MaxRequestsPerMonth > 0 && float64(month) >= warningThreshold*float64(policy.MaxRequestsPerMonth) {
		warning = true
	}

	return Decision{
		Allowed:    allowed,
		DayLimit:   policy.MaxRequestsPerDay,
		DayUsed:    day,
		MonthLimit: policy.MaxRequestsPerMonth,
		MonthUsed:  month,
		Warning:    warning,
		Exceeded:   exceeded,
	}
}

// Incrementer is the atomic counter-advancement contract the usage tracker
// uses after a successful forward. A single read-modify-write is forbidden
// by spec; implementations must use a single atomic operation on the store.
type Incrementer interface {
	IncrementUsageCounters(ctx context.Context, projectID primitive.ObjectID, requests, tokens int64, cost float64) error
}
