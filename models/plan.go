package models

// PlanLimits holds the per-user resource ceilings resolved from a
// subscription plan. MaxSourcesPerUser and MaxNewslettersPerDay are
// independent resources: the daily newsletter check must never read
// MaxSourcesPerUser, and vice versa.
type PlanLimits struct {
	MaxSourcesPerUser    int `json:"max_sources_per_user"`
	MaxNewslettersPerDay int `json:"max_newsletters_per_day"`
}

// UnlimitedSentinel is the value an "unlimited" plan stores for a limit.
const UnlimitedSentinel = 1_000_000
