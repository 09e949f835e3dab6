package models

// DailyCount tracks how many newsletters a user has received on a single
// UTC calendar day. One row per (UserID, UTCDate), created with a count of
// zero on first use. Rows are only touched by the atomic check and
// increment operations in the datastore; never read-modify-written.
type DailyCount struct {
	UserID          string `json:"user_id"`
	UTCDate         string `json:"utc_date"` // YYYY-MM-DD, always UTC
	NewsletterCount int    `json:"newsletter_count"`
}

// QuotaDecision is the result of an atomic quota check.
type QuotaDecision struct {
	Allowed      bool   `json:"allowed"`
	CurrentCount int    `json:"current_count"`
	MaxAllowed   int    `json:"max_allowed"`
	Reason       string `json:"reason,omitempty"`
}
