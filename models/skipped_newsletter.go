package models

import "time"

// SkipReason classifies a non-error terminal outcome where no Newsletter
// was created but the delivery was still acknowledged with a 200.
type SkipReason string

const (
	SkipReasonUnknownRecipient   SkipReason = "unknown_recipient"
	SkipReasonSourceArchived     SkipReason = "source_archived"
	SkipReasonDailyLimitExceeded SkipReason = "daily_limit_exceeded"
	SkipReasonSourceLimitReached SkipReason = "source_limit_reached"
	SkipReasonDuplicate          SkipReason = "duplicate"
	SkipReasonProcessingError    SkipReason = "processing_error"
)

// SkippedNewsletter is an append-only audit record. Rows are never updated
// or deleted by the ingestion pipeline.
type SkippedNewsletter struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	SourceID    string     `json:"source_id,omitempty"`
	Title       string     `json:"title"`
	Content     string     `json:"-"`
	SkipReason  SkipReason `json:"skip_reason"`
	SkipDetails string     `json:"skip_details,omitempty"` // JSON blob with check counts, limits, etc.
	ReceivedAt  time.Time  `json:"received_at"`
}
