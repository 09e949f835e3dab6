package models

import "time"

// NewsletterSource is the sending identity (address + display name) from
// which newsletters originate. Identity is the case-insensitive pair
// (FromAddress, DisplayName); sources are created lazily on first sighting.
type NewsletterSource struct {
	ID          string    `json:"id"`
	FromAddress string    `json:"from_address"`
	DisplayName string    `json:"display_name"`
	OwnerUserID string    `json:"owner_user_id,omitempty"` // empty for system-created sources
	IsArchived  bool      `json:"is_archived"`
	CreatedAt   time.Time `json:"created_at"`
}
