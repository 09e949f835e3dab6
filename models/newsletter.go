package models

import "time"

type Newsletter struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SourceID   string    `json:"source_id"`
	Title      string    `json:"title"`
	Content    string    `json:"-"`
	Excerpt    string    `json:"excerpt"`
	DedupeHash string    `json:"-"` // sha256 over source + subject + content; unique per user
	ReceivedAt time.Time `json:"received_at"`
}
