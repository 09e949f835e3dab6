package models

import "time"

type User struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Email       string    `json:"email"`
	EmailAlias  string    `json:"email_alias"`
	PlanID      string    `json:"plan_id,omitempty"`
	SourceCount int       `json:"source_count"`
}
