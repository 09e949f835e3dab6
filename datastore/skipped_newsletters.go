package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/courier/models"
	"github.com/google/uuid"
)

// SkippedNewsletterRepository handles the append-only skip audit table.
// Rows are inserted for every classified non-error outcome that did not
// produce a newsletter, and are never updated or deleted here.
type SkippedNewsletterRepository struct {
	db *sql.DB
}

func NewSkippedNewsletterRepository(db *sql.DB) *SkippedNewsletterRepository {
	return &SkippedNewsletterRepository{db: db}
}

// CreateSkipped inserts a skip audit record.
func (r *SkippedNewsletterRepository) CreateSkipped(ctx context.Context, skipped *models.SkippedNewsletter) error {
	if _, err := uuid.Parse(skipped.ID); err != nil {
		return fmt.Errorf("invalid skipped newsletter ID format: %w", err)
	}
	if _, err := uuid.Parse(skipped.UserID); err != nil {
		return fmt.Errorf("invalid user ID format: %w", err)
	}
	if skipped.SkipReason == "" {
		return fmt.Errorf("skip reason cannot be empty")
	}

	details := skipped.SkipDetails
	if details == "" {
		details = "{}"
	}

	query := `
		INSERT INTO skipped_newsletters (id, user_id, source_id, title, content, skip_reason, skip_details, received_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7::jsonb, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		skipped.ID, skipped.UserID, skipped.SourceID, skipped.Title,
		skipped.Content, string(skipped.SkipReason), details, skipped.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert skipped newsletter: %w", err)
	}
	return nil
}
