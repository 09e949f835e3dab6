package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coreybb/courier/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrDuplicateNewsletter indicates the insert hit the per-user uniqueness
// constraint on the dedupe hash: the same physical email was already
// stored. Duplicate delivery by the mail relay is expected; callers
// convert this into a skip, never an error response.
var ErrDuplicateNewsletter = errors.New("newsletter already exists for this user")

const pqUniqueViolation = "23505"

// NewsletterRepository handles database operations for newsletters.
type NewsletterRepository struct {
	db *sql.DB
}

func NewNewsletterRepository(db *sql.DB) *NewsletterRepository {
	return &NewsletterRepository{db: db}
}

// CreateWithDailyCount inserts the newsletter and increments the user's
// daily counter in a single transaction. The UNIQUE(user_id, dedupe_hash)
// constraint makes a duplicate physical email fail the insert rather than
// silently double-count; that failure surfaces as ErrDuplicateNewsletter
// and nothing is committed.
func (r *NewsletterRepository) CreateWithDailyCount(ctx context.Context, newsletter *models.Newsletter) error {
	if newsletter.ID == "" || newsletter.UserID == "" || newsletter.SourceID == "" || newsletter.DedupeHash == "" {
		return fmt.Errorf("missing required fields for creating newsletter")
	}
	if _, err := uuid.Parse(newsletter.ID); err != nil {
		return fmt.Errorf("invalid newsletter ID format: %w", err)
	}
	if _, err := uuid.Parse(newsletter.UserID); err != nil {
		return fmt.Errorf("invalid user ID format: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin newsletter transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO newsletters (id, user_id, source_id, title, content, excerpt, dedupe_hash, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.ExecContext(ctx, insert,
		newsletter.ID, newsletter.UserID, newsletter.SourceID, newsletter.Title,
		newsletter.Content, newsletter.Excerpt, newsletter.DedupeHash, newsletter.ReceivedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateNewsletter
		}
		return fmt.Errorf("failed to insert newsletter: %w", err)
	}

	increment := `
		INSERT INTO daily_counts (user_id, utc_date, newsletter_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, utc_date)
		DO UPDATE SET newsletter_count = daily_counts.newsletter_count + 1
	`
	if _, err = tx.ExecContext(ctx, increment, newsletter.UserID, utcDate(time.Now())); err != nil {
		return fmt.Errorf("failed to increment daily count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit newsletter transaction: %w", err)
	}
	return nil
}
