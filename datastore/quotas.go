package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/coreybb/courier/models"
	"github.com/google/uuid"
)

// QuotaRepository implements the atomic per-user resource checks: the
// daily newsletter quota and the source-count quota. Both checks read
// limits from the user's plan, falling back to the configured free-tier
// limits when the user has no plan row.
//
// The daily check and the later increment (done inside the newsletter
// insert transaction) are separate atomic operations. Two concurrent
// deliveries for the same user can both pass the check before either
// increments; the limit is a soft bound and this race is accepted.
type QuotaRepository struct {
	db         *sql.DB
	freeLimits models.PlanLimits
}

func NewQuotaRepository(db *sql.DB, freeLimits models.PlanLimits) *QuotaRepository {
	return &QuotaRepository{db: db, freeLimits: freeLimits}
}

// utcDate formats a moment as the UTC calendar day used to key
// daily_counts rows. Counters always reset at the UTC day boundary,
// regardless of user locale.
func utcDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ensureDailyCount guarantees a daily_counts row exists for the user today
// and returns its current value. The upsert makes the create-and-read a
// single atomic statement, so the count is never observed as NULL: a
// brand-new user reads 0.
func (r *QuotaRepository) ensureDailyCount(ctx context.Context, userID string, day string) (int, error) {
	query := `
		INSERT INTO daily_counts (user_id, utc_date, newsletter_count)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id, utc_date)
		DO UPDATE SET newsletter_count = daily_counts.newsletter_count
		RETURNING newsletter_count
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, day).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to ensure daily count row: %w", err)
	}
	return count, nil
}

// PlanLimits resolves the user's plan limits, defaulting to the free tier
// when no plan row exists for the user.
func (r *QuotaRepository) PlanLimits(ctx context.Context, userID string) (models.PlanLimits, error) {
	query := `
		SELECT p.max_sources_per_user, p.max_newsletters_per_day
		FROM users u
		JOIN plans p ON p.id = u.plan_id
		WHERE u.id = $1
	`
	var limits models.PlanLimits
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&limits.MaxSourcesPerUser, &limits.MaxNewslettersPerDay)
	if err != nil {
		if err == sql.ErrNoRows {
			return r.freeLimits, nil
		}
		return models.PlanLimits{}, fmt.Errorf("failed to resolve plan limits: %w", err)
	}
	return limits, nil
}

// CanReceiveNewsletter checks the user's daily newsletter quota for today
// (UTC). The comparison reads MaxNewslettersPerDay and only
// MaxNewslettersPerDay; the source limit is a separate resource.
func (r *QuotaRepository) CanReceiveNewsletter(ctx context.Context, userID string) (models.QuotaDecision, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("invalid user ID format: %w", err)
	}

	count, err := r.ensureDailyCount(ctx, userID, utcDate(time.Now()))
	if err != nil {
		return models.QuotaDecision{}, err
	}

	limits, err := r.PlanLimits(ctx, userID)
	if err != nil {
		return models.QuotaDecision{}, err
	}

	decision := models.QuotaDecision{
		Allowed:      count < limits.MaxNewslettersPerDay,
		CurrentCount: count,
		MaxAllowed:   limits.MaxNewslettersPerDay,
	}
	if !decision.Allowed {
		decision.Reason = string(models.SkipReasonDailyLimitExceeded)
	}
	return decision, nil
}

// CanAddSource checks whether the user may register another newsletter
// source, against MaxSourcesPerUser.
func (r *QuotaRepository) CanAddSource(ctx context.Context, userID string) (models.QuotaDecision, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("invalid user ID format: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT source_count FROM users WHERE id = $1`, userID).Scan(&count); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to read source count for user %s: %w", userID, err)
	}

	limits, err := r.PlanLimits(ctx, userID)
	if err != nil {
		return models.QuotaDecision{}, err
	}

	decision := models.QuotaDecision{
		Allowed:      count < limits.MaxSourcesPerUser,
		CurrentCount: count,
		MaxAllowed:   limits.MaxSourcesPerUser,
	}
	if !decision.Allowed {
		decision.Reason = string(models.SkipReasonSourceLimitReached)
	}
	return decision, nil
}

// IncrementSourceCount bumps the user's source counter after a successful
// source creation. Callers treat a failure here as log-only: source
// creation and counter bookkeeping are only eventually consistent.
func (r *QuotaRepository) IncrementSourceCount(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET source_count = source_count + 1 WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to increment source count for user %s: %w", userID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		log.Printf("WARN (QuotaRepository): Source count increment matched no user row for %s", userID)
	}
	return nil
}
