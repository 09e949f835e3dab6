package ingestion

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/coreybb/courier/models"
	"github.com/google/uuid"
)

// SourceStore is the persistence capability the source resolver needs.
type SourceStore interface {
	FindByIdentity(ctx context.Context, fromAddress, displayName string) ([]models.NewsletterSource, error)
	CreateSource(ctx context.Context, source *models.NewsletterSource) error
}

// QuotaStore holds the atomic per-user resource checks.
type QuotaStore interface {
	CanReceiveNewsletter(ctx context.Context, userID string) (models.QuotaDecision, error)
	CanAddSource(ctx context.Context, userID string) (models.QuotaDecision, error)
	IncrementSourceCount(ctx context.Context, userID string) error
}

// SourceResolver maps a sender identity to a NewsletterSource, creating
// one lazily on first sighting.
type SourceResolver struct {
	sources SourceStore
	quotas  QuotaStore
}

func NewSourceResolver(sources SourceStore, quotas QuotaStore) *SourceResolver {
	return &SourceResolver{sources: sources, quotas: quotas}
}

// Resolve finds the source matching the sender's case-insensitive
// (address, display name) pair. Multiple matching rows are a data-quality
// anomaly: the oldest row wins, deterministically, and the anomaly is
// logged rather than surfaced. When no source exists, creation is gated by
// the user's source-count quota; a denial is a SourceLimitError, not a
// skip, because it blocks an explicit user action.
func (sr *SourceResolver) Resolve(ctx context.Context, userID string, sender SenderIdentity) (*models.NewsletterSource, error) {
	matches, err := sr.sources.FindByIdentity(ctx, sender.Address, sender.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to search newsletter sources: %w", err)
	}

	if len(matches) > 0 {
		if len(matches) > 1 {
			log.Printf("WARN (SourceResolver): %d sources match identity ('%s', '%s'); using oldest %s",
				len(matches), sender.Address, sender.DisplayName, matches[0].ID)
		}
		return &matches[0], nil
	}

	decision, err := sr.quotas.CanAddSource(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check source quota: %w", err)
	}
	if !decision.Allowed {
		return nil, &SourceLimitError{CurrentCount: decision.CurrentCount, MaxAllowed: decision.MaxAllowed}
	}

	source := &models.NewsletterSource{
		ID:          uuid.NewString(),
		FromAddress: strings.ToLower(sender.Address),
		DisplayName: sender.DisplayName,
		OwnerUserID: userID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := sr.sources.CreateSource(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to create newsletter source: %w", err)
	}

	// Counter bookkeeping is only eventually consistent with source rows;
	// a failed increment does not roll back the creation.
	if err := sr.quotas.IncrementSourceCount(ctx, userID); err != nil {
		log.Printf("WARN (SourceResolver): Created source %s but failed to increment source count for user %s: %v",
			source.ID, userID, err)
	}

	log.Printf("INFO (SourceResolver): Created source %s for sender '%s' (user %s)", source.ID, sender.Address, userID)
	return source, nil
}
