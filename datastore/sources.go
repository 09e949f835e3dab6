package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/courier/models"
	"github.com/google/uuid"
)

// SourceRepository handles database operations for newsletter_sources.
type SourceRepository struct {
	db *sql.DB
}

func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// FindByIdentity retrieves all sources matching the case-insensitive pair
// (fromAddress, displayName), oldest first. The stable ordering lets
// callers resolve duplicate rows deterministically.
func (r *SourceRepository) FindByIdentity(ctx context.Context, fromAddress, displayName string) ([]models.NewsletterSource, error) {
	if fromAddress == "" {
		return nil, fmt.Errorf("from address cannot be empty")
	}

	query := `
		SELECT id, from_address, display_name, COALESCE(owner_user_id::text, ''), is_archived, created_at
		FROM newsletter_sources
		WHERE LOWER(from_address) = LOWER($1) AND LOWER(display_name) = LOWER($2)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, fromAddress, displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to query newsletter sources: %w", err)
	}
	defer rows.Close()

	var sources []models.NewsletterSource
	for rows.Next() {
		var source models.NewsletterSource
		if err := rows.Scan(&source.ID, &source.FromAddress, &source.DisplayName, &source.OwnerUserID, &source.IsArchived, &source.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan newsletter source row: %w", err)
		}
		sources = append(sources, source)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating newsletter source rows: %w", err)
	}
	return sources, nil
}

// CreateSource inserts a new newsletter source.
func (r *SourceRepository) CreateSource(ctx context.Context, source *models.NewsletterSource) error {
	if _, err := uuid.Parse(source.ID); err != nil {
		return fmt.Errorf("invalid newsletter source ID format: %w", err)
	}
	if source.FromAddress == "" {
		return fmt.Errorf("newsletter source from address cannot be empty")
	}

	query := `
		INSERT INTO newsletter_sources (id, from_address, display_name, owner_user_id, is_archived, created_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		source.ID, source.FromAddress, source.DisplayName, source.OwnerUserID, source.IsArchived, source.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert newsletter source: %w", err)
	}
	return nil
}
