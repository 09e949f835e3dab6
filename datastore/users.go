package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/coreybb/courier/models"
	"github.com/google/uuid"
)

// UserRepository handles database operations for users. The ingestion
// pipeline only ever resolves users; it never creates them.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUserByID retrieves a user by their ID. Returns nil, nil if no such
// user exists.
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user ID format: %w", err)
	}

	query := `
		SELECT id, created_at, email, email_alias, COALESCE(plan_id::text, ''), source_count
		FROM users
		WHERE id = $1
	`
	var user models.User
	row := r.db.QueryRowContext(ctx, query, userID)
	err := row.Scan(&user.ID, &user.CreatedAt, &user.Email, &user.EmailAlias, &user.PlanID, &user.SourceCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return &user, nil
}

// GetUserByEmailAlias retrieves the user owning the given ingestion alias.
// Aliases are matched case-insensitively. Returns nil, nil when no user
// owns the alias; an unmatched alias is not a database error.
func (r *UserRepository) GetUserByEmailAlias(ctx context.Context, alias string) (*models.User, error) {
	if alias == "" {
		return nil, fmt.Errorf("email alias cannot be empty")
	}

	query := `
		SELECT id, created_at, email, email_alias, COALESCE(plan_id::text, ''), source_count
		FROM users
		WHERE LOWER(email_alias) = $1
	`
	var user models.User
	row := r.db.QueryRowContext(ctx, query, strings.ToLower(alias))
	err := row.Scan(&user.ID, &user.CreatedAt, &user.Email, &user.EmailAlias, &user.PlanID, &user.SourceCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email alias: %w", err)
	}
	return &user, nil
}
