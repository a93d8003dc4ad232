package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
)

// IdentityRepository resolves approval task assignees. Role membership may
// change while a lookup is in flight; the read simply picks whichever
// qualifying user it observes.
type IdentityRepository struct{}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository() *IdentityRepository {
	return &IdentityRepository{}
}

// FindActiveUserWithRole returns one active user holding the role, or nil
// when no one does. A task with no assignee stays pending and unassigned.
func (r *IdentityRepository) FindActiveUserWithRole(ctx context.Context, q database.Querier, companyID, roleCode string) (*string, error) {
	query := `
		SELECT u.id
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		WHERE u.company_id = $1
		  AND u.is_active = TRUE
		  AND ur.role_code = $2
		ORDER BY u.created_at ASC
		LIMIT 1
	`

	var userID string
	err := q.QueryRow(ctx, query, companyID, roleCode).Scan(&userID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve role assignee")
	}
	return &userID, nil
}
