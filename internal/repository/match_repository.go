package repository

import (
	"context"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
)

// MatchRepository persists invoice match check results.
type MatchRepository struct{}

// NewMatchRepository creates a new MatchRepository.
func NewMatchRepository() *MatchRepository {
	return &MatchRepository{}
}

// InsertResult appends one executed check's outcome.
func (r *MatchRepository) InsertResult(ctx context.Context, q database.Querier, res *MatchResult) error {
	query := `
		INSERT INTO invoice_match_results
		    (invoice_id, check_type, passed, tolerance_percent, variance_percent, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query,
		res.InvoiceID,
		res.CheckType,
		res.Passed,
		res.TolerancePercent,
		res.VariancePercent,
		res.Detail,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert match result")
	}
	return nil
}

// ListByInvoice returns the persisted check results for an invoice, oldest
// first.
func (r *MatchRepository) ListByInvoice(ctx context.Context, q database.Querier, invoiceID string) ([]*MatchResult, error) {
	query := `
		SELECT id, invoice_id, check_type, passed, tolerance_percent, variance_percent,
		       detail, created_at
		FROM invoice_match_results
		WHERE invoice_id = $1
		ORDER BY created_at ASC
	`

	rows, err := q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list match results")
	}
	defer rows.Close()

	var results []*MatchResult
	for rows.Next() {
		res := &MatchResult{}
		err := rows.Scan(
			&res.ID,
			&res.InvoiceID,
			&res.CheckType,
			&res.Passed,
			&res.TolerancePercent,
			&res.VariancePercent,
			&res.Detail,
			&res.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan match result")
		}
		results = append(results, res)
	}
	return results, nil
}
