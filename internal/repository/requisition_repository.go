package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
)

// RequisitionRepository handles requisition headers and lines.
type RequisitionRepository struct{}

// NewRequisitionRepository creates a new RequisitionRepository.
func NewRequisitionRepository() *RequisitionRepository {
	return &RequisitionRepository{}
}

// Create inserts a requisition with its lines.
func (r *RequisitionRepository) Create(ctx context.Context, q database.Querier, req *Requisition) error {
	query := `
		INSERT INTO requisitions
		    (company_id, number, vendor_id, status, total_amount, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		req.CompanyID,
		req.Number,
		req.VendorID,
		req.Status,
		req.TotalAmount,
		req.RequestedBy,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create requisition")
	}

	lineQuery := `
		INSERT INTO requisition_lines
		    (requisition_id, line_no, description, cost_center, category,
		     quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	for _, line := range req.Lines {
		line.RequisitionID = req.ID
		err := q.QueryRow(ctx, lineQuery,
			line.RequisitionID,
			line.LineNo,
			line.Description,
			line.CostCenter,
			line.Category,
			line.Quantity,
			line.UnitPrice,
			line.LineTotal,
		).Scan(&line.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create requisition line")
		}
	}
	return nil
}

// GetWithLines retrieves a requisition and its lines.
func (r *RequisitionRepository) GetWithLines(ctx context.Context, q database.Querier, companyID, id string) (*Requisition, error) {
	query := `
		SELECT id, company_id, number, vendor_id, status, total_amount, requested_by,
		       created_at, updated_at
		FROM requisitions
		WHERE id = $1 AND company_id = $2
	`

	req := &Requisition{}
	err := q.QueryRow(ctx, query, id, companyID).Scan(
		&req.ID,
		&req.CompanyID,
		&req.Number,
		&req.VendorID,
		&req.Status,
		&req.TotalAmount,
		&req.RequestedBy,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("requisition", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get requisition")
	}

	lineQuery := `
		SELECT id, requisition_id, line_no, description, cost_center, category,
		       quantity, unit_price, line_total, budget_line_id
		FROM requisition_lines
		WHERE requisition_id = $1
		ORDER BY line_no ASC
	`

	rows, err := q.Query(ctx, lineQuery, req.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get requisition lines")
	}
	defer rows.Close()

	for rows.Next() {
		line := &RequisitionLine{}
		err := rows.Scan(
			&line.ID,
			&line.RequisitionID,
			&line.LineNo,
			&line.Description,
			&line.CostCenter,
			&line.Category,
			&line.Quantity,
			&line.UnitPrice,
			&line.LineTotal,
			&line.BudgetLineID,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan requisition line")
		}
		req.Lines = append(req.Lines, line)
	}
	return req, nil
}

// UpdateStatus sets the requisition lifecycle status.
func (r *RequisitionRepository) UpdateStatus(ctx context.Context, q database.Querier, companyID, id string, status RequisitionStatus) error {
	query := `
		UPDATE requisitions
		SET status     = $3,
		    updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, companyID, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("requisition", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update requisition status")
	}
	return nil
}

// SetLineBudget pins the budget line resolved for a requisition line at
// submission so later releases hit the same line.
func (r *RequisitionRepository) SetLineBudget(ctx context.Context, q database.Querier, lineID, budgetLineID string) error {
	query := `
		UPDATE requisition_lines
		SET budget_line_id = $2
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, lineID, budgetLineID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("requisition_line", lineID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to set requisition line budget")
	}
	return nil
}
