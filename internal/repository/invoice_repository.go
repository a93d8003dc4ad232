package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
)

// InvoiceRepository handles invoice headers and lines.
type InvoiceRepository struct{}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{}
}

// Create inserts an invoice with its lines.
func (r *InvoiceRepository) Create(ctx context.Context, q database.Querier, inv *Invoice) error {
	query := `
		INSERT INTO invoices
		    (company_id, number, vendor_id, purchase_order_id, status, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		inv.CompanyID,
		inv.Number,
		inv.VendorID,
		inv.PurchaseOrderID,
		inv.Status,
		inv.TotalAmount,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create invoice")
	}

	lineQuery := `
		INSERT INTO invoice_lines
		    (invoice_id, line_no, purchase_order_line_id, description,
		     cost_center, category, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	for _, line := range inv.Lines {
		line.InvoiceID = inv.ID
		err := q.QueryRow(ctx, lineQuery,
			line.InvoiceID,
			line.LineNo,
			line.PurchaseOrderLineID,
			line.Description,
			line.CostCenter,
			line.Category,
			line.Quantity,
			line.UnitPrice,
			line.LineTotal,
		).Scan(&line.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create invoice line")
		}
	}
	return nil
}

// GetWithLines retrieves an invoice and its lines.
func (r *InvoiceRepository) GetWithLines(ctx context.Context, q database.Querier, companyID, id string) (*Invoice, error) {
	query := `
		SELECT id, company_id, number, vendor_id, purchase_order_id, status,
		       total_amount, created_at, updated_at
		FROM invoices
		WHERE id = $1 AND company_id = $2
	`

	inv := &Invoice{}
	err := q.QueryRow(ctx, query, id, companyID).Scan(
		&inv.ID,
		&inv.CompanyID,
		&inv.Number,
		&inv.VendorID,
		&inv.PurchaseOrderID,
		&inv.Status,
		&inv.TotalAmount,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("invoice", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get invoice")
	}

	lineQuery := `
		SELECT id, invoice_id, line_no, purchase_order_line_id, description,
		       cost_center, category, quantity, unit_price, line_total
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY line_no ASC
	`

	rows, err := q.Query(ctx, lineQuery, inv.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get invoice lines")
	}
	defer rows.Close()

	for rows.Next() {
		line := &InvoiceLine{}
		err := rows.Scan(
			&line.ID,
			&line.InvoiceID,
			&line.LineNo,
			&line.PurchaseOrderLineID,
			&line.Description,
			&line.CostCenter,
			&line.Category,
			&line.Quantity,
			&line.UnitPrice,
			&line.LineTotal,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan invoice line")
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, nil
}

// HasDuplicate reports whether another invoice (excluding excludeID) uses the
// same vendor and invoice number within the company.
func (r *InvoiceRepository) HasDuplicate(ctx context.Context, q database.Querier, companyID, vendorID, number, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM invoices
			WHERE company_id = $1
			  AND vendor_id = $2
			  AND number = $3
			  AND id <> $4
		)
	`

	var exists bool
	if err := q.QueryRow(ctx, query, companyID, vendorID, number, excludeID).Scan(&exists); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check duplicate invoice")
	}
	return exists, nil
}

// UpdateStatus sets the invoice lifecycle status.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, q database.Querier, companyID, id string, status InvoiceStatus) error {
	query := `
		UPDATE invoices
		SET status     = $3,
		    updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, companyID, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("invoice", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update invoice status")
	}
	return nil
}
