package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
)

// PurchaseOrderRepository handles PO headers and lines.
type PurchaseOrderRepository struct{}

// NewPurchaseOrderRepository creates a new PurchaseOrderRepository.
func NewPurchaseOrderRepository() *PurchaseOrderRepository {
	return &PurchaseOrderRepository{}
}

// Create inserts a PO with its lines.
func (r *PurchaseOrderRepository) Create(ctx context.Context, q database.Querier, po *PurchaseOrder) error {
	query := `
		INSERT INTO purchase_orders
		    (company_id, number, vendor_id, requisition_id, status, match_type, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		po.CompanyID,
		po.Number,
		po.VendorID,
		po.RequisitionID,
		po.Status,
		po.MatchType,
		po.TotalAmount,
	).Scan(&po.ID, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create purchase order")
	}

	lineQuery := `
		INSERT INTO purchase_order_lines
		    (purchase_order_id, line_no, requisition_line_id, description,
		     cost_center, category, quantity, unit_price, line_total, track_inventory)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	for _, line := range po.Lines {
		line.PurchaseOrderID = po.ID
		err := q.QueryRow(ctx, lineQuery,
			line.PurchaseOrderID,
			line.LineNo,
			line.RequisitionLineID,
			line.Description,
			line.CostCenter,
			line.Category,
			line.Quantity,
			line.UnitPrice,
			line.LineTotal,
			line.TrackInventory,
		).Scan(&line.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create purchase order line")
		}
	}
	return nil
}

// GetWithLines retrieves a PO and its lines.
func (r *PurchaseOrderRepository) GetWithLines(ctx context.Context, q database.Querier, companyID, id string) (*PurchaseOrder, error) {
	query := `
		SELECT id, company_id, number, vendor_id, requisition_id, status, match_type,
		       total_amount, created_at, updated_at
		FROM purchase_orders
		WHERE id = $1 AND company_id = $2
	`

	po := &PurchaseOrder{}
	err := q.QueryRow(ctx, query, id, companyID).Scan(
		&po.ID,
		&po.CompanyID,
		&po.Number,
		&po.VendorID,
		&po.RequisitionID,
		&po.Status,
		&po.MatchType,
		&po.TotalAmount,
		&po.CreatedAt,
		&po.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("purchase_order", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get purchase order")
	}

	lineQuery := `
		SELECT id, purchase_order_id, line_no, requisition_line_id, description,
		       cost_center, category, quantity, unit_price, line_total,
		       received_quantity, track_inventory
		FROM purchase_order_lines
		WHERE purchase_order_id = $1
		ORDER BY line_no ASC
	`

	rows, err := q.Query(ctx, lineQuery, po.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get purchase order lines")
	}
	defer rows.Close()

	for rows.Next() {
		line := &PurchaseOrderLine{}
		err := rows.Scan(
			&line.ID,
			&line.PurchaseOrderID,
			&line.LineNo,
			&line.RequisitionLineID,
			&line.Description,
			&line.CostCenter,
			&line.Category,
			&line.Quantity,
			&line.UnitPrice,
			&line.LineTotal,
			&line.ReceivedQuantity,
			&line.TrackInventory,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan purchase order line")
		}
		po.Lines = append(po.Lines, line)
	}
	return po, nil
}

// UpdateStatus sets the PO lifecycle status.
func (r *PurchaseOrderRepository) UpdateStatus(ctx context.Context, q database.Querier, companyID, id string, status PurchaseOrderStatus) error {
	query := `
		UPDATE purchase_orders
		SET status     = $3,
		    updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, companyID, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("purchase_order", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update purchase order status")
	}
	return nil
}

// AddReceivedQuantity increments a PO line's received quantity as a relative
// adjustment.
func (r *PurchaseOrderRepository) AddReceivedQuantity(ctx context.Context, q database.Querier, lineID string, qty float64) error {
	query := `
		UPDATE purchase_order_lines
		SET received_quantity = received_quantity + $2
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, lineID, qty).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("purchase_order_line", lineID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to add received quantity")
	}
	return nil
}
