package repository

import (
	"context"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
)

// ReceiptRepository handles goods receipts and their lines.
type ReceiptRepository struct{}

// NewReceiptRepository creates a new ReceiptRepository.
func NewReceiptRepository() *ReceiptRepository {
	return &ReceiptRepository{}
}

// Create inserts a receipt with its lines.
func (r *ReceiptRepository) Create(ctx context.Context, q database.Querier, rec *Receipt) error {
	query := `
		INSERT INTO receipts
		    (company_id, number, purchase_order_id, status, received_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query,
		rec.CompanyID,
		rec.Number,
		rec.PurchaseOrderID,
		rec.Status,
		rec.ReceivedBy,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create receipt")
	}

	lineQuery := `
		INSERT INTO receipt_lines
		    (receipt_id, purchase_order_line_id, quantity, accepted_quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	for _, line := range rec.Lines {
		line.ReceiptID = rec.ID
		err := q.QueryRow(ctx, lineQuery,
			line.ReceiptID,
			line.PurchaseOrderLineID,
			line.Quantity,
			line.AcceptedQuantity,
		).Scan(&line.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create receipt line")
		}
	}
	return nil
}

// SumAcceptedQuantity totals accepted quantity for a PO line across POSTED
// receipts.
func (r *ReceiptRepository) SumAcceptedQuantity(ctx context.Context, q database.Querier, poLineID string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(l.accepted_quantity), 0)
		FROM receipt_lines l
		JOIN receipts r ON r.id = l.receipt_id
		WHERE l.purchase_order_line_id = $1
		  AND r.status = 'POSTED'
	`

	var total float64
	if err := q.QueryRow(ctx, query, poLineID).Scan(&total); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to sum accepted quantity")
	}
	return total, nil
}
