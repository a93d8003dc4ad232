package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
)

// PaymentRepository handles payment batches, payments and allocations.
type PaymentRepository struct{}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

// CreateBatch inserts a batch with its payments and allocations.
func (r *PaymentRepository) CreateBatch(ctx context.Context, q database.Querier, batch *PaymentBatch) error {
	query := `
		INSERT INTO payment_batches
		    (company_id, number, status, total_amount, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		batch.CompanyID,
		batch.Number,
		batch.Status,
		batch.TotalAmount,
		batch.CreatedBy,
	).Scan(&batch.ID, &batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create payment batch")
	}

	paymentQuery := `
		INSERT INTO payments
		    (batch_id, vendor_id, amount, reference, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	allocationQuery := `
		INSERT INTO payment_allocations
		    (payment_id, invoice_id, amount)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	for _, payment := range batch.Payments {
		payment.BatchID = batch.ID
		err := q.QueryRow(ctx, paymentQuery,
			payment.BatchID,
			payment.VendorID,
			payment.Amount,
			payment.Reference,
			payment.Status,
		).Scan(&payment.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create payment")
		}

		for _, alloc := range payment.Allocations {
			alloc.PaymentID = payment.ID
			err := q.QueryRow(ctx, allocationQuery,
				alloc.PaymentID,
				alloc.InvoiceID,
				alloc.Amount,
			).Scan(&alloc.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create payment allocation")
			}
		}
	}
	return nil
}

// GetBatch retrieves a batch with its payments and allocations.
func (r *PaymentRepository) GetBatch(ctx context.Context, q database.Querier, companyID, id string) (*PaymentBatch, error) {
	query := `
		SELECT id, company_id, number, status, total_amount, created_by,
		       created_at, updated_at
		FROM payment_batches
		WHERE id = $1 AND company_id = $2
	`

	batch := &PaymentBatch{}
	err := q.QueryRow(ctx, query, id, companyID).Scan(
		&batch.ID,
		&batch.CompanyID,
		&batch.Number,
		&batch.Status,
		&batch.TotalAmount,
		&batch.CreatedBy,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("payment_batch", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get payment batch")
	}

	paymentQuery := `
		SELECT id, batch_id, vendor_id, amount, reference, status
		FROM payments
		WHERE batch_id = $1
		ORDER BY vendor_id ASC
	`

	rows, err := q.Query(ctx, paymentQuery, batch.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get payments")
	}
	defer rows.Close()

	for rows.Next() {
		payment := &Payment{}
		err := rows.Scan(
			&payment.ID,
			&payment.BatchID,
			&payment.VendorID,
			&payment.Amount,
			&payment.Reference,
			&payment.Status,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan payment")
		}
		batch.Payments = append(batch.Payments, payment)
	}
	rows.Close()

	allocationQuery := `
		SELECT id, payment_id, invoice_id, amount
		FROM payment_allocations
		WHERE payment_id = $1
	`

	for _, payment := range batch.Payments {
		allocRows, err := q.Query(ctx, allocationQuery, payment.ID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get payment allocations")
		}
		for allocRows.Next() {
			alloc := &PaymentAllocation{}
			if err := allocRows.Scan(&alloc.ID, &alloc.PaymentID, &alloc.InvoiceID, &alloc.Amount); err != nil {
				allocRows.Close()
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan payment allocation")
			}
			payment.Allocations = append(payment.Allocations, alloc)
		}
		allocRows.Close()
	}
	return batch, nil
}

// UpdateBatchStatus sets the batch lifecycle status.
func (r *PaymentRepository) UpdateBatchStatus(ctx context.Context, q database.Querier, companyID, id string, status PaymentBatchStatus) error {
	query := `
		UPDATE payment_batches
		SET status     = $3,
		    updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, companyID, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("payment_batch", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update payment batch status")
	}
	return nil
}

// MarkPaymentsProcessed marks every payment in a batch PROCESSED.
func (r *PaymentRepository) MarkPaymentsProcessed(ctx context.Context, q database.Querier, batchID string) error {
	query := `
		UPDATE payments
		SET status = 'PROCESSED'
		WHERE batch_id = $1
	`

	if _, err := q.Exec(ctx, query, batchID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to mark payments processed")
	}
	return nil
}
