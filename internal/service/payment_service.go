package service

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/policy"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// PaymentService runs the payment batch protocol: batch creation from
// approved invoices, batch approval and execution.
type PaymentService struct {
	db        TxRunner
	payments  PaymentStore
	invoices  InvoiceStore
	vendors   VendorStore
	policy    *PolicyService
	workflow  *WorkflowService
	numbering DocumentNumberer
	audit     AuditSink
	log       *logger.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	db TxRunner,
	payments PaymentStore,
	invoices InvoiceStore,
	vendors VendorStore,
	policy *PolicyService,
	workflow *WorkflowService,
	numbering DocumentNumberer,
	audit AuditSink,
	log *logger.Logger,
) *PaymentService {
	return &PaymentService{
		db:        db,
		payments:  payments,
		invoices:  invoices,
		vendors:   vendors,
		policy:    policy,
		workflow:  workflow,
		numbering: numbering,
		audit:     audit,
		log:       log,
	}
}

// CreateBatchRequest selects the invoices to pay in one batch.
type CreateBatchRequest struct {
	CompanyID  string
	InvoiceIDs []string
	CreatedBy  string
}

// CreateBatch groups APPROVED_FOR_PAYMENT invoices into one payment per
// vendor in one unit of work. Invoices in any other status and invoices of
// blocked vendors fail the whole batch. PAYMENT_BATCH-scope rules decide
// whether the batch starts as DRAFT or needs release approval.
func (s *PaymentService) CreateBatch(ctx context.Context, req CreateBatchRequest) (*repository.PaymentBatch, error) {
	if len(req.InvoiceIDs) == 0 {
		return nil, errors.InvalidInput("invoice_ids", "a payment batch requires at least one invoice")
	}

	number, err := s.numbering.Generate(ctx, "PAY", "payment_batch", req.CompanyID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "failed to generate payment batch number")
	}

	var batch *repository.PaymentBatch
	err = s.db.InTransaction(ctx, func(q database.Querier) error {
		byVendor := make(map[string][]*repository.Invoice)
		var total int64
		for _, id := range req.InvoiceIDs {
			invoice, err := s.invoices.GetWithLines(ctx, q, req.CompanyID, id)
			if err != nil {
				return err
			}
			if invoice.Status != repository.InvoiceApprovedForPayment {
				return errors.InvalidState("invoice", "added to a payment batch", string(invoice.Status))
			}
			byVendor[invoice.VendorID] = append(byVendor[invoice.VendorID], invoice)
			total += invoice.TotalAmount
		}

		vendorIDs := make([]string, 0, len(byVendor))
		for vendorID := range byVendor {
			vendorIDs = append(vendorIDs, vendorID)
		}
		sort.Strings(vendorIDs)

		batch = &repository.PaymentBatch{
			CompanyID:   req.CompanyID,
			Number:      number,
			Status:      repository.BatchDraft,
			TotalAmount: total,
			CreatedBy:   req.CreatedBy,
		}
		for _, vendorID := range vendorIDs {
			vendor, err := s.vendors.Get(ctx, q, req.CompanyID, vendorID)
			if err != nil {
				return err
			}
			if vendor.Status == repository.VendorBlocked {
				return errors.Newf(errors.ErrCodePolicyViolation,
					"vendor %s is blocked and cannot be paid", vendor.Code)
			}

			payment := &repository.Payment{
				VendorID:  vendorID,
				Reference: uuid.NewString(),
				Status:    repository.PaymentPending,
			}
			for _, invoice := range byVendor[vendorID] {
				payment.Amount += invoice.TotalAmount
				payment.Allocations = append(payment.Allocations, &repository.PaymentAllocation{
					InvoiceID: invoice.ID,
					Amount:    invoice.TotalAmount,
				})
			}
			batch.Payments = append(batch.Payments, payment)
		}

		facts := policy.Facts{
			"totalAmount":  amountUnits(batch.TotalAmount),
			"paymentCount": len(batch.Payments),
			"invoiceCount": len(req.InvoiceIDs),
		}
		result, err := s.policy.Evaluate(ctx, q, req.CompanyID, repository.EntityPaymentBatch, facts)
		if err != nil {
			return err
		}

		if result.Action() == actionManualReview {
			batch.Status = repository.BatchPendingApproval
		}

		if err := s.payments.CreateBatch(ctx, q, batch); err != nil {
			return err
		}

		if batch.Status == repository.BatchPendingApproval {
			roles := outcomeRoles(result.Outcome, nil)
			_, err = s.workflow.StartWorkflow(ctx, q, req.CompanyID,
				repository.EntityPaymentBatch, batch.ID, workflowPaymentBatchRelease, roles)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("batch_id", batch.ID).
		Str("number", batch.Number).
		Int("payments", len(batch.Payments)).
		Int64("total_amount", batch.TotalAmount).
		Str("status", string(batch.Status)).
		Msg("payment batch created")

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  req.CompanyID,
		ActorID:    &req.CreatedBy,
		ActorType:  "USER",
		ActionCode: "PAYMENT_BATCH_CREATED",
		EntityType: repository.EntityPaymentBatch,
		EntityID:   batch.ID,
		Payload:    map[string]any{"status": string(batch.Status)},
	})

	return batch, nil
}

// ApproveBatch moves a DRAFT or PENDING_APPROVAL batch to APPROVED. Batches
// routed through a release workflow are normally approved by the workflow
// callback instead.
func (s *PaymentService) ApproveBatch(ctx context.Context, companyID, batchID, actorID string) error {
	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		batch, err := s.payments.GetBatch(ctx, q, companyID, batchID)
		if err != nil {
			return err
		}
		if batch.Status != repository.BatchDraft && batch.Status != repository.BatchPendingApproval {
			return errors.InvalidState("payment_batch", "approved", string(batch.Status))
		}
		return s.payments.UpdateBatchStatus(ctx, q, companyID, batchID, repository.BatchApproved)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  companyID,
		ActorID:    &actorID,
		ActorType:  "USER",
		ActionCode: "PAYMENT_BATCH_APPROVED",
		EntityType: repository.EntityPaymentBatch,
		EntityID:   batchID,
	})
	return nil
}

// ExecuteBatch settles an APPROVED batch in one unit of work: payments move
// to PROCESSED, every allocated invoice moves to PAID, and the batch
// completes. There is no intermediate persisted PROCESSING state to resume
// from; a failed execution rolls back whole.
func (s *PaymentService) ExecuteBatch(ctx context.Context, companyID, batchID, actorID string) (*repository.PaymentBatch, error) {
	var batch *repository.PaymentBatch

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		batch, err = s.payments.GetBatch(ctx, q, companyID, batchID)
		if err != nil {
			return err
		}
		if batch.Status != repository.BatchApproved {
			return errors.InvalidState("payment_batch", "executed", string(batch.Status))
		}

		if err := s.payments.MarkPaymentsProcessed(ctx, q, batch.ID); err != nil {
			return err
		}
		for _, payment := range batch.Payments {
			payment.Status = repository.PaymentProcessed
			for _, alloc := range payment.Allocations {
				err := s.invoices.UpdateStatus(ctx, q, companyID, alloc.InvoiceID, repository.InvoicePaid)
				if err != nil {
					return err
				}
			}
		}

		batch.Status = repository.BatchCompleted
		return s.payments.UpdateBatchStatus(ctx, q, companyID, batch.ID, batch.Status)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("batch_id", batch.ID).
		Str("number", batch.Number).
		Int("payments", len(batch.Payments)).
		Msg("payment batch executed")

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  companyID,
		ActorID:    &actorID,
		ActorType:  "USER",
		ActionCode: "PAYMENT_BATCH_EXECUTED",
		EntityType: repository.EntityPaymentBatch,
		EntityID:   batch.ID,
	})

	return batch, nil
}

// GetBatch loads a payment batch with its payments and allocations.
func (s *PaymentService) GetBatch(ctx context.Context, companyID, batchID string) (*repository.PaymentBatch, error) {
	var batch *repository.PaymentBatch
	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		batch, err = s.payments.GetBatch(ctx, q, companyID, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}
