package service

import (
	"context"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// ApprovalCallbacks applies the entity-specific status when a workflow
// completes, inside the same unit of work as the completing decision.
type ApprovalCallbacks struct {
	vendors      VendorStore
	requisitions RequisitionStore
	orders       PurchaseOrderStore
	invoiceSvc   *InvoiceService
	payments     PaymentStore
	ledger       *LedgerService
	log          *logger.Logger
}

// NewApprovalCallbacks creates the CompletionHandler wired into the workflow
// coordinator.
func NewApprovalCallbacks(
	vendors VendorStore,
	requisitions RequisitionStore,
	orders PurchaseOrderStore,
	invoiceSvc *InvoiceService,
	payments PaymentStore,
	ledger *LedgerService,
	log *logger.Logger,
) *ApprovalCallbacks {
	return &ApprovalCallbacks{
		vendors:      vendors,
		requisitions: requisitions,
		orders:       orders,
		invoiceSvc:   invoiceSvc,
		payments:     payments,
		ledger:       ledger,
		log:          log,
	}
}

// OnWorkflowApproved maps each entity type to its approved status. Invoices
// additionally consume budget when a PO is linked.
func (c *ApprovalCallbacks) OnWorkflowApproved(ctx context.Context, q database.Querier, companyID string, entityType repository.EntityType, entityID string) error {
	switch entityType {
	case repository.EntityVendor:
		return c.vendors.UpdateStatus(ctx, q, companyID, entityID, repository.VendorApproved)
	case repository.EntityRequisition:
		return c.requisitions.UpdateStatus(ctx, q, companyID, entityID, repository.RequisitionApproved)
	case repository.EntityPurchaseOrder:
		return c.orders.UpdateStatus(ctx, q, companyID, entityID, repository.POStatusApproved)
	case repository.EntityInvoice:
		return c.invoiceSvc.ApproveForPayment(ctx, q, companyID, entityID)
	case repository.EntityPaymentBatch:
		return c.payments.UpdateBatchStatus(ctx, q, companyID, entityID, repository.BatchApproved)
	}
	return errors.InvalidInput("entity_type", string(entityType))
}

// OnWorkflowRejected maps each entity type to its rejected status. A rejected
// requisition releases every line's pre-encumbrance.
func (c *ApprovalCallbacks) OnWorkflowRejected(ctx context.Context, q database.Querier, companyID string, entityType repository.EntityType, entityID string) error {
	switch entityType {
	case repository.EntityVendor:
		return c.vendors.UpdateStatus(ctx, q, companyID, entityID, repository.VendorRejected)
	case repository.EntityRequisition:
		if err := c.releasePreEncumbrances(ctx, q, companyID, entityID); err != nil {
			return err
		}
		return c.requisitions.UpdateStatus(ctx, q, companyID, entityID, repository.RequisitionRejected)
	case repository.EntityPurchaseOrder:
		return c.orders.UpdateStatus(ctx, q, companyID, entityID, repository.POStatusRejected)
	case repository.EntityInvoice:
		return c.invoiceSvc.invoices.UpdateStatus(ctx, q, companyID, entityID, repository.InvoiceRejected)
	case repository.EntityPaymentBatch:
		return c.payments.UpdateBatchStatus(ctx, q, companyID, entityID, repository.BatchRejected)
	}
	return errors.InvalidInput("entity_type", string(entityType))
}

func (c *ApprovalCallbacks) releasePreEncumbrances(ctx context.Context, q database.Querier, companyID, requisitionID string) error {
	req, err := c.requisitions.GetWithLines(ctx, q, companyID, requisitionID)
	if err != nil {
		return err
	}
	for _, line := range req.Lines {
		if line.BudgetLineID == nil {
			continue
		}
		err := c.ledger.RecordTransaction(ctx, q, *line.BudgetLineID,
			repository.TxnRelease, repository.SourceRequisition, line.ID, line.LineTotal)
		if err != nil {
			return err
		}
	}
	return nil
}
