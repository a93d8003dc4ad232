package service

import (
	"context"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// InvoiceService registers vendor invoices and runs the matching protocol
// that decides how each invoice proceeds toward payment.
type InvoiceService struct {
	db       TxRunner
	invoices InvoiceStore
	matcher  *MatchService
	ledger   *LedgerService
	policy   *PolicyService
	workflow *WorkflowService
	audit    AuditSink
	log      *logger.Logger
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(
	db TxRunner,
	invoices InvoiceStore,
	matcher *MatchService,
	ledger *LedgerService,
	policy *PolicyService,
	workflow *WorkflowService,
	audit AuditSink,
	log *logger.Logger,
) *InvoiceService {
	return &InvoiceService{
		db:       db,
		invoices: invoices,
		matcher:  matcher,
		ledger:   ledger,
		policy:   policy,
		workflow: workflow,
		audit:    audit,
		log:      log,
	}
}

// CreateInvoiceLine is one invoiced item on a new invoice.
type CreateInvoiceLine struct {
	PurchaseOrderLineID *string
	Description         string
	CostCenter          string
	Category            string
	Quantity            float64
	UnitPrice           int64
}

// CreateInvoiceRequest carries a newly received vendor invoice.
type CreateInvoiceRequest struct {
	CompanyID       string
	Number          string
	VendorID        string
	PurchaseOrderID *string
	Lines           []CreateInvoiceLine
}

// CreateInvoice stores a RECEIVED invoice. Registering a second invoice with
// the same vendor and number fails with a duplicate error; the softer
// duplicate signal during matching covers invoices that slipped in anyway.
func (s *InvoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*repository.Invoice, error) {
	if req.Number == "" {
		return nil, errors.InvalidInput("number", "invoice number is required")
	}
	if len(req.Lines) == 0 {
		return nil, errors.InvalidInput("lines", "an invoice requires at least one line")
	}

	invoice := &repository.Invoice{
		CompanyID:       req.CompanyID,
		Number:          req.Number,
		VendorID:        req.VendorID,
		PurchaseOrderID: req.PurchaseOrderID,
		Status:          repository.InvoiceReceived,
	}
	for i, line := range req.Lines {
		lineTotal := int64(line.Quantity*float64(line.UnitPrice) + 0.5)
		invoice.TotalAmount += lineTotal
		invoice.Lines = append(invoice.Lines, &repository.InvoiceLine{
			LineNo:              i + 1,
			PurchaseOrderLineID: line.PurchaseOrderLineID,
			Description:         line.Description,
			CostCenter:          line.CostCenter,
			Category:            line.Category,
			Quantity:            line.Quantity,
			UnitPrice:           line.UnitPrice,
			LineTotal:           lineTotal,
		})
	}

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		dup, err := s.invoices.HasDuplicate(ctx, q, req.CompanyID, req.VendorID, req.Number, "")
		if err != nil {
			return err
		}
		if dup {
			return errors.Duplicate("invoice", req.Number)
		}
		return s.invoices.Create(ctx, q, invoice)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("invoice_id", invoice.ID).
		Str("number", invoice.Number).
		Str("vendor_id", invoice.VendorID).
		Msg("invoice registered")

	return invoice, nil
}

// MatchInvoice runs the matching protocol in one unit of work: execute the
// applicable match checks, evaluate INVOICE-scope rules over the match facts,
// and apply the resulting status. Rules decide first; without a matching rule
// the check result decides between MATCHED and EXCEPTION.
func (s *InvoiceService) MatchInvoice(ctx context.Context, companyID, invoiceID, actorID string) (*repository.Invoice, error) {
	var invoice *repository.Invoice

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		invoice, err = s.invoices.GetWithLines(ctx, q, companyID, invoiceID)
		if err != nil {
			return err
		}

		outcome, err := s.matcher.RunMatch(ctx, q, invoice)
		if err != nil {
			return err
		}

		result, err := s.policy.Evaluate(ctx, q, companyID, repository.EntityInvoice, outcome.Facts())
		if err != nil {
			return err
		}

		switch result.Action() {
		case actionAutoApproveForPayment:
			return s.ApproveForPayment(ctx, q, companyID, invoice.ID)
		case actionAutoReject:
			invoice.Status = repository.InvoiceRejected
		case actionRouteException:
			invoice.Status = repository.InvoiceException
		case actionManualReview:
			invoice.Status = repository.InvoiceUnderReview
			roles := outcomeRoles(result.Outcome, nil)
			_, err = s.workflow.StartWorkflow(ctx, q, companyID,
				repository.EntityInvoice, invoice.ID, workflowInvoiceApproval, roles)
			if err != nil {
				return err
			}
		default:
			if outcome.MatchPassed {
				invoice.Status = repository.InvoiceMatched
			} else {
				invoice.Status = repository.InvoiceException
			}
		}

		return s.invoices.UpdateStatus(ctx, q, companyID, invoice.ID, invoice.Status)
	})
	if err != nil {
		return nil, err
	}

	invoice, err = s.refresh(ctx, companyID, invoiceID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  companyID,
		ActorID:    &actorID,
		ActorType:  "USER",
		ActionCode: "INVOICE_MATCHED",
		EntityType: repository.EntityInvoice,
		EntityID:   invoice.ID,
		Payload:    map[string]any{"status": string(invoice.Status)},
	})

	return invoice, nil
}

// ApproveForPayment moves an invoice to APPROVED_FOR_PAYMENT and books its
// budget effect: for each line tied to a budget, the PO encumbrance is
// released and an ACTUAL of the invoiced amount is consumed. Runs inside the
// caller's unit of work so both the matching protocol and workflow completion
// share it.
func (s *InvoiceService) ApproveForPayment(ctx context.Context, q database.Querier, companyID, invoiceID string) error {
	invoice, err := s.invoices.GetWithLines(ctx, q, companyID, invoiceID)
	if err != nil {
		return err
	}

	if invoice.PurchaseOrderID != nil {
		for _, line := range invoice.Lines {
			budgetLine, err := s.ledger.FindBudgetLine(ctx, q, companyID, line.CostCenter, line.Category)
			if err != nil {
				return err
			}
			if budgetLine == nil {
				continue
			}

			err = s.ledger.RecordTransaction(ctx, q, budgetLine.ID,
				repository.TxnRelease, repository.SourceInvoice, line.ID, line.LineTotal)
			if err != nil {
				return err
			}
			err = s.ledger.RecordTransaction(ctx, q, budgetLine.ID,
				repository.TxnActual, repository.SourceInvoice, line.ID, line.LineTotal)
			if err != nil {
				return err
			}
		}
	}

	s.log.Info().
		Str("invoice_id", invoice.ID).
		Int64("total_amount", invoice.TotalAmount).
		Msg("invoice approved for payment")

	return s.invoices.UpdateStatus(ctx, q, companyID, invoiceID, repository.InvoiceApprovedForPayment)
}

// GetMatchResults returns the persisted match check results for an invoice.
func (s *InvoiceService) GetMatchResults(ctx context.Context, companyID, invoiceID string) ([]*repository.MatchResult, error) {
	var results []*repository.MatchResult
	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		if _, err := s.invoices.GetWithLines(ctx, q, companyID, invoiceID); err != nil {
			return err
		}
		var err error
		results, err = s.matcher.ListResults(ctx, q, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetInvoice loads an invoice with its lines.
func (s *InvoiceService) GetInvoice(ctx context.Context, companyID, invoiceID string) (*repository.Invoice, error) {
	return s.refresh(ctx, companyID, invoiceID)
}

func (s *InvoiceService) refresh(ctx context.Context, companyID, invoiceID string) (*repository.Invoice, error) {
	var invoice *repository.Invoice
	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		invoice, err = s.invoices.GetWithLines(ctx, q, companyID, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}
