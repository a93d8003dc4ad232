package service

import (
	"context"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// PurchaseOrderService converts approved requisitions into purchase orders and
// runs the issuance protocol that flips pre-encumbrance into encumbrance.
type PurchaseOrderService struct {
	db           TxRunner
	orders       PurchaseOrderStore
	requisitions RequisitionStore
	ledger       *LedgerService
	numbering    DocumentNumberer
	audit        AuditSink
	log          *logger.Logger
}

// NewPurchaseOrderService creates a new PurchaseOrderService.
func NewPurchaseOrderService(
	db TxRunner,
	orders PurchaseOrderStore,
	requisitions RequisitionStore,
	ledger *LedgerService,
	numbering DocumentNumberer,
	audit AuditSink,
	log *logger.Logger,
) *PurchaseOrderService {
	return &PurchaseOrderService{
		db:           db,
		orders:       orders,
		requisitions: requisitions,
		ledger:       ledger,
		numbering:    numbering,
		audit:        audit,
		log:          log,
	}
}

// CreateFromRequisitionRequest selects the requisition a PO is built from.
type CreateFromRequisitionRequest struct {
	CompanyID     string
	RequisitionID string
	MatchType     repository.MatchType
	ActorID       string
}

// CreateFromRequisition builds a DRAFT purchase order mirroring an APPROVED
// requisition's lines. Each PO line keeps a reference to its requisition line
// so issuance can release the pre-encumbrance recorded at submission.
func (s *PurchaseOrderService) CreateFromRequisition(ctx context.Context, req CreateFromRequisitionRequest) (*repository.PurchaseOrder, error) {
	if req.MatchType == "" {
		req.MatchType = repository.MatchTwoWay
	}
	if req.MatchType != repository.MatchTwoWay && req.MatchType != repository.MatchThreeWay {
		return nil, errors.InvalidInput("match_type", string(req.MatchType))
	}

	number, err := s.numbering.Generate(ctx, "PO", "purchase_order", req.CompanyID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "failed to generate purchase order number")
	}

	var po *repository.PurchaseOrder
	err = s.db.InTransaction(ctx, func(q database.Querier) error {
		requisition, err := s.requisitions.GetWithLines(ctx, q, req.CompanyID, req.RequisitionID)
		if err != nil {
			return err
		}
		if requisition.Status != repository.RequisitionApproved {
			return errors.InvalidState("requisition", "converted to a purchase order", string(requisition.Status))
		}

		po = &repository.PurchaseOrder{
			CompanyID:     req.CompanyID,
			Number:        number,
			VendorID:      requisition.VendorID,
			RequisitionID: &requisition.ID,
			Status:        repository.POStatusDraft,
			MatchType:     req.MatchType,
			TotalAmount:   requisition.TotalAmount,
		}
		for _, line := range requisition.Lines {
			reqLineID := line.ID
			po.Lines = append(po.Lines, &repository.PurchaseOrderLine{
				LineNo:            line.LineNo,
				RequisitionLineID: &reqLineID,
				Description:       line.Description,
				CostCenter:        line.CostCenter,
				Category:          line.Category,
				Quantity:          line.Quantity,
				UnitPrice:         line.UnitPrice,
				LineTotal:         line.LineTotal,
			})
		}

		return s.orders.Create(ctx, q, po)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("purchase_order_id", po.ID).
		Str("number", po.Number).
		Str("requisition_id", req.RequisitionID).
		Msg("purchase order created from requisition")

	return po, nil
}

// IssuePurchaseOrder runs the issuance protocol in one unit of work: for each
// line backed by a budgeted requisition line it releases the pre-encumbrance
// and records an encumbrance of the same amount, then moves the PO to ISSUED.
// The PO must be DRAFT or APPROVED.
func (s *PurchaseOrderService) IssuePurchaseOrder(ctx context.Context, companyID, poID, actorID string) (*repository.PurchaseOrder, error) {
	var po *repository.PurchaseOrder

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		po, err = s.orders.GetWithLines(ctx, q, companyID, poID)
		if err != nil {
			return err
		}
		if po.Status != repository.POStatusDraft && po.Status != repository.POStatusApproved {
			return errors.InvalidState("purchase_order", "issued", string(po.Status))
		}

		reqLines, err := s.requisitionLinesByID(ctx, q, companyID, po)
		if err != nil {
			return err
		}

		for _, line := range po.Lines {
			if line.RequisitionLineID == nil {
				continue
			}
			reqLine, ok := reqLines[*line.RequisitionLineID]
			if !ok || reqLine.BudgetLineID == nil {
				continue
			}

			err := s.ledger.RecordTransaction(ctx, q, *reqLine.BudgetLineID,
				repository.TxnRelease, repository.SourcePurchaseOrder, line.ID, reqLine.LineTotal)
			if err != nil {
				return err
			}
			err = s.ledger.RecordTransaction(ctx, q, *reqLine.BudgetLineID,
				repository.TxnEncumbrance, repository.SourcePurchaseOrder, line.ID, line.LineTotal)
			if err != nil {
				return err
			}
		}

		po.Status = repository.POStatusIssued
		return s.orders.UpdateStatus(ctx, q, companyID, po.ID, po.Status)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("purchase_order_id", po.ID).
		Str("number", po.Number).
		Msg("purchase order issued")

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  companyID,
		ActorID:    &actorID,
		ActorType:  "USER",
		ActionCode: "PURCHASE_ORDER_ISSUED",
		EntityType: repository.EntityPurchaseOrder,
		EntityID:   po.ID,
	})

	return po, nil
}

// requisitionLinesByID loads the backing requisition's lines keyed by ID.
func (s *PurchaseOrderService) requisitionLinesByID(ctx context.Context, q database.Querier, companyID string, po *repository.PurchaseOrder) (map[string]*repository.RequisitionLine, error) {
	lines := make(map[string]*repository.RequisitionLine)
	if po.RequisitionID == nil {
		return lines, nil
	}
	requisition, err := s.requisitions.GetWithLines(ctx, q, companyID, *po.RequisitionID)
	if err != nil {
		return nil, err
	}
	for _, line := range requisition.Lines {
		lines[line.ID] = line
	}
	return lines, nil
}

// GetPurchaseOrder loads a purchase order with its lines.
func (s *PurchaseOrderService) GetPurchaseOrder(ctx context.Context, companyID, poID string) (*repository.PurchaseOrder, error) {
	var po *repository.PurchaseOrder
	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		po, err = s.orders.GetWithLines(ctx, q, companyID, poID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}
