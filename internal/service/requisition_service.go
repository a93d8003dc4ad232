package service

import (
	"context"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/policy"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// RequisitionService runs the requisition protocol: creation, then submission
// with budget resolution, rule evaluation and pre-encumbrance.
type RequisitionService struct {
	db           TxRunner
	requisitions RequisitionStore
	vendors      VendorStore
	ledger       *LedgerService
	policy       *PolicyService
	workflow     *WorkflowService
	numbering    DocumentNumberer
	audit        AuditSink
	log          *logger.Logger
}

// NewRequisitionService creates a new RequisitionService.
func NewRequisitionService(
	db TxRunner,
	requisitions RequisitionStore,
	vendors VendorStore,
	ledger *LedgerService,
	policy *PolicyService,
	workflow *WorkflowService,
	numbering DocumentNumberer,
	audit AuditSink,
	log *logger.Logger,
) *RequisitionService {
	return &RequisitionService{
		db:           db,
		requisitions: requisitions,
		vendors:      vendors,
		ledger:       ledger,
		policy:       policy,
		workflow:     workflow,
		numbering:    numbering,
		audit:        audit,
		log:          log,
	}
}

// CreateRequisitionLine is one requested item on a new requisition.
type CreateRequisitionLine struct {
	Description string
	CostCenter  string
	Category    string
	Quantity    float64
	UnitPrice   int64
}

// CreateRequisitionRequest carries a new DRAFT requisition.
type CreateRequisitionRequest struct {
	CompanyID   string
	VendorID    string
	RequestedBy string
	Lines       []CreateRequisitionLine
}

// CreateRequisition stores a DRAFT requisition. Line totals and the document
// total are computed here; the document number comes from the numbering
// collaborator.
func (s *RequisitionService) CreateRequisition(ctx context.Context, req CreateRequisitionRequest) (*repository.Requisition, error) {
	if len(req.Lines) == 0 {
		return nil, errors.InvalidInput("lines", "a requisition requires at least one line")
	}

	number, err := s.numbering.Generate(ctx, "REQ", "requisition", req.CompanyID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "failed to generate requisition number")
	}

	requisition := &repository.Requisition{
		CompanyID:   req.CompanyID,
		Number:      number,
		VendorID:    req.VendorID,
		Status:      repository.RequisitionDraft,
		RequestedBy: req.RequestedBy,
	}
	for i, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, errors.InvalidInput("quantity", "line quantity must be positive")
		}
		lineTotal := int64(line.Quantity*float64(line.UnitPrice) + 0.5)
		requisition.TotalAmount += lineTotal
		requisition.Lines = append(requisition.Lines, &repository.RequisitionLine{
			LineNo:      i + 1,
			Description: line.Description,
			CostCenter:  line.CostCenter,
			Category:    line.Category,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   lineTotal,
		})
	}

	err = s.db.InTransaction(ctx, func(q database.Querier) error {
		return s.requisitions.Create(ctx, q, requisition)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("requisition_id", requisition.ID).
		Str("number", requisition.Number).
		Int64("total_amount", requisition.TotalAmount).
		Msg("requisition created")

	return requisition, nil
}

// SubmitRequisition runs the submission protocol in one unit of work: resolve
// a budget line per line item, check availability, evaluate REQUISITION-scope
// rules, then either decide immediately or open an approval workflow. Unless
// rejected, every budgeted line is pre-encumbered.
func (s *RequisitionService) SubmitRequisition(ctx context.Context, companyID, requisitionID, actorID string) (*repository.Requisition, error) {
	var requisition *repository.Requisition

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		requisition, err = s.requisitions.GetWithLines(ctx, q, companyID, requisitionID)
		if err != nil {
			return err
		}
		if requisition.Status != repository.RequisitionDraft {
			return errors.InvalidState("requisition", "submitted", string(requisition.Status))
		}

		vendor, err := s.vendors.Get(ctx, q, companyID, requisition.VendorID)
		if err != nil {
			return err
		}

		budgetAvailable, controlMode, err := s.resolveBudgets(ctx, q, companyID, requisition)
		if err != nil {
			return err
		}

		facts := policy.Facts{
			"totalAmount":       amountUnits(requisition.TotalAmount),
			"budgetAvailable":   budgetAvailable,
			"budgetControlMode": controlMode,
			"vendorStatus":      string(vendor.Status),
			"vendorRiskScore":   vendor.RiskScore,
		}
		result, err := s.policy.Evaluate(ctx, q, companyID, repository.EntityRequisition, facts)
		if err != nil {
			return err
		}

		switch result.Action() {
		case actionAutoApprove:
			requisition.Status = repository.RequisitionApproved
		case actionAutoReject:
			requisition.Status = repository.RequisitionRejected
		default:
			requisition.Status = repository.RequisitionSubmitted
			roles := outcomeRoles(result.Outcome, nil)
			_, err = s.workflow.StartWorkflow(ctx, q, companyID,
				repository.EntityRequisition, requisition.ID, workflowRequisitionApproval, roles)
			if err != nil {
				return err
			}
		}

		if requisition.Status != repository.RequisitionRejected {
			for _, line := range requisition.Lines {
				if line.BudgetLineID == nil {
					continue
				}
				err := s.ledger.RecordTransaction(ctx, q, *line.BudgetLineID,
					repository.TxnPreEncumbrance, repository.SourceRequisition, line.ID, line.LineTotal)
				if err != nil {
					return err
				}
			}
		}

		return s.requisitions.UpdateStatus(ctx, q, companyID, requisition.ID, requisition.Status)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("requisition_id", requisition.ID).
		Str("status", string(requisition.Status)).
		Msg("requisition submitted")

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  companyID,
		ActorID:    &actorID,
		ActorType:  "USER",
		ActionCode: "REQUISITION_SUBMITTED",
		EntityType: repository.EntityRequisition,
		EntityID:   requisition.ID,
		Payload:    map[string]any{"status": string(requisition.Status)},
	})

	return requisition, nil
}

// resolveBudgets finds the active budget line for each requisition line and
// pins it on the line. It returns whether every line has a budget line that
// can absorb its amount, and the company control mode. A line without a
// matching budget line counts as unavailable.
func (s *RequisitionService) resolveBudgets(ctx context.Context, q database.Querier, companyID string, requisition *repository.Requisition) (bool, string, error) {
	controlMode, err := s.ledger.ControlMode(ctx, q, companyID)
	if err != nil {
		return false, "", err
	}

	available := true
	for _, line := range requisition.Lines {
		budgetLine, err := s.ledger.FindBudgetLine(ctx, q, companyID, line.CostCenter, line.Category)
		if err != nil {
			return false, "", err
		}
		if budgetLine == nil {
			s.log.Warn().
				Str("requisition_id", requisition.ID).
				Str("cost_center", line.CostCenter).
				Str("category", line.Category).
				Msg("no active budget line for requisition line")
			available = false
			continue
		}

		line.BudgetLineID = &budgetLine.ID
		if err := s.requisitions.SetLineBudget(ctx, q, line.ID, budgetLine.ID); err != nil {
			return false, "", err
		}

		avail, err := s.ledger.CheckAvailability(ctx, q, budgetLine.ID, line.LineTotal)
		if err != nil {
			return false, "", err
		}
		if !avail.CanProceed {
			available = false
		}
	}

	return available, controlMode, nil
}

// GetRequisition loads a requisition with its lines.
func (s *RequisitionService) GetRequisition(ctx context.Context, companyID, requisitionID string) (*repository.Requisition, error) {
	var requisition *repository.Requisition
	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		requisition, err = s.requisitions.GetWithLines(ctx, q, companyID, requisitionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return requisition, nil
}
