package service

import (
	"context"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/policy"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// VendorService runs the vendor onboarding protocol.
type VendorService struct {
	db       TxRunner
	vendors  VendorStore
	policy   *PolicyService
	workflow *WorkflowService
	audit    AuditSink
	log      *logger.Logger
}

// NewVendorService creates a new VendorService.
func NewVendorService(db TxRunner, vendors VendorStore, policy *PolicyService, workflow *WorkflowService, audit AuditSink, log *logger.Logger) *VendorService {
	return &VendorService{
		db:       db,
		vendors:  vendors,
		policy:   policy,
		workflow: workflow,
		audit:    audit,
		log:      log,
	}
}

// SubmitVendorRequest identifies the vendor being submitted for review.
type SubmitVendorRequest struct {
	CompanyID string
	VendorID  string
	ActorID   string
}

// SubmitVendor evaluates VENDOR-scope rules over the vendor's risk facts and
// either decides immediately or opens an onboarding workflow. The vendor must
// be REGISTERED.
func (s *VendorService) SubmitVendor(ctx context.Context, req SubmitVendorRequest) (*repository.Vendor, error) {
	var vendor *repository.Vendor

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		vendor, err = s.vendors.Get(ctx, q, req.CompanyID, req.VendorID)
		if err != nil {
			return err
		}
		if vendor.Status != repository.VendorRegistered {
			return errors.InvalidState("vendor", "submitted", string(vendor.Status))
		}

		facts := policy.Facts{
			"riskScore":             vendor.RiskScore,
			"countMissingDocuments": vendor.MissingDocuments,
			"sanctionsHit":          vendor.SanctionsHit,
			"bankAccountVerified":   vendor.BankAccountVerified,
			"taxIdVerified":         vendor.TaxIDVerified,
		}
		result, err := s.policy.Evaluate(ctx, q, req.CompanyID, repository.EntityVendor, facts)
		if err != nil {
			return err
		}

		switch result.Action() {
		case actionAutoApprove:
			vendor.Status = repository.VendorApproved
		case actionAutoReject:
			vendor.Status = repository.VendorRejected
		default:
			vendor.Status = repository.VendorUnderReview
			roles := outcomeRoles(result.Outcome, nil)
			_, err = s.workflow.StartWorkflow(ctx, q, req.CompanyID,
				repository.EntityVendor, vendor.ID, workflowVendorOnboarding, roles)
			if err != nil {
				return err
			}
		}

		return s.vendors.UpdateStatus(ctx, q, req.CompanyID, vendor.ID, vendor.Status)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("vendor_id", vendor.ID).
		Str("status", string(vendor.Status)).
		Msg("vendor submitted for onboarding")

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  req.CompanyID,
		ActorID:    &req.ActorID,
		ActorType:  "USER",
		ActionCode: "VENDOR_SUBMITTED",
		EntityType: repository.EntityVendor,
		EntityID:   vendor.ID,
		Payload:    map[string]any{"status": string(vendor.Status)},
	})

	return vendor, nil
}

// BlockVendor moves a vendor to BLOCKED, excluding it from payment batches.
func (s *VendorService) BlockVendor(ctx context.Context, companyID, vendorID, actorID string) error {
	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		vendor, err := s.vendors.Get(ctx, q, companyID, vendorID)
		if err != nil {
			return err
		}
		if vendor.Status == repository.VendorBlocked {
			return nil
		}
		return s.vendors.UpdateStatus(ctx, q, companyID, vendorID, repository.VendorBlocked)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  companyID,
		ActorID:    &actorID,
		ActorType:  "USER",
		ActionCode: "VENDOR_BLOCKED",
		EntityType: repository.EntityVendor,
		EntityID:   vendorID,
	})
	return nil
}

// GetVendor loads a vendor.
func (s *VendorService) GetVendor(ctx context.Context, companyID, vendorID string) (*repository.Vendor, error) {
	var vendor *repository.Vendor
	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		vendor, err = s.vendors.Get(ctx, q, companyID, vendorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vendor, nil
}
