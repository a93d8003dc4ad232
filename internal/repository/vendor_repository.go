package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
)

// VendorRepository reads vendor onboarding facts and applies status
// transitions. Vendor document/risk intake happens upstream.
type VendorRepository struct{}

// NewVendorRepository creates a new VendorRepository.
func NewVendorRepository() *VendorRepository {
	return &VendorRepository{}
}

// Get retrieves a vendor scoped to the company.
func (r *VendorRepository) Get(ctx context.Context, q database.Querier, companyID, id string) (*Vendor, error) {
	query := `
		SELECT id, company_id, code, name, status,
		       risk_score, sanctions_hit, bank_account_verified, tax_id_verified,
		       missing_documents, created_at, updated_at
		FROM vendors
		WHERE id = $1 AND company_id = $2
	`

	v := &Vendor{}
	err := q.QueryRow(ctx, query, id, companyID).Scan(
		&v.ID,
		&v.CompanyID,
		&v.Code,
		&v.Name,
		&v.Status,
		&v.RiskScore,
		&v.SanctionsHit,
		&v.BankAccountVerified,
		&v.TaxIDVerified,
		&v.MissingDocuments,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("vendor", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get vendor")
	}
	return v, nil
}

// UpdateStatus sets the vendor lifecycle status.
func (r *VendorRepository) UpdateStatus(ctx context.Context, q database.Querier, companyID, id string, status VendorStatus) error {
	query := `
		UPDATE vendors
		SET status     = $3,
		    updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, companyID, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("vendor", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update vendor status")
	}
	return nil
}
