package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
)

// BudgetRepository owns budget lines and the append-only transaction journal.
type BudgetRepository struct{}

// NewBudgetRepository creates a new BudgetRepository.
func NewBudgetRepository() *BudgetRepository {
	return &BudgetRepository{}
}

// FindActiveLine selects the budget line for a cost center and spend category
// whose parent budget is ACTIVE and whose validity window contains today.
// Returns (nil, nil) when no budget is configured; that is a normal outcome,
// not an error.
func (r *BudgetRepository) FindActiveLine(ctx context.Context, q database.Querier, companyID, costCenter, category string) (*BudgetLine, error) {
	query := `
		SELECT l.id, l.company_id, l.budget_id, l.cost_center, l.category,
		       l.allocated, l.committed, l.consumed, b.control_mode,
		       l.created_at, l.updated_at
		FROM budget_lines l
		JOIN budgets b ON b.id = l.budget_id
		WHERE l.company_id = $1
		  AND l.cost_center = $2
		  AND l.category = $3
		  AND b.status = 'ACTIVE'
		  AND b.valid_from <= CURRENT_DATE
		  AND b.valid_to >= CURRENT_DATE
	`

	line, err := r.scanLine(q.QueryRow(ctx, query, companyID, costCenter, category))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find budget line")
	}
	return line, nil
}

// GetLine retrieves a budget line by primary key.
func (r *BudgetRepository) GetLine(ctx context.Context, q database.Querier, lineID string) (*BudgetLine, error) {
	query := `
		SELECT l.id, l.company_id, l.budget_id, l.cost_center, l.category,
		       l.allocated, l.committed, l.consumed, b.control_mode,
		       l.created_at, l.updated_at
		FROM budget_lines l
		JOIN budgets b ON b.id = l.budget_id
		WHERE l.id = $1
	`

	line, err := r.scanLine(q.QueryRow(ctx, query, lineID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("budget_line", lineID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get budget line")
	}
	return line, nil
}

// ControlMode returns the active budget's control mode for a company, or
// HARD_STOP when no active budget exists.
func (r *BudgetRepository) ControlMode(ctx context.Context, q database.Querier, companyID string) (string, error) {
	query := `
		SELECT control_mode
		FROM budgets
		WHERE company_id = $1
		  AND status = 'ACTIVE'
		  AND valid_from <= CURRENT_DATE
		  AND valid_to >= CURRENT_DATE
		ORDER BY valid_from DESC
		LIMIT 1
	`

	var mode string
	err := q.QueryRow(ctx, query, companyID).Scan(&mode)
	if err == pgx.ErrNoRows {
		return "HARD_STOP", nil
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to read budget control mode")
	}
	return mode, nil
}

// InsertTransaction appends one journal entry. The insert is idempotent over
// (budget_line_id, source_type, source_id, txn_type); it returns false when
// the entry already existed, in which case the caller must not adjust the
// balance again.
func (r *BudgetRepository) InsertTransaction(ctx context.Context, q database.Querier, t *BudgetTransaction) (bool, error) {
	query := `
		INSERT INTO budget_transactions
		    (budget_line_id, txn_type, source_type, source_id, amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (budget_line_id, source_type, source_id, txn_type) DO NOTHING
	`

	tag, err := q.Exec(ctx, query,
		t.BudgetLineID,
		t.TxnType,
		t.SourceType,
		t.SourceID,
		t.Amount,
	)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to insert budget transaction")
	}
	return tag.RowsAffected() > 0, nil
}

// AdjustBalance applies a journal entry to the running balance as a relative
// adjustment so concurrent transactions against the same line serialize in
// the database instead of losing updates. RELEASE is floored at zero.
func (r *BudgetRepository) AdjustBalance(ctx context.Context, q database.Querier, lineID string, txnType TxnType, amount int64) error {
	var query string
	switch txnType {
	case TxnPreEncumbrance, TxnEncumbrance:
		query = `UPDATE budget_lines SET committed = committed + $2, updated_at = NOW() WHERE id = $1 RETURNING id`
	case TxnActual:
		query = `UPDATE budget_lines SET consumed = consumed + $2, updated_at = NOW() WHERE id = $1 RETURNING id`
	case TxnRelease:
		query = `UPDATE budget_lines SET committed = GREATEST(committed - $2, 0), updated_at = NOW() WHERE id = $1 RETURNING id`
	default:
		return errors.InvalidInput("txn_type", string(txnType))
	}

	var returnedID string
	err := q.QueryRow(ctx, query, lineID, amount).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("budget_line", lineID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to adjust budget balance")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type lineScanner interface {
	Scan(dest ...any) error
}

func (r *BudgetRepository) scanLine(row lineScanner) (*BudgetLine, error) {
	line := &BudgetLine{}
	err := row.Scan(
		&line.ID,
		&line.CompanyID,
		&line.BudgetID,
		&line.CostCenter,
		&line.Category,
		&line.Allocated,
		&line.Committed,
		&line.Consumed,
		&line.ControlMode,
		&line.CreatedAt,
		&line.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return line, nil
}
