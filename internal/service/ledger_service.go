package service

import (
	"context"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// LedgerService is the budget ledger: it answers availability questions and
// records journal entries with their balance effects. Every method runs
// inside the caller's unit of work so ledger mutations commit atomically with
// the document transition that caused them.
type LedgerService struct {
	budgets BudgetStore
	log     *logger.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(budgets BudgetStore, log *logger.Logger) *LedgerService {
	return &LedgerService{budgets: budgets, log: log}
}

// Availability is the result of a budget availability check.
type Availability struct {
	Available  int64
	CanProceed bool
}

// FindBudgetLine resolves the active budget line for a cost center and spend
// category. A nil line means no budget is configured, which is a normal
// outcome the caller folds into rule facts, not an error.
func (s *LedgerService) FindBudgetLine(ctx context.Context, q database.Querier, companyID, costCenter, category string) (*repository.BudgetLine, error) {
	return s.budgets.FindActiveLine(ctx, q, companyID, costCenter, category)
}

// ControlMode returns the company's budget control mode (HARD_STOP when no
// active budget exists).
func (s *LedgerService) ControlMode(ctx context.Context, q database.Querier, companyID string) (string, error) {
	return s.budgets.ControlMode(ctx, q, companyID)
}

// CheckAvailability reports whether a budget line can absorb amount. Read
// only; never mutates.
func (s *LedgerService) CheckAvailability(ctx context.Context, q database.Querier, lineID string, amount int64) (Availability, error) {
	line, err := s.budgets.GetLine(ctx, q, lineID)
	if err != nil {
		return Availability{}, err
	}
	available := line.Available()
	return Availability{Available: available, CanProceed: available >= amount}, nil
}

// RecordTransaction appends a journal entry and applies its balance effect.
// Replaying the same (line, source, txn type) tuple is a no-op: the journal's
// uniqueness is the idempotency guard against retried lifecycle steps, and
// the balance moves at most once.
func (s *LedgerService) RecordTransaction(ctx context.Context, q database.Querier, lineID string, txnType repository.TxnType, sourceType repository.SourceType, sourceID string, amount int64) error {
	if amount < 0 {
		return errors.InvalidInput("amount", "budget transaction amount must be non-negative")
	}

	inserted, err := s.budgets.InsertTransaction(ctx, q, &repository.BudgetTransaction{
		BudgetLineID: lineID,
		TxnType:      txnType,
		SourceType:   sourceType,
		SourceID:     sourceID,
		Amount:       amount,
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug().
			Str("budget_line_id", lineID).
			Str("txn_type", string(txnType)).
			Str("source_id", sourceID).
			Msg("duplicate budget transaction ignored")
		return nil
	}

	return s.budgets.AdjustBalance(ctx, q, lineID, txnType, amount)
}
