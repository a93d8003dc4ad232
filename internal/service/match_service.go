package service

import (
	"context"
	"fmt"
	"math"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// Match tolerances. Fixed; they are also surfaced as facts so rules can
// reference them.
const (
	priceTolerancePercent = 1.0
	qtyTolerancePercent   = 2.0
)

// MatchOutcome is the result of running all applicable checks on an invoice.
// The four fact fields feed INVOICE-scope rule evaluation.
type MatchOutcome struct {
	DuplicateFound       bool
	MatchPassed          bool
	PriceVariancePercent float64
	QtyVariancePercent   float64
	Results              []*repository.MatchResult
}

// Facts returns the rule evaluation facts produced by the match run.
func (o *MatchOutcome) Facts() map[string]any {
	return map[string]any{
		"duplicateInvoiceFound": o.DuplicateFound,
		"matchPassed":           o.MatchPassed,
		"priceVariancePercent":  o.PriceVariancePercent,
		"qtyVariancePercent":    o.QtyVariancePercent,
		"priceTolerancePercent": priceTolerancePercent,
		"qtyTolerancePercent":   qtyTolerancePercent,
	}
}

// MatchService reconciles invoices against purchase orders and goods
// receipts.
type MatchService struct {
	invoices InvoiceStore
	orders   PurchaseOrderStore
	receipts ReceiptStore
	results  MatchStore
	log      *logger.Logger
}

// NewMatchService creates a new MatchService.
func NewMatchService(invoices InvoiceStore, orders PurchaseOrderStore, receipts ReceiptStore, results MatchStore, log *logger.Logger) *MatchService {
	return &MatchService{
		invoices: invoices,
		orders:   orders,
		receipts: receipts,
		results:  results,
		log:      log,
	}
}

// RunMatch executes the duplicate, 2-way and 3-way checks for an invoice and
// persists one result row per executed check. The invoice must be RECEIVED or
// UNDER_REVIEW.
func (s *MatchService) RunMatch(ctx context.Context, q database.Querier, inv *repository.Invoice) (*MatchOutcome, error) {
	if inv.Status != repository.InvoiceReceived && inv.Status != repository.InvoiceUnderReview {
		return nil, errors.InvalidState("invoice", "matched", string(inv.Status))
	}

	outcome := &MatchOutcome{MatchPassed: true}

	if err := s.checkDuplicate(ctx, q, inv, outcome); err != nil {
		return nil, err
	}

	var po *repository.PurchaseOrder
	if inv.PurchaseOrderID != nil {
		var err error
		po, err = s.orders.GetWithLines(ctx, q, inv.CompanyID, *inv.PurchaseOrderID)
		if err != nil {
			return nil, err
		}
		if err := s.checkTwoWay(ctx, q, inv, po, outcome); err != nil {
			return nil, err
		}
		if po.MatchType == repository.MatchThreeWay {
			if err := s.checkThreeWay(ctx, q, inv, po, outcome); err != nil {
				return nil, err
			}
		}
	}

	s.log.Info().
		Str("invoice_id", inv.ID).
		Bool("match_passed", outcome.MatchPassed).
		Bool("duplicate_found", outcome.DuplicateFound).
		Float64("price_variance_pct", outcome.PriceVariancePercent).
		Float64("qty_variance_pct", outcome.QtyVariancePercent).
		Msg("invoice match completed")

	return outcome, nil
}

// checkDuplicate looks for another invoice with the same vendor and invoice
// number.
func (s *MatchService) checkDuplicate(ctx context.Context, q database.Querier, inv *repository.Invoice, outcome *MatchOutcome) error {
	dup, err := s.invoices.HasDuplicate(ctx, q, inv.CompanyID, inv.VendorID, inv.Number, inv.ID)
	if err != nil {
		return err
	}
	outcome.DuplicateFound = dup
	if dup {
		outcome.MatchPassed = false
	}

	detail := "no duplicate invoice found"
	if dup {
		detail = fmt.Sprintf("another invoice with number %s exists for vendor %s", inv.Number, inv.VendorID)
	}
	return s.record(ctx, q, outcome, &repository.MatchResult{
		InvoiceID: inv.ID,
		CheckType: repository.CheckDuplicate,
		Passed:    !dup,
		Detail:    detail,
	})
}

// checkTwoWay compares invoice total against PO total. Passes within the
// price tolerance. A zero PO total yields zero variance.
func (s *MatchService) checkTwoWay(ctx context.Context, q database.Querier, inv *repository.Invoice, po *repository.PurchaseOrder, outcome *MatchOutcome) error {
	var variance float64
	if po.TotalAmount != 0 {
		variance = math.Abs(float64(inv.TotalAmount-po.TotalAmount)) / float64(po.TotalAmount) * 100
	}
	passed := variance <= priceTolerancePercent

	outcome.PriceVariancePercent = variance
	if !passed {
		outcome.MatchPassed = false
	}

	return s.record(ctx, q, outcome, &repository.MatchResult{
		InvoiceID:        inv.ID,
		CheckType:        repository.CheckTwoWay,
		Passed:           passed,
		TolerancePercent: priceTolerancePercent,
		VariancePercent:  variance,
		Detail: fmt.Sprintf("invoice total %d vs PO total %d: variance %.2f%%",
			inv.TotalAmount, po.TotalAmount, variance),
	})
}

// checkThreeWay compares invoiced quantity per PO line against accepted
// receipt quantity across posted receipts. The invoice's overall quantity
// variance is the maximum line-level variance.
func (s *MatchService) checkThreeWay(ctx context.Context, q database.Querier, inv *repository.Invoice, po *repository.PurchaseOrder, outcome *MatchOutcome) error {
	invoicedByLine := make(map[string]float64)
	for _, line := range inv.Lines {
		if line.PurchaseOrderLineID != nil {
			invoicedByLine[*line.PurchaseOrderLineID] += line.Quantity
		}
	}

	var maxVariance float64
	var checkedLines int
	for _, poLine := range po.Lines {
		invoiced, ok := invoicedByLine[poLine.ID]
		if !ok {
			continue
		}
		checkedLines++

		received, err := s.receipts.SumAcceptedQuantity(ctx, q, poLine.ID)
		if err != nil {
			return err
		}

		var variance float64
		switch {
		case received == 0 && invoiced > 0:
			variance = 100
		case received == 0:
			variance = 0
		default:
			variance = math.Abs(invoiced-received) / received * 100
		}
		if variance > maxVariance {
			maxVariance = variance
		}
	}

	passed := maxVariance <= qtyTolerancePercent

	outcome.QtyVariancePercent = maxVariance
	if !passed {
		outcome.MatchPassed = false
	}

	return s.record(ctx, q, outcome, &repository.MatchResult{
		InvoiceID:        inv.ID,
		CheckType:        repository.CheckThreeWay,
		Passed:           passed,
		TolerancePercent: qtyTolerancePercent,
		VariancePercent:  maxVariance,
		Detail: fmt.Sprintf("checked %d PO lines against posted receipts: max quantity variance %.2f%%",
			checkedLines, maxVariance),
	})
}

// ListResults returns the persisted check results for an invoice.
func (s *MatchService) ListResults(ctx context.Context, q database.Querier, invoiceID string) ([]*repository.MatchResult, error) {
	return s.results.ListByInvoice(ctx, q, invoiceID)
}

func (s *MatchService) record(ctx context.Context, q database.Querier, outcome *MatchOutcome, res *repository.MatchResult) error {
	if err := s.results.InsertResult(ctx, q, res); err != nil {
		return err
	}
	outcome.Results = append(outcome.Results, res)
	return nil
}
