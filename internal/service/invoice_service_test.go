package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/policy"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

type invoiceFixture struct {
	svc         *InvoiceService
	budgets     *fakeBudgetStore
	rules       *fakePolicyStore
	workflows   *fakeWorkflowStore
	invoices    *fakeInvoiceStore
	orders      *fakePurchaseOrderStore
	receipts    *fakeReceiptStore
	workflowSvc *WorkflowService
	ledger      *LedgerService
}

func newInvoiceFixture() *invoiceFixture {
	f := &invoiceFixture{
		budgets:   newFakeBudgetStore(),
		rules:     newFakePolicyStore(),
		workflows: newFakeWorkflowStore(),
		invoices:  newFakeInvoiceStore(),
		orders:    newFakePurchaseOrderStore(),
		receipts:  newFakeReceiptStore(),
	}
	log := logger.Nop()
	identity := newFakeIdentityStore()
	identity.usersByRole["FINANCE_MANAGER"] = "user-fm"

	f.ledger = NewLedgerService(f.budgets, log)
	policySvc := NewPolicyService(f.rules, log)
	f.workflowSvc = NewWorkflowService(f.workflows, identity, log)
	matchSvc := NewMatchService(f.invoices, f.orders, f.receipts, newFakeMatchStore(), log)
	f.svc = NewInvoiceService(fakeTx{}, f.invoices, matchSvc, f.ledger,
		policySvc, f.workflowSvc, &fakeAuditSink{}, log)

	f.workflowSvc.SetCompletionHandler(NewApprovalCallbacks(
		newFakeVendorStore(), newFakeRequisitionStore(), f.orders, f.svc,
		newFakePaymentStore(), f.ledger, log))
	return f
}

// addMatchedSetup stores an issued 2-way PO and an invoice against it whose
// totals agree, so the match checks pass.
func (f *invoiceFixture) addMatchedSetup(t *testing.T) (*repository.Invoice, *repository.BudgetLine) {
	t.Helper()
	budgetLine := f.budgets.addLine("CC-100", "SOFTWARE", 500_000)
	budgetLine.Committed = 50_000

	po := &repository.PurchaseOrder{
		CompanyID:   "co-1",
		VendorID:    "ven-1",
		Status:      repository.POStatusIssued,
		MatchType:   repository.MatchTwoWay,
		TotalAmount: 50_000,
		Lines: []*repository.PurchaseOrderLine{
			{LineNo: 1, CostCenter: "CC-100", Category: "SOFTWARE", Quantity: 10, LineTotal: 50_000},
		},
	}
	require.NoError(t, f.orders.Create(context.Background(), nil, po))

	inv, err := f.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		CompanyID:       "co-1",
		Number:          newID("INV"),
		VendorID:        "ven-1",
		PurchaseOrderID: &po.ID,
		Lines: []CreateInvoiceLine{
			{PurchaseOrderLineID: &po.Lines[0].ID, CostCenter: "CC-100", Category: "SOFTWARE", Quantity: 10, UnitPrice: 5_000},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(50_000), inv.TotalAmount)
	return inv, budgetLine
}

func TestCreateInvoice_RejectsDuplicateNumber(t *testing.T) {
	f := newInvoiceFixture()
	ctx := context.Background()

	req := CreateInvoiceRequest{
		CompanyID: "co-1",
		Number:    "INV-2026-001",
		VendorID:  "ven-1",
		Lines:     []CreateInvoiceLine{{Quantity: 1, UnitPrice: 100}},
	}
	_, err := f.svc.CreateInvoice(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.CreateInvoice(ctx, req)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDuplicate, errors.CodeOf(err))
}

func TestMatchInvoice_AutoApproveConsumesBudget(t *testing.T) {
	f := newInvoiceFixture()
	inv, budgetLine := f.addMatchedSetup(t)
	f.rules.addRule(repository.EntityInvoice, policy.Rule{
		Code:       "INV-AUTO",
		Priority:   10,
		Expression: policy.Expression{WhenAll: []string{"matchPassed == true", "duplicateInvoiceFound == false"}},
		Outcome:    map[string]any{"action": "AUTO_APPROVE_FOR_PAYMENT"},
	})

	got, err := f.svc.MatchInvoice(context.Background(), "co-1", inv.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, repository.InvoiceApprovedForPayment, got.Status)
	// The PO encumbrance was released and the invoiced amount consumed.
	assert.Equal(t, int64(0), budgetLine.Committed)
	assert.Equal(t, int64(50_000), budgetLine.Consumed)
	assert.Equal(t, int64(450_000), budgetLine.Available())
}

func TestMatchInvoice_RouteExceptionRule(t *testing.T) {
	f := newInvoiceFixture()
	inv, _ := f.addMatchedSetup(t)
	f.rules.addRule(repository.EntityInvoice, policy.Rule{
		Code:       "INV-EXC",
		Priority:   10,
		Expression: policy.Expression{WhenAny: []string{"matchPassed == true", "matchPassed == false"}},
		Outcome:    map[string]any{"action": "ROUTE_EXCEPTION"},
	})

	got, err := f.svc.MatchInvoice(context.Background(), "co-1", inv.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceException, got.Status)
}

func TestMatchInvoice_ManualReviewOpensWorkflow(t *testing.T) {
	f := newInvoiceFixture()
	inv, _ := f.addMatchedSetup(t)
	f.rules.addRule(repository.EntityInvoice, policy.Rule{
		Code:       "INV-REVIEW",
		Priority:   10,
		Expression: policy.Expression{WhenAll: []string{"matchPassed == true"}},
		Outcome:    map[string]any{"action": "MANUAL_REVIEW"},
	})

	got, err := f.svc.MatchInvoice(context.Background(), "co-1", inv.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceUnderReview, got.Status)

	inst, err := f.workflows.FindActiveByEntity(context.Background(), nil, repository.EntityInvoice, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, inst)
}

func TestMatchInvoice_NoRuleFallsBackToCheckResult(t *testing.T) {
	f := newInvoiceFixture()
	inv, _ := f.addMatchedSetup(t)

	got, err := f.svc.MatchInvoice(context.Background(), "co-1", inv.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceMatched, got.Status)
}

func TestMatchInvoice_FailedMatchBecomesException(t *testing.T) {
	f := newInvoiceFixture()
	inv, _ := f.addMatchedSetup(t)
	inv.TotalAmount = 60_000

	got, err := f.svc.MatchInvoice(context.Background(), "co-1", inv.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, repository.InvoiceException, got.Status)
}

func TestWorkflowApprovalConsumesBudget(t *testing.T) {
	f := newInvoiceFixture()
	inv, budgetLine := f.addMatchedSetup(t)
	f.rules.addRule(repository.EntityInvoice, policy.Rule{
		Code:       "INV-REVIEW",
		Priority:   10,
		Expression: policy.Expression{WhenAll: []string{"matchPassed == true"}},
		Outcome:    map[string]any{"action": "MANUAL_REVIEW"},
	})

	_, err := f.svc.MatchInvoice(context.Background(), "co-1", inv.ID, "user-1")
	require.NoError(t, err)

	inst, _ := f.workflows.FindActiveByEntity(context.Background(), nil, repository.EntityInvoice, inv.ID)
	require.NotNil(t, inst)
	tasks, _ := f.workflows.ListTasks(context.Background(), nil, inst.ID)
	require.NotEmpty(t, tasks)

	_, err = f.workflowSvc.DecideTask(context.Background(), nil, tasks[0].ID, repository.DecisionApprove, nil)
	require.NoError(t, err)

	got, _ := f.invoices.GetWithLines(context.Background(), nil, "co-1", inv.ID)
	assert.Equal(t, repository.InvoiceApprovedForPayment, got.Status)
	assert.Equal(t, int64(0), budgetLine.Committed)
	assert.Equal(t, int64(50_000), budgetLine.Consumed)
}
