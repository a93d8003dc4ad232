package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/policy"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// In-memory fakes for the store interfaces. They reproduce the persistence
// semantics the services rely on (journal tuple uniqueness, balance floors,
// status filters) without a database.

var idSeq int

func newID(prefix string) string {
	idSeq++
	return fmt.Sprintf("%s-%04d", prefix, idSeq)
}

// fakeTx satisfies TxRunner without any transactional behavior.
type fakeTx struct{}

func (fakeTx) InTransaction(_ context.Context, fn func(q database.Querier) error) error {
	return fn(nil)
}

// ── Budget ───────────────────────────────────────────────────────────────────

type journalKey struct {
	lineID     string
	sourceType repository.SourceType
	sourceID   string
	txnType    repository.TxnType
}

type fakeBudgetStore struct {
	lines       map[string]*repository.BudgetLine
	journal     map[journalKey]int64
	controlMode string
}

func newFakeBudgetStore() *fakeBudgetStore {
	return &fakeBudgetStore{
		lines:       make(map[string]*repository.BudgetLine),
		journal:     make(map[journalKey]int64),
		controlMode: "HARD_STOP",
	}
}

func (s *fakeBudgetStore) addLine(costCenter, category string, allocated int64) *repository.BudgetLine {
	line := &repository.BudgetLine{
		ID:          newID("bl"),
		CompanyID:   "co-1",
		CostCenter:  costCenter,
		Category:    category,
		Allocated:   allocated,
		ControlMode: s.controlMode,
	}
	s.lines[line.ID] = line
	return line
}

func (s *fakeBudgetStore) FindActiveLine(_ context.Context, _ database.Querier, _, costCenter, category string) (*repository.BudgetLine, error) {
	for _, line := range s.lines {
		if line.CostCenter == costCenter && line.Category == category {
			return line, nil
		}
	}
	return nil, nil
}

func (s *fakeBudgetStore) GetLine(_ context.Context, _ database.Querier, lineID string) (*repository.BudgetLine, error) {
	line, ok := s.lines[lineID]
	if !ok {
		return nil, errors.NotFound("budget_line", lineID)
	}
	return line, nil
}

func (s *fakeBudgetStore) ControlMode(_ context.Context, _ database.Querier, _ string) (string, error) {
	return s.controlMode, nil
}

func (s *fakeBudgetStore) InsertTransaction(_ context.Context, _ database.Querier, t *repository.BudgetTransaction) (bool, error) {
	key := journalKey{t.BudgetLineID, t.SourceType, t.SourceID, t.TxnType}
	if _, exists := s.journal[key]; exists {
		return false, nil
	}
	s.journal[key] = t.Amount
	return true, nil
}

func (s *fakeBudgetStore) AdjustBalance(_ context.Context, _ database.Querier, lineID string, txnType repository.TxnType, amount int64) error {
	line, ok := s.lines[lineID]
	if !ok {
		return errors.NotFound("budget_line", lineID)
	}
	switch txnType {
	case repository.TxnPreEncumbrance, repository.TxnEncumbrance:
		line.Committed += amount
	case repository.TxnActual:
		line.Consumed += amount
	case repository.TxnRelease:
		line.Committed -= amount
		if line.Committed < 0 {
			line.Committed = 0
		}
	}
	return nil
}

// ── Policy ───────────────────────────────────────────────────────────────────

type fakePolicyStore struct {
	rules map[repository.EntityType][]policy.Rule
}

func newFakePolicyStore() *fakePolicyStore {
	return &fakePolicyStore{rules: make(map[repository.EntityType][]policy.Rule)}
}

func (s *fakePolicyStore) addRule(scope repository.EntityType, rule policy.Rule) {
	s.rules[scope] = append(s.rules[scope], rule)
}

func (s *fakePolicyStore) ListActiveRules(_ context.Context, _ database.Querier, _ string, scope repository.EntityType, _ time.Time) ([]policy.Rule, error) {
	rules := append([]policy.Rule(nil), s.rules[scope]...)
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].Code < rules[j].Code
	})
	return rules, nil
}

// ── Workflow ─────────────────────────────────────────────────────────────────

type fakeWorkflowStore struct {
	instances map[string]*repository.WorkflowInstance
	tasks     map[string]*repository.ApprovalTask
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{
		instances: make(map[string]*repository.WorkflowInstance),
		tasks:     make(map[string]*repository.ApprovalTask),
	}
}

func (s *fakeWorkflowStore) CreateInstance(_ context.Context, _ database.Querier, inst *repository.WorkflowInstance) error {
	inst.ID = newID("wf")
	inst.CreatedAt = time.Now()
	inst.UpdatedAt = inst.CreatedAt
	s.instances[inst.ID] = inst
	return nil
}

func (s *fakeWorkflowStore) GetInstance(_ context.Context, _ database.Querier, id string) (*repository.WorkflowInstance, error) {
	inst, ok := s.instances[id]
	if !ok {
		return nil, errors.NotFound("workflow_instance", id)
	}
	return inst, nil
}

func (s *fakeWorkflowStore) FindActiveByEntity(_ context.Context, _ database.Querier, entityType repository.EntityType, entityID string) (*repository.WorkflowInstance, error) {
	for _, inst := range s.instances {
		if inst.EntityType == entityType && inst.EntityID == entityID && !inst.Status.IsTerminal() {
			return inst, nil
		}
	}
	return nil, nil
}

func (s *fakeWorkflowStore) UpdateInstanceStatus(_ context.Context, _ database.Querier, id string, status repository.WorkflowStatus, completedAt *time.Time) error {
	inst, ok := s.instances[id]
	if !ok {
		return errors.NotFound("workflow_instance", id)
	}
	inst.Status = status
	inst.CompletedAt = completedAt
	return nil
}

func (s *fakeWorkflowStore) CreateTask(_ context.Context, _ database.Querier, task *repository.ApprovalTask) error {
	task.ID = newID("task")
	task.CreatedAt = time.Now()
	s.tasks[task.ID] = task
	return nil
}

func (s *fakeWorkflowStore) GetTask(_ context.Context, _ database.Querier, id string) (*repository.ApprovalTask, error) {
	task, ok := s.tasks[id]
	if !ok {
		return nil, errors.NotFound("approval_task", id)
	}
	return task, nil
}

func (s *fakeWorkflowStore) ListTasks(_ context.Context, _ database.Querier, instanceID string) ([]*repository.ApprovalTask, error) {
	var tasks []*repository.ApprovalTask
	for _, task := range s.tasks {
		if task.WorkflowInstanceID == instanceID {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].StepNo < tasks[j].StepNo })
	return tasks, nil
}

func (s *fakeWorkflowStore) ListPendingTasksForUser(_ context.Context, _ database.Querier, _, userID string) ([]*repository.ApprovalTask, error) {
	var tasks []*repository.ApprovalTask
	for _, task := range s.tasks {
		if task.Status == repository.TaskPending && task.AssigneeUserID != nil && *task.AssigneeUserID == userID {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].SLADueAt.Before(tasks[j].SLADueAt) })
	return tasks, nil
}

func (s *fakeWorkflowStore) UpdateTaskDecision(_ context.Context, _ database.Querier, taskID string, status repository.TaskStatus, decision, reason *string) error {
	task, ok := s.tasks[taskID]
	if !ok {
		return errors.NotFound("approval_task", taskID)
	}
	now := time.Now()
	task.Status = status
	task.Decision = decision
	task.DecisionReason = reason
	task.DecidedAt = &now
	return nil
}

func (s *fakeWorkflowStore) SkipPendingTasks(_ context.Context, _ database.Querier, instanceID string) error {
	for _, task := range s.tasks {
		if task.WorkflowInstanceID == instanceID && task.Status == repository.TaskPending {
			task.Status = repository.TaskSkipped
		}
	}
	return nil
}

// ── Identity ─────────────────────────────────────────────────────────────────

type fakeIdentityStore struct {
	usersByRole map[string]string
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{usersByRole: make(map[string]string)}
}

func (s *fakeIdentityStore) FindActiveUserWithRole(_ context.Context, _ database.Querier, _, roleCode string) (*string, error) {
	userID, ok := s.usersByRole[roleCode]
	if !ok {
		return nil, nil
	}
	return &userID, nil
}

// ── Vendors ──────────────────────────────────────────────────────────────────

type fakeVendorStore struct {
	vendors map[string]*repository.Vendor
}

func newFakeVendorStore() *fakeVendorStore {
	return &fakeVendorStore{vendors: make(map[string]*repository.Vendor)}
}

func (s *fakeVendorStore) add(v *repository.Vendor) *repository.Vendor {
	if v.ID == "" {
		v.ID = newID("ven")
	}
	s.vendors[v.ID] = v
	return v
}

func (s *fakeVendorStore) Get(_ context.Context, _ database.Querier, _, id string) (*repository.Vendor, error) {
	v, ok := s.vendors[id]
	if !ok {
		return nil, errors.NotFound("vendor", id)
	}
	return v, nil
}

func (s *fakeVendorStore) UpdateStatus(_ context.Context, _ database.Querier, _, id string, status repository.VendorStatus) error {
	v, ok := s.vendors[id]
	if !ok {
		return errors.NotFound("vendor", id)
	}
	v.Status = status
	return nil
}

// ── Requisitions ─────────────────────────────────────────────────────────────

type fakeRequisitionStore struct {
	requisitions map[string]*repository.Requisition
}

func newFakeRequisitionStore() *fakeRequisitionStore {
	return &fakeRequisitionStore{requisitions: make(map[string]*repository.Requisition)}
}

func (s *fakeRequisitionStore) Create(_ context.Context, _ database.Querier, req *repository.Requisition) error {
	req.ID = newID("req")
	for _, line := range req.Lines {
		line.ID = newID("reql")
		line.RequisitionID = req.ID
	}
	s.requisitions[req.ID] = req
	return nil
}

func (s *fakeRequisitionStore) GetWithLines(_ context.Context, _ database.Querier, _, id string) (*repository.Requisition, error) {
	req, ok := s.requisitions[id]
	if !ok {
		return nil, errors.NotFound("requisition", id)
	}
	return req, nil
}

func (s *fakeRequisitionStore) UpdateStatus(_ context.Context, _ database.Querier, _, id string, status repository.RequisitionStatus) error {
	req, ok := s.requisitions[id]
	if !ok {
		return errors.NotFound("requisition", id)
	}
	req.Status = status
	return nil
}

func (s *fakeRequisitionStore) SetLineBudget(_ context.Context, _ database.Querier, lineID, budgetLineID string) error {
	for _, req := range s.requisitions {
		for _, line := range req.Lines {
			if line.ID == lineID {
				id := budgetLineID
				line.BudgetLineID = &id
				return nil
			}
		}
	}
	return errors.NotFound("requisition_line", lineID)
}

// ── Purchase orders ──────────────────────────────────────────────────────────

type fakePurchaseOrderStore struct {
	orders map[string]*repository.PurchaseOrder
}

func newFakePurchaseOrderStore() *fakePurchaseOrderStore {
	return &fakePurchaseOrderStore{orders: make(map[string]*repository.PurchaseOrder)}
}

func (s *fakePurchaseOrderStore) Create(_ context.Context, _ database.Querier, po *repository.PurchaseOrder) error {
	po.ID = newID("po")
	for _, line := range po.Lines {
		line.ID = newID("pol")
		line.PurchaseOrderID = po.ID
	}
	s.orders[po.ID] = po
	return nil
}

func (s *fakePurchaseOrderStore) GetWithLines(_ context.Context, _ database.Querier, _, id string) (*repository.PurchaseOrder, error) {
	po, ok := s.orders[id]
	if !ok {
		return nil, errors.NotFound("purchase_order", id)
	}
	// Return detached copies, mirroring repository semantics: callers mutate
	// state through store methods, not through the returned pointers.
	clone := *po
	clone.Lines = make([]*repository.PurchaseOrderLine, len(po.Lines))
	for i, line := range po.Lines {
		lineCopy := *line
		clone.Lines[i] = &lineCopy
	}
	return &clone, nil
}

func (s *fakePurchaseOrderStore) UpdateStatus(_ context.Context, _ database.Querier, _, id string, status repository.PurchaseOrderStatus) error {
	po, ok := s.orders[id]
	if !ok {
		return errors.NotFound("purchase_order", id)
	}
	po.Status = status
	return nil
}

func (s *fakePurchaseOrderStore) AddReceivedQuantity(_ context.Context, _ database.Querier, lineID string, qty float64) error {
	for _, po := range s.orders {
		for _, line := range po.Lines {
			if line.ID == lineID {
				line.ReceivedQuantity += qty
				return nil
			}
		}
	}
	return errors.NotFound("purchase_order_line", lineID)
}

// ── Receipts ─────────────────────────────────────────────────────────────────

type fakeReceiptStore struct {
	receipts []*repository.Receipt
	accepted map[string]float64
}

func newFakeReceiptStore() *fakeReceiptStore {
	return &fakeReceiptStore{accepted: make(map[string]float64)}
}

func (s *fakeReceiptStore) Create(_ context.Context, _ database.Querier, rec *repository.Receipt) error {
	rec.ID = newID("grn")
	for _, line := range rec.Lines {
		line.ID = newID("grnl")
		line.ReceiptID = rec.ID
		if rec.Status == repository.ReceiptPosted {
			s.accepted[line.PurchaseOrderLineID] += line.AcceptedQuantity
		}
	}
	s.receipts = append(s.receipts, rec)
	return nil
}

func (s *fakeReceiptStore) SumAcceptedQuantity(_ context.Context, _ database.Querier, poLineID string) (float64, error) {
	return s.accepted[poLineID], nil
}

// ── Invoices ─────────────────────────────────────────────────────────────────

type fakeInvoiceStore struct {
	invoices map[string]*repository.Invoice
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{invoices: make(map[string]*repository.Invoice)}
}

func (s *fakeInvoiceStore) Create(_ context.Context, _ database.Querier, inv *repository.Invoice) error {
	inv.ID = newID("inv")
	for _, line := range inv.Lines {
		line.ID = newID("invl")
		line.InvoiceID = inv.ID
	}
	s.invoices[inv.ID] = inv
	return nil
}

func (s *fakeInvoiceStore) GetWithLines(_ context.Context, _ database.Querier, _, id string) (*repository.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return nil, errors.NotFound("invoice", id)
	}
	return inv, nil
}

func (s *fakeInvoiceStore) HasDuplicate(_ context.Context, _ database.Querier, _, vendorID, number, excludeID string) (bool, error) {
	for _, inv := range s.invoices {
		if inv.VendorID == vendorID && inv.Number == number && inv.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeInvoiceStore) UpdateStatus(_ context.Context, _ database.Querier, _, id string, status repository.InvoiceStatus) error {
	inv, ok := s.invoices[id]
	if !ok {
		return errors.NotFound("invoice", id)
	}
	inv.Status = status
	return nil
}

// ── Match results ────────────────────────────────────────────────────────────

type fakeMatchStore struct {
	results []*repository.MatchResult
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{}
}

func (s *fakeMatchStore) InsertResult(_ context.Context, _ database.Querier, res *repository.MatchResult) error {
	res.ID = newID("mr")
	s.results = append(s.results, res)
	return nil
}

func (s *fakeMatchStore) ListByInvoice(_ context.Context, _ database.Querier, invoiceID string) ([]*repository.MatchResult, error) {
	var out []*repository.MatchResult
	for _, res := range s.results {
		if res.InvoiceID == invoiceID {
			out = append(out, res)
		}
	}
	return out, nil
}

// ── Payments ─────────────────────────────────────────────────────────────────

type fakePaymentStore struct {
	batches map[string]*repository.PaymentBatch
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{batches: make(map[string]*repository.PaymentBatch)}
}

func (s *fakePaymentStore) CreateBatch(_ context.Context, _ database.Querier, batch *repository.PaymentBatch) error {
	batch.ID = newID("pb")
	for _, payment := range batch.Payments {
		payment.ID = newID("pay")
		payment.BatchID = batch.ID
		for _, alloc := range payment.Allocations {
			alloc.ID = newID("alloc")
			alloc.PaymentID = payment.ID
		}
	}
	s.batches[batch.ID] = batch
	return nil
}

func (s *fakePaymentStore) GetBatch(_ context.Context, _ database.Querier, _, id string) (*repository.PaymentBatch, error) {
	batch, ok := s.batches[id]
	if !ok {
		return nil, errors.NotFound("payment_batch", id)
	}
	return batch, nil
}

func (s *fakePaymentStore) UpdateBatchStatus(_ context.Context, _ database.Querier, _, id string, status repository.PaymentBatchStatus) error {
	batch, ok := s.batches[id]
	if !ok {
		return errors.NotFound("payment_batch", id)
	}
	batch.Status = status
	return nil
}

func (s *fakePaymentStore) MarkPaymentsProcessed(_ context.Context, _ database.Querier, batchID string) error {
	batch, ok := s.batches[batchID]
	if !ok {
		return errors.NotFound("payment_batch", batchID)
	}
	for _, payment := range batch.Payments {
		payment.Status = repository.PaymentProcessed
	}
	return nil
}

// ── Collaborators ────────────────────────────────────────────────────────────

type fakeAuditSink struct {
	events []AuditEvent
}

func (s *fakeAuditSink) Record(_ context.Context, event AuditEvent) {
	s.events = append(s.events, event)
}

type fakeNumberer struct{}

func (fakeNumberer) Generate(_ context.Context, prefix, _, _ string) (string, error) {
	return newID(prefix), nil
}
