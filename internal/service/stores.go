package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/policy"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// Store interfaces are declared on the consumer side; the pgx repositories
// satisfy them. Every method takes the enclosing unit of work's Querier so a
// whole lifecycle protocol commits or rolls back as one.

// TxRunner opens the single unit of work an orchestration protocol runs in.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(q database.Querier) error) error
}

// BudgetStore is the ledger's persistence surface.
type BudgetStore interface {
	FindActiveLine(ctx context.Context, q database.Querier, companyID, costCenter, category string) (*repository.BudgetLine, error)
	GetLine(ctx context.Context, q database.Querier, lineID string) (*repository.BudgetLine, error)
	ControlMode(ctx context.Context, q database.Querier, companyID string) (string, error)
	InsertTransaction(ctx context.Context, q database.Querier, t *repository.BudgetTransaction) (bool, error)
	AdjustBalance(ctx context.Context, q database.Querier, lineID string, txnType repository.TxnType, amount int64) error
}

// PolicyStore loads active rules for evaluation.
type PolicyStore interface {
	ListActiveRules(ctx context.Context, q database.Querier, companyID string, scope repository.EntityType, at time.Time) ([]policy.Rule, error)
}

// WorkflowStore persists workflow instances and approval tasks.
type WorkflowStore interface {
	CreateInstance(ctx context.Context, q database.Querier, inst *repository.WorkflowInstance) error
	GetInstance(ctx context.Context, q database.Querier, id string) (*repository.WorkflowInstance, error)
	FindActiveByEntity(ctx context.Context, q database.Querier, entityType repository.EntityType, entityID string) (*repository.WorkflowInstance, error)
	UpdateInstanceStatus(ctx context.Context, q database.Querier, id string, status repository.WorkflowStatus, completedAt *time.Time) error
	CreateTask(ctx context.Context, q database.Querier, task *repository.ApprovalTask) error
	GetTask(ctx context.Context, q database.Querier, id string) (*repository.ApprovalTask, error)
	ListTasks(ctx context.Context, q database.Querier, instanceID string) ([]*repository.ApprovalTask, error)
	ListPendingTasksForUser(ctx context.Context, q database.Querier, companyID, userID string) ([]*repository.ApprovalTask, error)
	UpdateTaskDecision(ctx context.Context, q database.Querier, taskID string, status repository.TaskStatus, decision, reason *string) error
	SkipPendingTasks(ctx context.Context, q database.Querier, instanceID string) error
}

// IdentityStore resolves task assignees.
type IdentityStore interface {
	FindActiveUserWithRole(ctx context.Context, q database.Querier, companyID, roleCode string) (*string, error)
}

// VendorStore reads vendors and applies status transitions.
type VendorStore interface {
	Get(ctx context.Context, q database.Querier, companyID, id string) (*repository.Vendor, error)
	UpdateStatus(ctx context.Context, q database.Querier, companyID, id string, status repository.VendorStatus) error
}

// RequisitionStore persists requisitions.
type RequisitionStore interface {
	Create(ctx context.Context, q database.Querier, req *repository.Requisition) error
	GetWithLines(ctx context.Context, q database.Querier, companyID, id string) (*repository.Requisition, error)
	UpdateStatus(ctx context.Context, q database.Querier, companyID, id string, status repository.RequisitionStatus) error
	SetLineBudget(ctx context.Context, q database.Querier, lineID, budgetLineID string) error
}

// PurchaseOrderStore persists purchase orders.
type PurchaseOrderStore interface {
	Create(ctx context.Context, q database.Querier, po *repository.PurchaseOrder) error
	GetWithLines(ctx context.Context, q database.Querier, companyID, id string) (*repository.PurchaseOrder, error)
	UpdateStatus(ctx context.Context, q database.Querier, companyID, id string, status repository.PurchaseOrderStatus) error
	AddReceivedQuantity(ctx context.Context, q database.Querier, lineID string, qty float64) error
}

// ReceiptStore persists goods receipts.
type ReceiptStore interface {
	Create(ctx context.Context, q database.Querier, rec *repository.Receipt) error
	SumAcceptedQuantity(ctx context.Context, q database.Querier, poLineID string) (float64, error)
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	Create(ctx context.Context, q database.Querier, inv *repository.Invoice) error
	GetWithLines(ctx context.Context, q database.Querier, companyID, id string) (*repository.Invoice, error)
	HasDuplicate(ctx context.Context, q database.Querier, companyID, vendorID, number, excludeID string) (bool, error)
	UpdateStatus(ctx context.Context, q database.Querier, companyID, id string, status repository.InvoiceStatus) error
}

// MatchStore persists invoice match check results.
type MatchStore interface {
	InsertResult(ctx context.Context, q database.Querier, res *repository.MatchResult) error
	ListByInvoice(ctx context.Context, q database.Querier, invoiceID string) ([]*repository.MatchResult, error)
}

// PaymentStore persists payment batches.
type PaymentStore interface {
	CreateBatch(ctx context.Context, q database.Querier, batch *repository.PaymentBatch) error
	GetBatch(ctx context.Context, q database.Querier, companyID, id string) (*repository.PaymentBatch, error)
	UpdateBatchStatus(ctx context.Context, q database.Querier, companyID, id string, status repository.PaymentBatchStatus) error
	MarkPaymentsProcessed(ctx context.Context, q database.Querier, batchID string) error
}

// ── External collaborators ───────────────────────────────────────────────────

// AuditEvent is one lifecycle transition record for the audit sink.
type AuditEvent struct {
	CompanyID  string
	ActorID    *string
	ActorType  string
	ActionCode string
	EntityType repository.EntityType
	EntityID   string
	Payload    map[string]any
}

// AuditSink records lifecycle transitions. Implementations are best-effort
// side channels; the core never depends on audit success.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent)
}

// DocumentNumberer produces human-readable document codes. The core treats
// the result as an opaque unique string.
type DocumentNumberer interface {
	Generate(ctx context.Context, prefix, entityKind, companyID string) (string, error)
}

// InventorySink posts inventory movements for received goods. Balance
// bookkeeping itself happens outside the core.
type InventorySink interface {
	PostMovement(ctx context.Context, q database.Querier, companyID, poLineID string, quantity float64) error
}
