package repository

import (
	"time"

	"github.com/pesio-ai/be-p2p-core/internal/policy"
)

// ── Status enums ─────────────────────────────────────────────────────────────

// TxnType classifies a budget journal entry.
type TxnType string

const (
	TxnPreEncumbrance TxnType = "PRE_ENCUMBRANCE"
	TxnEncumbrance    TxnType = "ENCUMBRANCE"
	TxnActual         TxnType = "ACTUAL"
	TxnRelease        TxnType = "RELEASE"
)

// SourceType identifies the document kind that produced a journal entry.
type SourceType string

const (
	SourceRequisition   SourceType = "REQUISITION"
	SourcePurchaseOrder SourceType = "PURCHASE_ORDER"
	SourceInvoice       SourceType = "INVOICE"
	SourcePayment       SourceType = "PAYMENT"
	SourceAdjustment    SourceType = "ADJUSTMENT"
)

// EntityType enumerates the document kinds workflows and policy rules apply to.
type EntityType string

const (
	EntityVendor        EntityType = "VENDOR"
	EntityRequisition   EntityType = "REQUISITION"
	EntityPurchaseOrder EntityType = "PURCHASE_ORDER"
	EntityInvoice       EntityType = "INVOICE"
	EntityPaymentBatch  EntityType = "PAYMENT_BATCH"
)

// WorkflowStatus is the approval workflow instance state.
type WorkflowStatus string

const (
	WorkflowOpen      WorkflowStatus = "OPEN"
	WorkflowEscalated WorkflowStatus = "ESCALATED"
	WorkflowApproved  WorkflowStatus = "APPROVED"
	WorkflowRejected  WorkflowStatus = "REJECTED"
	WorkflowCancelled WorkflowStatus = "CANCELLED"
)

// IsTerminal reports whether no further decisions are accepted.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowApproved || s == WorkflowRejected || s == WorkflowCancelled
}

// TaskStatus is the approval task state.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskSkipped   TaskStatus = "SKIPPED"
)

// Decision is a human action on an approval task.
type Decision string

const (
	DecisionApprove  Decision = "APPROVE"
	DecisionReject   Decision = "REJECT"
	DecisionEscalate Decision = "ESCALATE"
)

// VendorStatus is the vendor lifecycle state.
type VendorStatus string

const (
	VendorRegistered  VendorStatus = "REGISTERED"
	VendorUnderReview VendorStatus = "UNDER_REVIEW"
	VendorApproved    VendorStatus = "APPROVED"
	VendorRejected    VendorStatus = "REJECTED"
	VendorBlocked     VendorStatus = "BLOCKED"
)

// RequisitionStatus is the requisition lifecycle state.
type RequisitionStatus string

const (
	RequisitionDraft     RequisitionStatus = "DRAFT"
	RequisitionSubmitted RequisitionStatus = "SUBMITTED"
	RequisitionApproved  RequisitionStatus = "APPROVED"
	RequisitionRejected  RequisitionStatus = "REJECTED"
)

// PurchaseOrderStatus is the PO lifecycle state.
type PurchaseOrderStatus string

const (
	POStatusDraft             PurchaseOrderStatus = "DRAFT"
	POStatusApproved          PurchaseOrderStatus = "APPROVED"
	POStatusRejected          PurchaseOrderStatus = "REJECTED"
	POStatusIssued            PurchaseOrderStatus = "ISSUED"
	POStatusPartiallyReceived PurchaseOrderStatus = "PARTIALLY_RECEIVED"
	POStatusReceived          PurchaseOrderStatus = "RECEIVED"
)

// MatchType selects how an invoice is reconciled against its PO.
type MatchType string

const (
	MatchTwoWay   MatchType = "2WAY"
	MatchThreeWay MatchType = "3WAY"
)

// InvoiceStatus is the invoice lifecycle state.
type InvoiceStatus string

const (
	InvoiceReceived           InvoiceStatus = "RECEIVED"
	InvoiceUnderReview        InvoiceStatus = "UNDER_REVIEW"
	InvoiceMatched            InvoiceStatus = "MATCHED"
	InvoiceException          InvoiceStatus = "EXCEPTION"
	InvoiceApprovedForPayment InvoiceStatus = "APPROVED_FOR_PAYMENT"
	InvoiceRejected           InvoiceStatus = "REJECTED"
	InvoicePaid               InvoiceStatus = "PAID"
)

// ReceiptStatus is the goods receipt state.
type ReceiptStatus string

const (
	ReceiptDraft  ReceiptStatus = "DRAFT"
	ReceiptPosted ReceiptStatus = "POSTED"
)

// PaymentBatchStatus is the payment batch lifecycle state.
type PaymentBatchStatus string

const (
	BatchDraft           PaymentBatchStatus = "DRAFT"
	BatchPendingApproval PaymentBatchStatus = "PENDING_APPROVAL"
	BatchApproved        PaymentBatchStatus = "APPROVED"
	BatchProcessing      PaymentBatchStatus = "PROCESSING"
	BatchCompleted       PaymentBatchStatus = "COMPLETED"
	BatchRejected        PaymentBatchStatus = "REJECTED"
)

// PaymentStatus is the state of one vendor payment inside a batch.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentProcessed PaymentStatus = "PROCESSED"
)

// MatchCheckType identifies one executed invoice match check.
type MatchCheckType string

const (
	CheckDuplicate MatchCheckType = "DUPLICATE"
	CheckTwoWay    MatchCheckType = "TWO_WAY"
	CheckThreeWay  MatchCheckType = "THREE_WAY"
)

// ── Budget ledger ────────────────────────────────────────────────────────────

// BudgetLine tracks committed and consumed amounts against an allocation for
// one (budget, cost center, spend category) triple. Amounts are integer cents.
// Available spend is always derived, never stored.
type BudgetLine struct {
	ID          string
	CompanyID   string
	BudgetID    string
	CostCenter  string
	Category    string
	Allocated   int64
	Committed   int64
	Consumed    int64
	ControlMode string // HARD_STOP | ADVISORY
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available returns the authoritative spendable amount.
func (l *BudgetLine) Available() int64 {
	return l.Allocated - l.Committed - l.Consumed
}

// BudgetTransaction is one immutable journal entry. The tuple
// (BudgetLineID, SourceType, SourceID, TxnType) is unique; replays of the
// same lifecycle step never double-count.
type BudgetTransaction struct {
	ID           string
	BudgetLineID string
	TxnType      TxnType
	SourceType   SourceType
	SourceID     string
	Amount       int64
	CreatedAt    time.Time
}

// ── Policy rules ─────────────────────────────────────────────────────────────

// PolicyRule is a stored decisioning rule. Expression and Outcome are JSONB
// columns; lifecycle management (creation, deactivation) is external.
type PolicyRule struct {
	ID         string
	CompanyID  string
	Code       string
	Scope      EntityType
	Priority   int
	IsActive   bool
	ValidFrom  *time.Time
	ValidTo    *time.Time
	Expression policy.Expression
	Outcome    map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ── Approval workflow ────────────────────────────────────────────────────────

// WorkflowInstance is one approval workflow over a document. At most one
// non-terminal instance exists per (EntityType, EntityID); a partial unique
// index enforces it.
type WorkflowInstance struct {
	ID           string
	CompanyID    string
	EntityType   EntityType
	EntityID     string
	WorkflowType string
	Status       WorkflowStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ApprovalTask is one step of a workflow instance. StepNo is unique within
// the instance; escalation appends tasks with continuing step numbers.
type ApprovalTask struct {
	ID                 string
	WorkflowInstanceID string
	StepNo             int
	AssigneeUserID     *string
	AssigneeRoleCode   string
	Status             TaskStatus
	Decision           *string
	DecisionReason     *string
	SLADueAt           time.Time
	DecidedAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ── Documents ────────────────────────────────────────────────────────────────

// Vendor carries the onboarding facts the VENDOR rule scope evaluates.
type Vendor struct {
	ID                  string
	CompanyID           string
	Code                string
	Name                string
	Status              VendorStatus
	RiskScore           int
	SanctionsHit        bool
	BankAccountVerified bool
	TaxIDVerified       bool
	MissingDocuments    int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Requisition is a purchase request. Amounts are integer cents.
type Requisition struct {
	ID          string
	CompanyID   string
	Number      string
	VendorID    string
	Status      RequisitionStatus
	TotalAmount int64
	RequestedBy string
	Lines       []*RequisitionLine
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RequisitionLine is one requested item. BudgetLineID is resolved at
// submission time and kept so later releases hit the same line.
type RequisitionLine struct {
	ID            string
	RequisitionID string
	LineNo        int
	Description   string
	CostCenter    string
	Category      string
	Quantity      float64
	UnitPrice     int64
	LineTotal     int64
	BudgetLineID  *string
}

// PurchaseOrder is an issued commitment to a vendor.
type PurchaseOrder struct {
	ID            string
	CompanyID     string
	Number        string
	VendorID      string
	RequisitionID *string
	Status        PurchaseOrderStatus
	MatchType     MatchType
	TotalAmount   int64
	Lines         []*PurchaseOrderLine
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PurchaseOrderLine is one ordered item. ReceivedQuantity accumulates from
// posted receipts.
type PurchaseOrderLine struct {
	ID                string
	PurchaseOrderID   string
	LineNo            int
	RequisitionLineID *string
	Description       string
	CostCenter        string
	Category          string
	Quantity          float64
	UnitPrice         int64
	LineTotal         int64
	ReceivedQuantity  float64
	TrackInventory    bool
}

// Receipt records goods received against a PO.
type Receipt struct {
	ID              string
	CompanyID       string
	Number          string
	PurchaseOrderID string
	Status          ReceiptStatus
	ReceivedBy      string
	Lines           []*ReceiptLine
	CreatedAt       time.Time
}

// ReceiptLine records received and accepted quantity for one PO line.
type ReceiptLine struct {
	ID                  string
	ReceiptID           string
	PurchaseOrderLineID string
	Quantity            float64
	AcceptedQuantity    float64
}

// Invoice is a vendor invoice. Number is the vendor's invoice number; it is
// unique per vendor within a company.
type Invoice struct {
	ID              string
	CompanyID       string
	Number          string
	VendorID        string
	PurchaseOrderID *string
	Status          InvoiceStatus
	TotalAmount     int64
	Lines           []*InvoiceLine
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InvoiceLine is one invoiced item, optionally tied to a PO line for 3-way
// matching.
type InvoiceLine struct {
	ID                  string
	InvoiceID           string
	LineNo              int
	PurchaseOrderLineID *string
	Description         string
	CostCenter          string
	Category            string
	Quantity            float64
	UnitPrice           int64
	LineTotal           int64
}

// MatchResult is one persisted invoice match check outcome.
type MatchResult struct {
	ID               string
	InvoiceID        string
	CheckType        MatchCheckType
	Passed           bool
	TolerancePercent float64
	VariancePercent  float64
	Detail           string
	CreatedAt        time.Time
}

// PaymentBatch groups approved invoices into one payment per vendor.
type PaymentBatch struct {
	ID          string
	CompanyID   string
	Number      string
	Status      PaymentBatchStatus
	TotalAmount int64
	CreatedBy   string
	Payments    []*Payment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Payment is one vendor payment inside a batch.
type Payment struct {
	ID          string
	BatchID     string
	VendorID    string
	Amount      int64
	Reference   string
	Status      PaymentStatus
	Allocations []*PaymentAllocation
}

// PaymentAllocation ties part of a payment to one invoice.
type PaymentAllocation struct {
	ID        string
	PaymentID string
	InvoiceID string
	Amount    int64
}
