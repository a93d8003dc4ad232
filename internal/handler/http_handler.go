package handler

import (
	"encoding/json"
	"net/http"

	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
	"github.com/pesio-ai/be-p2p-core/internal/service"
)

// HTTPHandler exposes the procure-to-pay lifecycle operations over JSON.
type HTTPHandler struct {
	vendors      *service.VendorService
	requisitions *service.RequisitionService
	orders       *service.PurchaseOrderService
	receipts     *service.ReceiptService
	invoices     *service.InvoiceService
	payments     *service.PaymentService
	approvals    *service.ApprovalService
	log          *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	vendors *service.VendorService,
	requisitions *service.RequisitionService,
	orders *service.PurchaseOrderService,
	receipts *service.ReceiptService,
	invoices *service.InvoiceService,
	payments *service.PaymentService,
	approvals *service.ApprovalService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		vendors:      vendors,
		requisitions: requisitions,
		orders:       orders,
		receipts:     receipts,
		invoices:     invoices,
		payments:     payments,
		approvals:    approvals,
		log:          log,
	}
}

// RegisterRoutes attaches all lifecycle endpoints to mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("POST /api/v1/vendors/{id}/submit", h.SubmitVendor)
	mux.HandleFunc("POST /api/v1/vendors/{id}/block", h.BlockVendor)
	mux.HandleFunc("GET /api/v1/vendors/{id}", h.GetVendor)

	mux.HandleFunc("POST /api/v1/requisitions", h.CreateRequisition)
	mux.HandleFunc("POST /api/v1/requisitions/{id}/submit", h.SubmitRequisition)
	mux.HandleFunc("GET /api/v1/requisitions/{id}", h.GetRequisition)

	mux.HandleFunc("POST /api/v1/purchase-orders", h.CreatePurchaseOrder)
	mux.HandleFunc("POST /api/v1/purchase-orders/{id}/issue", h.IssuePurchaseOrder)
	mux.HandleFunc("GET /api/v1/purchase-orders/{id}", h.GetPurchaseOrder)

	mux.HandleFunc("POST /api/v1/receipts", h.PostReceipt)

	mux.HandleFunc("POST /api/v1/invoices", h.CreateInvoice)
	mux.HandleFunc("POST /api/v1/invoices/{id}/match", h.MatchInvoice)
	mux.HandleFunc("GET /api/v1/invoices/{id}", h.GetInvoice)
	mux.HandleFunc("GET /api/v1/invoices/{id}/match-results", h.GetMatchResults)

	mux.HandleFunc("POST /api/v1/payment-batches", h.CreatePaymentBatch)
	mux.HandleFunc("POST /api/v1/payment-batches/{id}/approve", h.ApprovePaymentBatch)
	mux.HandleFunc("POST /api/v1/payment-batches/{id}/execute", h.ExecutePaymentBatch)
	mux.HandleFunc("GET /api/v1/payment-batches/{id}", h.GetPaymentBatch)

	mux.HandleFunc("POST /api/v1/approval-tasks/{id}/decide", h.DecideTask)
	mux.HandleFunc("POST /api/v1/workflows/{id}/cancel", h.CancelWorkflow)
	mux.HandleFunc("GET /api/v1/approval-tasks", h.ListPendingTasks)
	mux.HandleFunc("GET /api/v1/workflows/{id}/tasks", h.ListWorkflowTasks)
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── Vendors ──────────────────────────────────────────────────────────────────

// SubmitVendor submits a registered vendor for onboarding review.
func (h *HTTPHandler) SubmitVendor(w http.ResponseWriter, r *http.Request) {
	vendor, err := h.vendors.SubmitVendor(r.Context(), service.SubmitVendorRequest{
		CompanyID: companyID(r),
		VendorID:  r.PathValue("id"),
		ActorID:   actorID(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, vendor)
}

// BlockVendor blocks a vendor from payment.
func (h *HTTPHandler) BlockVendor(w http.ResponseWriter, r *http.Request) {
	if err := h.vendors.BlockVendor(r.Context(), companyID(r), r.PathValue("id"), actorID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "BLOCKED"})
}

// GetVendor returns one vendor.
func (h *HTTPHandler) GetVendor(w http.ResponseWriter, r *http.Request) {
	vendor, err := h.vendors.GetVendor(r.Context(), companyID(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, vendor)
}

// ── Requisitions ─────────────────────────────────────────────────────────────

// CreateRequisition creates a draft requisition.
func (h *HTTPHandler) CreateRequisition(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequisitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	req.CompanyID = companyID(r)
	if req.RequestedBy == "" {
		req.RequestedBy = actorID(r)
	}

	requisition, err := h.requisitions.CreateRequisition(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, requisition)
}

// SubmitRequisition submits a draft requisition for approval.
func (h *HTTPHandler) SubmitRequisition(w http.ResponseWriter, r *http.Request) {
	requisition, err := h.requisitions.SubmitRequisition(r.Context(), companyID(r), r.PathValue("id"), actorID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, requisition)
}

// GetRequisition returns one requisition with its lines.
func (h *HTTPHandler) GetRequisition(w http.ResponseWriter, r *http.Request) {
	requisition, err := h.requisitions.GetRequisition(r.Context(), companyID(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, requisition)
}

// ── Purchase orders ──────────────────────────────────────────────────────────

// CreatePurchaseOrder builds a draft PO from an approved requisition.
func (h *HTTPHandler) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateFromRequisitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	req.CompanyID = companyID(r)
	req.ActorID = actorID(r)

	po, err := h.orders.CreateFromRequisition(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, po)
}

// IssuePurchaseOrder issues a PO, committing its budget.
func (h *HTTPHandler) IssuePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.orders.IssuePurchaseOrder(r.Context(), companyID(r), r.PathValue("id"), actorID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, po)
}

// GetPurchaseOrder returns one PO with its lines.
func (h *HTTPHandler) GetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.orders.GetPurchaseOrder(r.Context(), companyID(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, po)
}

// ── Receipts ─────────────────────────────────────────────────────────────────

// PostReceipt records a goods receipt against a PO.
func (h *HTTPHandler) PostReceipt(w http.ResponseWriter, r *http.Request) {
	var req service.PostReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	req.CompanyID = companyID(r)
	if req.ReceivedBy == "" {
		req.ReceivedBy = actorID(r)
	}

	receipt, err := h.receipts.PostReceipt(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, receipt)
}

// ── Invoices ─────────────────────────────────────────────────────────────────

// CreateInvoice registers a received vendor invoice.
func (h *HTTPHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req service.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	req.CompanyID = companyID(r)

	invoice, err := h.invoices.CreateInvoice(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, invoice)
}

// MatchInvoice runs the matching protocol on an invoice.
func (h *HTTPHandler) MatchInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.invoices.MatchInvoice(r.Context(), companyID(r), r.PathValue("id"), actorID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, invoice)
}

// GetInvoice returns one invoice with its lines.
func (h *HTTPHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.invoices.GetInvoice(r.Context(), companyID(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, invoice)
}

// GetMatchResults returns the persisted match check results for an invoice.
func (h *HTTPHandler) GetMatchResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.invoices.GetMatchResults(r.Context(), companyID(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, results)
}

// ── Payment batches ──────────────────────────────────────────────────────────

// CreatePaymentBatch groups approved invoices into a payment batch.
func (h *HTTPHandler) CreatePaymentBatch(w http.ResponseWriter, r *http.Request) {
	var req service.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	req.CompanyID = companyID(r)
	if req.CreatedBy == "" {
		req.CreatedBy = actorID(r)
	}

	batch, err := h.payments.CreateBatch(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, batch)
}

// ApprovePaymentBatch approves a batch for execution.
func (h *HTTPHandler) ApprovePaymentBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.payments.ApproveBatch(r.Context(), companyID(r), r.PathValue("id"), actorID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "APPROVED"})
}

// ExecutePaymentBatch settles an approved batch.
func (h *HTTPHandler) ExecutePaymentBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.payments.ExecuteBatch(r.Context(), companyID(r), r.PathValue("id"), actorID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, batch)
}

// GetPaymentBatch returns one batch with its payments.
func (h *HTTPHandler) GetPaymentBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.payments.GetBatch(r.Context(), companyID(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, batch)
}

// ── Approvals ────────────────────────────────────────────────────────────────

// DecideTaskRequest carries a human decision on an approval task.
type DecideTaskRequest struct {
	Decision string  `json:"decision"`
	Reason   *string `json:"reason,omitempty"`
}

// DecideTask applies an approval decision to a pending task.
func (h *HTTPHandler) DecideTask(w http.ResponseWriter, r *http.Request) {
	var req DecideTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	inst, err := h.approvals.Decide(r.Context(), r.PathValue("id"),
		repository.Decision(req.Decision), req.Reason, actorID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inst)
}

// CancelWorkflow cancels an open workflow instance.
func (h *HTTPHandler) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.approvals.Cancel(r.Context(), r.PathValue("id"), actorID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "CANCELLED"})
}

// ListPendingTasks returns the caller's pending approval tasks.
func (h *HTTPHandler) ListPendingTasks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = actorID(r)
	}
	tasks, err := h.approvals.ListPending(r.Context(), companyID(r), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

// ListWorkflowTasks returns all tasks of one workflow instance.
func (h *HTTPHandler) ListWorkflowTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.approvals.ListTasks(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

// ── helpers ──────────────────────────────────────────────────────────────────

// companyID reads the tenant from the X-Company-ID header. Tenant resolution
// normally happens at the gateway; the header is trusted here.
func companyID(r *http.Request) string {
	return r.Header.Get("X-Company-ID")
}

// actorID reads the acting user from the X-User-ID header.
func actorID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeInvalidState, errors.ErrCodeDuplicate:
		status = http.StatusConflict
	case errors.ErrCodePolicyViolation:
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}

	h.writeJSON(w, status, errorResponse{Code: string(code), Message: err.Error()})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}
