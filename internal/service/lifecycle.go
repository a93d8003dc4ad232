package service

// Rule outcome action tags. Rules are free to carry any action; these are the
// ones the lifecycle protocols react to.
const (
	actionAutoApprove           = "AUTO_APPROVE"
	actionAutoReject            = "AUTO_REJECT"
	actionManualReview          = "MANUAL_REVIEW"
	actionAutoApproveForPayment = "AUTO_APPROVE_FOR_PAYMENT"
	actionRouteException        = "ROUTE_EXCEPTION"
)

// Workflow types, one per entity lifecycle that can require human sign-off.
const (
	workflowVendorOnboarding    = "VENDOR_ONBOARDING"
	workflowRequisitionApproval = "REQUISITION_APPROVAL"
	workflowInvoiceApproval     = "INVOICE_APPROVAL"
	workflowPaymentBatchRelease = "PAYMENT_BATCH_RELEASE"
)

// amountUnits converts integer cents to the major-unit value rule facts carry.
func amountUnits(cents int64) float64 {
	return float64(cents) / 100
}

// outcomeRoles extracts approver roles from a rule outcome, falling back when
// the outcome does not name any.
func outcomeRoles(outcome map[string]any, fallback []string) []string {
	raw, ok := outcome["approverRoles"].([]any)
	if !ok || len(raw) == 0 {
		return fallback
	}
	roles := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok && s != "" {
			roles = append(roles, s)
		}
	}
	if len(roles) == 0 {
		return fallback
	}
	return roles
}
