package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

type recordingHandler struct {
	approved []string
	rejected []string
}

func (h *recordingHandler) OnWorkflowApproved(_ context.Context, _ database.Querier, _ string, _ repository.EntityType, entityID string) error {
	h.approved = append(h.approved, entityID)
	return nil
}

func (h *recordingHandler) OnWorkflowRejected(_ context.Context, _ database.Querier, _ string, _ repository.EntityType, entityID string) error {
	h.rejected = append(h.rejected, entityID)
	return nil
}

func newWorkflowFixture() (*WorkflowService, *fakeWorkflowStore, *recordingHandler) {
	workflows := newFakeWorkflowStore()
	identity := newFakeIdentityStore()
	identity.usersByRole["FINANCE_MANAGER"] = "user-fm"
	identity.usersByRole["FINANCE_CONTROLLER"] = "user-fc"
	identity.usersByRole["CFO"] = "user-cfo"

	svc := NewWorkflowService(workflows, identity, logger.Nop())
	handler := &recordingHandler{}
	svc.SetCompletionHandler(handler)
	return svc, workflows, handler
}

func TestStartWorkflow_CreatesPendingTasksInOrder(t *testing.T) {
	svc, workflows, _ := newWorkflowFixture()
	ctx := context.Background()

	inst, err := svc.StartWorkflow(ctx, nil, "co-1", repository.EntityRequisition, "req-1", "REQUISITION_APPROVAL",
		[]string{"FINANCE_MANAGER", "CFO"})
	require.NoError(t, err)
	assert.Equal(t, repository.WorkflowOpen, inst.Status)

	tasks, err := workflows.ListTasks(ctx, nil, inst.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, 1, tasks[0].StepNo)
	assert.Equal(t, "FINANCE_MANAGER", tasks[0].AssigneeRoleCode)
	assert.Equal(t, "user-fm", *tasks[0].AssigneeUserID)
	assert.Equal(t, 2, tasks[1].StepNo)
	assert.Equal(t, "CFO", tasks[1].AssigneeRoleCode)
	for _, task := range tasks {
		assert.Equal(t, repository.TaskPending, task.Status)
		assert.False(t, task.SLADueAt.IsZero())
	}
}

func TestStartWorkflow_DefaultsApproverRole(t *testing.T) {
	svc, workflows, _ := newWorkflowFixture()
	ctx := context.Background()

	inst, err := svc.StartWorkflow(ctx, nil, "co-1", repository.EntityVendor, "ven-1", "VENDOR_ONBOARDING", nil)
	require.NoError(t, err)

	tasks, _ := workflows.ListTasks(ctx, nil, inst.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, "FINANCE_MANAGER", tasks[0].AssigneeRoleCode)
}

func TestStartWorkflow_RejectsSecondActiveInstance(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	ctx := context.Background()

	_, err := svc.StartWorkflow(ctx, nil, "co-1", repository.EntityInvoice, "inv-1", "INVOICE_APPROVAL", nil)
	require.NoError(t, err)

	_, err = svc.StartWorkflow(ctx, nil, "co-1", repository.EntityInvoice, "inv-1", "INVOICE_APPROVAL", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))
}

func TestDecideTask_ApprovalCompletesAfterLastTask(t *testing.T) {
	svc, workflows, handler := newWorkflowFixture()
	ctx := context.Background()

	inst, err := svc.StartWorkflow(ctx, nil, "co-1", repository.EntityRequisition, "req-1", "REQUISITION_APPROVAL",
		[]string{"FINANCE_MANAGER", "FINANCE_CONTROLLER", "CFO"})
	require.NoError(t, err)

	tasks, _ := workflows.ListTasks(ctx, nil, inst.ID)
	require.Len(t, tasks, 3)

	for i, task := range tasks {
		got, err := svc.DecideTask(ctx, nil, task.ID, repository.DecisionApprove, nil)
		require.NoError(t, err)
		if i < 2 {
			assert.Equal(t, repository.WorkflowOpen, got.Status)
			assert.Empty(t, handler.approved)
		} else {
			assert.Equal(t, repository.WorkflowApproved, got.Status)
		}
	}
	assert.Equal(t, []string{"req-1"}, handler.approved)
}

func TestDecideTask_RejectCompletesImmediately(t *testing.T) {
	svc, workflows, handler := newWorkflowFixture()
	ctx := context.Background()

	inst, err := svc.StartWorkflow(ctx, nil, "co-1", repository.EntityRequisition, "req-1", "REQUISITION_APPROVAL",
		[]string{"FINANCE_MANAGER", "CFO"})
	require.NoError(t, err)

	tasks, _ := workflows.ListTasks(ctx, nil, inst.ID)
	reason := "over budget"
	got, err := svc.DecideTask(ctx, nil, tasks[0].ID, repository.DecisionReject, &reason)
	require.NoError(t, err)

	assert.Equal(t, repository.WorkflowRejected, got.Status)
	assert.Equal(t, []string{"req-1"}, handler.rejected)

	tasks, _ = workflows.ListTasks(ctx, nil, inst.ID)
	assert.Equal(t, repository.TaskCompleted, tasks[0].Status)
	assert.Equal(t, repository.TaskSkipped, tasks[1].Status)
}

func TestDecideTask_EscalateAppendsControllerAndCFO(t *testing.T) {
	svc, workflows, handler := newWorkflowFixture()
	ctx := context.Background()

	inst, err := svc.StartWorkflow(ctx, nil, "co-1", repository.EntityInvoice, "inv-1", "INVOICE_APPROVAL",
		[]string{"FINANCE_MANAGER"})
	require.NoError(t, err)

	tasks, _ := workflows.ListTasks(ctx, nil, inst.ID)
	got, err := svc.DecideTask(ctx, nil, tasks[0].ID, repository.DecisionEscalate, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.WorkflowEscalated, got.Status)

	tasks, _ = workflows.ListTasks(ctx, nil, inst.ID)
	require.Len(t, tasks, 3)
	assert.Equal(t, "FINANCE_CONTROLLER", tasks[1].AssigneeRoleCode)
	assert.Equal(t, 2, tasks[1].StepNo)
	assert.Equal(t, "CFO", tasks[2].AssigneeRoleCode)
	assert.Equal(t, 3, tasks[2].StepNo)

	// Approving both escalation tasks completes the workflow.
	_, err = svc.DecideTask(ctx, nil, tasks[1].ID, repository.DecisionApprove, nil)
	require.NoError(t, err)
	got, err = svc.DecideTask(ctx, nil, tasks[2].ID, repository.DecisionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.WorkflowApproved, got.Status)
	assert.Equal(t, []string{"inv-1"}, handler.approved)
}

func TestDecideTask_RejectsDecidedTask(t *testing.T) {
	svc, workflows, _ := newWorkflowFixture()
	ctx := context.Background()

	inst, err := svc.StartWorkflow(ctx, nil, "co-1", repository.EntityVendor, "ven-1", "VENDOR_ONBOARDING",
		[]string{"FINANCE_MANAGER", "CFO"})
	require.NoError(t, err)

	tasks, _ := workflows.ListTasks(ctx, nil, inst.ID)
	_, err = svc.DecideTask(ctx, nil, tasks[0].ID, repository.DecisionApprove, nil)
	require.NoError(t, err)

	_, err = svc.DecideTask(ctx, nil, tasks[0].ID, repository.DecisionApprove, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))
}

func TestCompleteWorkflow_CancelSkipsPendingWithoutCallback(t *testing.T) {
	svc, workflows, handler := newWorkflowFixture()
	ctx := context.Background()

	inst, err := svc.StartWorkflow(ctx, nil, "co-1", repository.EntityPaymentBatch, "pb-1", "PAYMENT_BATCH_RELEASE",
		[]string{"FINANCE_MANAGER"})
	require.NoError(t, err)

	err = svc.CompleteWorkflow(ctx, nil, inst.ID, repository.WorkflowCancelled)
	require.NoError(t, err)

	got, _ := workflows.GetInstance(ctx, nil, inst.ID)
	assert.Equal(t, repository.WorkflowCancelled, got.Status)
	require.NotNil(t, got.CompletedAt)

	tasks, _ := workflows.ListTasks(ctx, nil, inst.ID)
	assert.Equal(t, repository.TaskSkipped, tasks[0].Status)
	assert.Empty(t, handler.approved)
	assert.Empty(t, handler.rejected)

	err = svc.CompleteWorkflow(ctx, nil, inst.ID, repository.WorkflowCancelled)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))
}

func TestCompleteWorkflow_RequiresTerminalStatus(t *testing.T) {
	svc, _, _ := newWorkflowFixture()

	err := svc.CompleteWorkflow(context.Background(), nil, "wf-x", repository.WorkflowOpen)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}
