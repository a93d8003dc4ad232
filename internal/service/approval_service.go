package service

import (
	"context"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// ApprovalService is the outward-facing surface over the workflow
// coordinator. It opens the unit of work each decision runs in, so the task
// update, workflow completion and entity side effects commit together.
type ApprovalService struct {
	db        TxRunner
	workflow  *WorkflowService
	workflows WorkflowStore
	audit     AuditSink
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(db TxRunner, workflow *WorkflowService, workflows WorkflowStore, audit AuditSink, log *logger.Logger) *ApprovalService {
	return &ApprovalService{
		db:        db,
		workflow:  workflow,
		workflows: workflows,
		audit:     audit,
		log:       log,
	}
}

// Decide applies a human decision to a pending approval task.
func (s *ApprovalService) Decide(ctx context.Context, taskID string, decision repository.Decision, reason *string, actorID string) (*repository.WorkflowInstance, error) {
	var inst *repository.WorkflowInstance

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		inst, err = s.workflow.DecideTask(ctx, q, taskID, decision, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  inst.CompanyID,
		ActorID:    &actorID,
		ActorType:  "USER",
		ActionCode: "APPROVAL_TASK_DECIDED",
		EntityType: inst.EntityType,
		EntityID:   inst.EntityID,
		Payload: map[string]any{
			"taskId":         taskID,
			"decision":       string(decision),
			"workflowStatus": string(inst.Status),
		},
	})

	return inst, nil
}

// Cancel forces an open workflow to CANCELLED, skipping its pending tasks.
// The entity keeps whatever status it had; no completion callback runs.
func (s *ApprovalService) Cancel(ctx context.Context, instanceID, actorID string) error {
	var inst *repository.WorkflowInstance

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		inst, err = s.workflows.GetInstance(ctx, q, instanceID)
		if err != nil {
			return err
		}
		return s.workflow.CompleteWorkflow(ctx, q, instanceID, repository.WorkflowCancelled)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  inst.CompanyID,
		ActorID:    &actorID,
		ActorType:  "USER",
		ActionCode: "WORKFLOW_CANCELLED",
		EntityType: inst.EntityType,
		EntityID:   inst.EntityID,
		Payload:    map[string]any{"workflowId": instanceID},
	})
	return nil
}

// ListPending returns the pending tasks assigned to a user, oldest SLA first.
func (s *ApprovalService) ListPending(ctx context.Context, companyID, userID string) ([]*repository.ApprovalTask, error) {
	var tasks []*repository.ApprovalTask
	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		tasks, err = s.workflows.ListPendingTasksForUser(ctx, q, companyID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListTasks returns all tasks of a workflow instance ordered by step.
func (s *ApprovalService) ListTasks(ctx context.Context, instanceID string) ([]*repository.ApprovalTask, error) {
	var tasks []*repository.ApprovalTask
	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var err error
		tasks, err = s.workflow.ListTasks(ctx, q, instanceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}
