package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// taskSLA is the deadline applied to every approval task at creation. It is
// informational; nothing fires automatically when it passes.
const taskSLA = 24 * time.Hour

// defaultApproverRole is used when a workflow is started without explicit
// assignee roles.
const defaultApproverRole = "FINANCE_MANAGER"

// escalationRoles is the fixed pair of roles appended when a task is
// escalated.
var escalationRoles = [2]string{"FINANCE_CONTROLLER", "CFO"}

// CompletionHandler applies the entity-specific side effects when a workflow
// reaches a terminal decision. The lifecycle layer implements it.
type CompletionHandler interface {
	OnWorkflowApproved(ctx context.Context, q database.Querier, companyID string, entityType repository.EntityType, entityID string) error
	OnWorkflowRejected(ctx context.Context, q database.Querier, companyID string, entityType repository.EntityType, entityID string) error
}

// WorkflowService coordinates multi-step human approval: it opens workflow
// instances, accepts decisions on tasks, escalates, and completes instances
// with their entity side effects.
type WorkflowService struct {
	workflows WorkflowStore
	identity  IdentityStore
	handler   CompletionHandler
	log       *logger.Logger
}

// NewWorkflowService creates a new WorkflowService. The completion handler is
// wired afterwards because the lifecycle services that implement it depend on
// this service in turn.
func NewWorkflowService(workflows WorkflowStore, identity IdentityStore, log *logger.Logger) *WorkflowService {
	return &WorkflowService{workflows: workflows, identity: identity, log: log}
}

// SetCompletionHandler wires the entity side-effect handler.
func (s *WorkflowService) SetCompletionHandler(h CompletionHandler) {
	s.handler = h
}

// StartWorkflow opens an OPEN instance with one pending task per assignee
// role, in order. A role with no active user yields an unassigned task that
// still counts as pending. At most one non-terminal instance may exist per
// entity.
func (s *WorkflowService) StartWorkflow(ctx context.Context, q database.Querier, companyID string, entityType repository.EntityType, entityID, workflowType string, assigneeRoles []string) (*repository.WorkflowInstance, error) {
	existing, err := s.workflows.FindActiveByEntity(ctx, q, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"an active workflow already exists for %s %s (status: %s)", entityType, entityID, existing.Status)
	}

	if len(assigneeRoles) == 0 {
		assigneeRoles = []string{defaultApproverRole}
	}

	now := time.Now()
	inst := &repository.WorkflowInstance{
		CompanyID:    companyID,
		EntityType:   entityType,
		EntityID:     entityID,
		WorkflowType: workflowType,
		Status:       repository.WorkflowOpen,
		StartedAt:    now,
	}
	if err := s.workflows.CreateInstance(ctx, q, inst); err != nil {
		return nil, err
	}

	for i, role := range assigneeRoles {
		if err := s.createTask(ctx, q, inst, i+1, role, now); err != nil {
			return nil, err
		}
	}

	s.log.Info().
		Str("workflow_id", inst.ID).
		Str("entity_type", string(entityType)).
		Str("entity_id", entityID).
		Int("steps", len(assigneeRoles)).
		Msg("approval workflow started")

	return inst, nil
}

// DecideTask applies a human decision to a pending task.
//
// APPROVE completes the task; when no pending tasks remain the workflow
// completes as APPROVED and the entity callback runs. REJECT completes the
// task and immediately completes the workflow as REJECTED without waiting for
// the remaining tasks. ESCALATE completes the task, appends pending tasks for
// the escalation role pair at the next step numbers, and moves the workflow
// to ESCALATED.
func (s *WorkflowService) DecideTask(ctx context.Context, q database.Querier, taskID string, decision repository.Decision, reason *string) (*repository.WorkflowInstance, error) {
	task, err := s.workflows.GetTask(ctx, q, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != repository.TaskPending {
		return nil, errors.InvalidState("approval_task", "decided", string(task.Status))
	}

	inst, err := s.workflows.GetInstance(ctx, q, task.WorkflowInstanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status.IsTerminal() {
		return nil, errors.InvalidState("workflow_instance", "decided", string(inst.Status))
	}

	decisionStr := string(decision)
	switch decision {
	case repository.DecisionApprove:
		if err := s.workflows.UpdateTaskDecision(ctx, q, task.ID, repository.TaskCompleted, &decisionStr, reason); err != nil {
			return nil, err
		}
		pending, err := s.countPending(ctx, q, inst.ID)
		if err != nil {
			return nil, err
		}
		if pending == 0 {
			if err := s.complete(ctx, q, inst, repository.WorkflowApproved); err != nil {
				return nil, err
			}
		}

	case repository.DecisionReject:
		if err := s.workflows.UpdateTaskDecision(ctx, q, task.ID, repository.TaskCompleted, &decisionStr, reason); err != nil {
			return nil, err
		}
		if err := s.complete(ctx, q, inst, repository.WorkflowRejected); err != nil {
			return nil, err
		}

	case repository.DecisionEscalate:
		if err := s.workflows.UpdateTaskDecision(ctx, q, task.ID, repository.TaskCompleted, &decisionStr, reason); err != nil {
			return nil, err
		}
		if err := s.escalate(ctx, q, inst); err != nil {
			return nil, err
		}

	default:
		return nil, errors.InvalidInput("decision", string(decision))
	}

	return s.workflows.GetInstance(ctx, q, inst.ID)
}

// CompleteWorkflow forces an instance to a terminal status, skipping every
// remaining pending task. Used for cancellation; decision-driven completion
// goes through DecideTask.
func (s *WorkflowService) CompleteWorkflow(ctx context.Context, q database.Querier, instanceID string, status repository.WorkflowStatus) error {
	if !status.IsTerminal() {
		return errors.InvalidInput("status", "workflow completion status must be terminal")
	}
	inst, err := s.workflows.GetInstance(ctx, q, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.IsTerminal() {
		return errors.InvalidState("workflow_instance", "completed", string(inst.Status))
	}
	return s.finish(ctx, q, inst, status)
}

// ListTasks returns all tasks for an instance ordered by step.
func (s *WorkflowService) ListTasks(ctx context.Context, q database.Querier, instanceID string) ([]*repository.ApprovalTask, error) {
	return s.workflows.ListTasks(ctx, q, instanceID)
}

// FindActiveWorkflow returns the non-terminal instance for an entity, or nil.
func (s *WorkflowService) FindActiveWorkflow(ctx context.Context, q database.Querier, entityType repository.EntityType, entityID string) (*repository.WorkflowInstance, error) {
	return s.workflows.FindActiveByEntity(ctx, q, entityType, entityID)
}

// ── internals ────────────────────────────────────────────────────────────────

func (s *WorkflowService) createTask(ctx context.Context, q database.Querier, inst *repository.WorkflowInstance, stepNo int, role string, now time.Time) error {
	assignee, err := s.identity.FindActiveUserWithRole(ctx, q, inst.CompanyID, role)
	if err != nil {
		return err
	}
	if assignee == nil {
		s.log.Warn().
			Str("workflow_id", inst.ID).
			Str("role", role).
			Int("step_no", stepNo).
			Msg("no active user holds role; task left unassigned")
	}

	return s.workflows.CreateTask(ctx, q, &repository.ApprovalTask{
		WorkflowInstanceID: inst.ID,
		StepNo:             stepNo,
		AssigneeUserID:     assignee,
		AssigneeRoleCode:   role,
		Status:             repository.TaskPending,
		SLADueAt:           now.Add(taskSLA),
	})
}

func (s *WorkflowService) countPending(ctx context.Context, q database.Querier, instanceID string) (int, error) {
	tasks, err := s.workflows.ListTasks(ctx, q, instanceID)
	if err != nil {
		return 0, err
	}
	pending := 0
	for _, t := range tasks {
		if t.Status == repository.TaskPending {
			pending++
		}
	}
	return pending, nil
}

// escalate appends the fixed escalation role pair at the next step numbers
// and marks the instance ESCALATED. The instance does not complete.
func (s *WorkflowService) escalate(ctx context.Context, q database.Querier, inst *repository.WorkflowInstance) error {
	tasks, err := s.workflows.ListTasks(ctx, q, inst.ID)
	if err != nil {
		return err
	}
	maxStep := 0
	for _, t := range tasks {
		if t.StepNo > maxStep {
			maxStep = t.StepNo
		}
	}

	now := time.Now()
	for i, role := range escalationRoles {
		if err := s.createTask(ctx, q, inst, maxStep+1+i, role, now); err != nil {
			return err
		}
	}

	if err := s.workflows.UpdateInstanceStatus(ctx, q, inst.ID, repository.WorkflowEscalated, nil); err != nil {
		return err
	}

	s.log.Info().
		Str("workflow_id", inst.ID).
		Int("appended_tasks", len(escalationRoles)).
		Msg("approval workflow escalated")

	return nil
}

// complete finishes the instance and runs the entity side-effect callback.
func (s *WorkflowService) complete(ctx context.Context, q database.Querier, inst *repository.WorkflowInstance, status repository.WorkflowStatus) error {
	if err := s.finish(ctx, q, inst, status); err != nil {
		return err
	}
	if s.handler == nil {
		return nil
	}
	if status == repository.WorkflowApproved {
		return s.handler.OnWorkflowApproved(ctx, q, inst.CompanyID, inst.EntityType, inst.EntityID)
	}
	return s.handler.OnWorkflowRejected(ctx, q, inst.CompanyID, inst.EntityType, inst.EntityID)
}

func (s *WorkflowService) finish(ctx context.Context, q database.Querier, inst *repository.WorkflowInstance, status repository.WorkflowStatus) error {
	if err := s.workflows.SkipPendingTasks(ctx, q, inst.ID); err != nil {
		return err
	}
	now := time.Now()
	if err := s.workflows.UpdateInstanceStatus(ctx, q, inst.ID, status, &now); err != nil {
		return err
	}

	s.log.Info().
		Str("workflow_id", inst.ID).
		Str("entity_type", string(inst.EntityType)).
		Str("entity_id", inst.EntityID).
		Str("status", string(status)).
		Msg("approval workflow completed")

	return nil
}
