package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
)

// WorkflowRepository manages workflow instances and their approval tasks.
type WorkflowRepository struct{}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{}
}

// CreateInstance inserts a workflow instance.
func (r *WorkflowRepository) CreateInstance(ctx context.Context, q database.Querier, inst *WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances
		    (company_id, entity_type, entity_id, workflow_type, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		inst.CompanyID,
		inst.EntityType,
		inst.EntityID,
		inst.WorkflowType,
		inst.Status,
		inst.StartedAt,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow instance")
	}
	return nil
}

// GetInstance retrieves a workflow instance by primary key.
func (r *WorkflowRepository) GetInstance(ctx context.Context, q database.Querier, id string) (*WorkflowInstance, error) {
	query := `
		SELECT id, company_id, entity_type, entity_id, workflow_type, status,
		       started_at, completed_at, created_at, updated_at
		FROM workflow_instances
		WHERE id = $1
	`

	inst, err := r.scanInstance(q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow_instance", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow instance")
	}
	return inst, nil
}

// FindActiveByEntity returns the non-terminal instance for an entity, or nil.
func (r *WorkflowRepository) FindActiveByEntity(ctx context.Context, q database.Querier, entityType EntityType, entityID string) (*WorkflowInstance, error) {
	query := `
		SELECT id, company_id, entity_type, entity_id, workflow_type, status,
		       started_at, completed_at, created_at, updated_at
		FROM workflow_instances
		WHERE entity_type = $1
		  AND entity_id = $2
		  AND status IN ('OPEN', 'ESCALATED')
		LIMIT 1
	`

	inst, err := r.scanInstance(q.QueryRow(ctx, query, entityType, entityID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find active workflow")
	}
	return inst, nil
}

// UpdateInstanceStatus sets the instance status, stamping completed_at for
// terminal statuses.
func (r *WorkflowRepository) UpdateInstanceStatus(ctx context.Context, q database.Querier, id string, status WorkflowStatus, completedAt *time.Time) error {
	query := `
		UPDATE workflow_instances
		SET status       = $2,
		    completed_at = $3,
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, status, completedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("workflow_instance", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update workflow status")
	}
	return nil
}

// CreateTask inserts one approval task.
func (r *WorkflowRepository) CreateTask(ctx context.Context, q database.Querier, task *ApprovalTask) error {
	query := `
		INSERT INTO approval_tasks
		    (workflow_instance_id, step_no, assignee_user_id, assignee_role_code,
		     status, sla_due_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		task.WorkflowInstanceID,
		task.StepNo,
		task.AssigneeUserID,
		task.AssigneeRoleCode,
		task.Status,
		task.SLADueAt,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval task")
	}
	return nil
}

// GetTask retrieves a task by primary key.
func (r *WorkflowRepository) GetTask(ctx context.Context, q database.Querier, id string) (*ApprovalTask, error) {
	query := `
		SELECT id, workflow_instance_id, step_no, assignee_user_id, assignee_role_code,
		       status, decision, decision_reason, sla_due_at, decided_at,
		       created_at, updated_at
		FROM approval_tasks
		WHERE id = $1
	`

	task, err := r.scanTask(q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_task", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval task")
	}
	return task, nil
}

// ListTasks returns all tasks for an instance ordered by step number.
func (r *WorkflowRepository) ListTasks(ctx context.Context, q database.Querier, instanceID string) ([]*ApprovalTask, error) {
	query := `
		SELECT id, workflow_instance_id, step_no, assignee_user_id, assignee_role_code,
		       status, decision, decision_reason, sla_due_at, decided_at,
		       created_at, updated_at
		FROM approval_tasks
		WHERE workflow_instance_id = $1
		ORDER BY step_no ASC
	`

	rows, err := q.Query(ctx, query, instanceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval tasks")
	}
	defer rows.Close()

	var tasks []*ApprovalTask
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval task")
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// ListPendingTasksForUser returns the pending tasks assigned to a user across
// all open workflows in a company, oldest SLA first.
func (r *WorkflowRepository) ListPendingTasksForUser(ctx context.Context, q database.Querier, companyID, userID string) ([]*ApprovalTask, error) {
	query := `
		SELECT t.id, t.workflow_instance_id, t.step_no, t.assignee_user_id, t.assignee_role_code,
		       t.status, t.decision, t.decision_reason, t.sla_due_at, t.decided_at,
		       t.created_at, t.updated_at
		FROM approval_tasks t
		JOIN workflow_instances w ON w.id = t.workflow_instance_id
		WHERE w.company_id = $1
		  AND t.assignee_user_id = $2
		  AND t.status = 'PENDING'
		  AND w.status IN ('OPEN', 'ESCALATED')
		ORDER BY t.sla_due_at ASC
	`

	rows, err := q.Query(ctx, query, companyID, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending tasks")
	}
	defer rows.Close()

	var tasks []*ApprovalTask
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval task")
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// UpdateTaskDecision records the outcome of a decision on a task.
func (r *WorkflowRepository) UpdateTaskDecision(ctx context.Context, q database.Querier, taskID string, status TaskStatus, decision, reason *string) error {
	query := `
		UPDATE approval_tasks
		SET status          = $2,
		    decision        = $3,
		    decision_reason = $4,
		    decided_at      = NOW(),
		    updated_at      = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, taskID, status, decision, reason).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval_task", taskID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval task")
	}
	return nil
}

// SkipPendingTasks marks every remaining pending task in an instance SKIPPED.
func (r *WorkflowRepository) SkipPendingTasks(ctx context.Context, q database.Querier, instanceID string) error {
	query := `
		UPDATE approval_tasks
		SET status     = 'SKIPPED',
		    updated_at = NOW()
		WHERE workflow_instance_id = $1
		  AND status = 'PENDING'
	`

	if _, err := q.Exec(ctx, query, instanceID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to skip pending tasks")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type workflowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanInstance(row workflowScanner) (*WorkflowInstance, error) {
	inst := &WorkflowInstance{}
	err := row.Scan(
		&inst.ID,
		&inst.CompanyID,
		&inst.EntityType,
		&inst.EntityID,
		&inst.WorkflowType,
		&inst.Status,
		&inst.StartedAt,
		&inst.CompletedAt,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (r *WorkflowRepository) scanTask(row workflowScanner) (*ApprovalTask, error) {
	task := &ApprovalTask{}
	err := row.Scan(
		&task.ID,
		&task.WorkflowInstanceID,
		&task.StepNo,
		&task.AssigneeUserID,
		&task.AssigneeRoleCode,
		&task.Status,
		&task.Decision,
		&task.DecisionReason,
		&task.SLADueAt,
		&task.DecidedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}
