package repo

import (
	"context"
	"time"

	"campus-market/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type TaskRepo interface {
	// FindById returns nil, nil when the task does not exist.
	FindById(ctx context.Context, id string) (*domain.Task, error)
	CreateTask(ctx context.Context, task *domain.Task) error
	// ListActive returns open and assigned tasks, newest first.
	ListActive(ctx context.Context, limit int) ([]domain.Task, error)
	ListByPublisher(ctx context.Context, userID string, limit int) ([]domain.Task, error)
	ListByAssignee(ctx context.Context, userID string, limit int) ([]domain.Task, error)
	CompareAndSwap(ctx context.Context, next *domain.Task, expectedStatus domain.TaskStatus, expectedUpdatedAt time.Time) (bool, error)
}

type taskRepo struct {
	db *sqlx.DB
}

func NewTaskRepo(db *sqlx.DB) TaskRepo {
	return &taskRepo{db: db}
}

func (r *taskRepo) FindById(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	err := r.db.GetContext(ctx, &task, "SELECT * FROM tasks WHERE id = $1", id)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find task %s", id)
	}
	return &task, nil
}

func (r *taskRepo) CreateTask(ctx context.Context, task *domain.Task) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO tasks (
			id, title, type, reward, time_text, location, description, publisher,
			publisher_id, status, deadline_at, distance_km, requirements,
			is_recurring, recurring_rule, created_at, updated_at
		) VALUES (
			:id, :title, :type, :reward, :time_text, :location, :description, :publisher,
			:publisher_id, :status, :deadline_at, :distance_km, :requirements,
			:is_recurring, :recurring_rule, :created_at, :updated_at
		)`, task)
	if err != nil {
		return errors.Wrap(err, "create task")
	}
	return nil
}

func (r *taskRepo) ListActive(ctx context.Context, limit int) ([]domain.Task, error) {
	return r.list(ctx, `
		SELECT * FROM tasks WHERE status IN ('open', 'assigned')
		ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *taskRepo) ListByPublisher(ctx context.Context, userID string, limit int) ([]domain.Task, error) {
	return r.list(ctx, `
		SELECT * FROM tasks WHERE publisher_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

func (r *taskRepo) ListByAssignee(ctx context.Context, userID string, limit int) ([]domain.Task, error) {
	return r.list(ctx, `
		SELECT * FROM tasks WHERE assigned_user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

func (r *taskRepo) list(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	tasks := []domain.Task{}
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	return tasks, nil
}

func (r *taskRepo) CompareAndSwap(ctx context.Context, next *domain.Task, expectedStatus domain.TaskStatus, expectedUpdatedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET
			status = $1,
			assigned_user = $2,
			assigned_user_id = $3,
			assigned_at = $4,
			picked_up_at = $5,
			delivered_at = $6,
			completed_at = $7,
			cancelled_at = $8,
			confirm_proof_image = $9,
			confirm_by_publisher_at = $10,
			confirm_by_assignee_at = $11,
			updated_at = $12
		WHERE id = $13 AND status = $14 AND updated_at = $15`,
		next.Status, next.AssignedUser, next.AssignedUserID, next.AssignedAt,
		next.PickedUpAt, next.DeliveredAt, next.CompletedAt, next.CancelledAt,
		next.ConfirmProofImage, next.ConfirmByPublisherAt, next.ConfirmByAssigneeAt,
		next.UpdatedAt, next.ID, expectedStatus, expectedUpdatedAt,
	)
	if err != nil {
		return false, errors.Wrapf(err, "update task %s", next.ID)
	}
	return affected(res)
}
