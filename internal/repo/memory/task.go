package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-market/internal/domain"
	"campus-market/internal/repo"
)

var _ repo.TaskRepo = (*TaskRepo)(nil)

type TaskRepo struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
}

func NewTaskRepo() *TaskRepo {
	return &TaskRepo{tasks: make(map[string]domain.Task)}
}

func (r *TaskRepo) FindById(_ context.Context, id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	t.Requirements = append(domain.Requirements{}, t.Requirements...)
	return &t, nil
}

func (r *TaskRepo) CreateTask(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := *task
	t.Requirements = append(domain.Requirements{}, task.Requirements...)
	r.tasks[t.ID] = t
	return nil
}

func (r *TaskRepo) ListActive(_ context.Context, limit int) ([]domain.Task, error) {
	return r.list(limit, func(t domain.Task) bool {
		return t.Status == domain.TaskOpen || t.Status == domain.TaskAssigned
	}), nil
}

func (r *TaskRepo) ListByPublisher(_ context.Context, userID string, limit int) ([]domain.Task, error) {
	return r.list(limit, func(t domain.Task) bool { return t.PublisherID == userID }), nil
}

func (r *TaskRepo) ListByAssignee(_ context.Context, userID string, limit int) ([]domain.Task, error) {
	return r.list(limit, func(t domain.Task) bool {
		return t.AssignedUserID != "" && t.AssignedUserID == userID
	}), nil
}

func (r *TaskRepo) list(limit int, match func(domain.Task) bool) []domain.Task {
	r.mu.RLock()
	out := []domain.Task{}
	for _, t := range r.tasks {
		if match(t) {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out[:clampLimit(len(out), limit)]
}

func (r *TaskRepo) CompareAndSwap(_ context.Context, next *domain.Task, expectedStatus domain.TaskStatus, expectedUpdatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tasks[next.ID]
	if !ok || cur.Status != expectedStatus || !cur.UpdatedAt.Equal(expectedUpdatedAt) {
		return false, nil
	}
	r.tasks[next.ID] = *next
	return true, nil
}
