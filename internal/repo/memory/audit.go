package memory

import (
	"context"
	"sync"

	"campus-market/internal/domain"
	"campus-market/internal/repo"
)

var _ repo.AuditRepo = (*AuditRepo)(nil)

type AuditRepo struct {
	mu     sync.RWMutex
	events []domain.AuditEvent
}

func NewAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

func (r *AuditRepo) Append(_ context.Context, event domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *AuditRepo) List(_ context.Context, action string, limit int) ([]domain.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.AuditEvent{}
	for i := len(r.events) - 1; i >= 0; i-- {
		if action == "" || r.events[i].Action == action {
			out = append(out, r.events[i])
		}
	}
	return out[:clampLimit(len(out), limit)], nil
}
