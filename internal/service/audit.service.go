package service

import (
	"context"

	"campus-market/internal/domain"
	"campus-market/internal/repo"
)

type AuditService interface {
	Append(ctx context.Context, event domain.AuditEvent) error
	// Recent lists events newest first, optionally filtered by action.
	Recent(ctx context.Context, action string, limit int) ([]domain.AuditEvent, error)
}

type auditService struct {
	repo repo.AuditRepo
}

func NewAuditService(auditRepo repo.AuditRepo) AuditService {
	return &auditService{repo: auditRepo}
}

func (s *auditService) Append(ctx context.Context, event domain.AuditEvent) error {
	return domain.Unavailable(s.repo.Append(ctx, event))
}

func (s *auditService) Recent(ctx context.Context, action string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	events, err := s.repo.List(ctx, action, limit)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	return events, nil
}
