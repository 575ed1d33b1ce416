package repo

import (
	"context"

	"campus-market/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type AuditRepo interface {
	Append(ctx context.Context, event domain.AuditEvent) error
	// List returns the newest events, filtered by action when non-empty.
	List(ctx context.Context, action string, limit int) ([]domain.AuditEvent, error)
}

type auditRepo struct {
	db *sqlx.DB
}

func NewAuditRepo(db *sqlx.DB) AuditRepo {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, event domain.AuditEvent) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, action, user_id, payload, created_at)
		VALUES (:id, :action, :user_id, :payload, :created_at)`, event)
	if err != nil {
		return errors.Wrapf(err, "append audit %s", event.Action)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, action string, limit int) ([]domain.AuditEvent, error) {
	events := []domain.AuditEvent{}
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM audit_logs
		WHERE $1 = '' OR action = $1
		ORDER BY created_at DESC LIMIT $2`, action, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list audit events")
	}
	return events, nil
}
