package repo

import (
	"context"

	"campus-market/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type TrustRepo interface {
	// Find returns nil, nil for a user without a trust record.
	Find(ctx context.Context, userID string) (*domain.TrustRecord, error)
	// Insert creates the record unless one already exists.
	Insert(ctx context.Context, record domain.TrustRecord) (bool, error)
	CompareAndSwap(ctx context.Context, record domain.TrustRecord, expectedRevision int64) (bool, error)
}

type trustRepo struct {
	db *sqlx.DB
}

func NewTrustRepo(db *sqlx.DB) TrustRepo {
	return &trustRepo{db: db}
}

func (r *trustRepo) Find(ctx context.Context, userID string) (*domain.TrustRecord, error) {
	var rec domain.TrustRecord
	err := r.db.GetContext(ctx, &rec, "SELECT * FROM trust_scores WHERE user_id = $1", userID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find trust record %s", userID)
	}
	return &rec, nil
}

func (r *trustRepo) Insert(ctx context.Context, record domain.TrustRecord) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO trust_scores (
			user_id, score, completed_orders, completed_tasks, report_count,
			paid_cancellations, avg_rating, revision, updated_at
		) VALUES (
			:user_id, :score, :completed_orders, :completed_tasks, :report_count,
			:paid_cancellations, :avg_rating, :revision, :updated_at
		) ON CONFLICT (user_id) DO NOTHING`, record)
	if err != nil {
		return false, errors.Wrapf(err, "insert trust record %s", record.UserID)
	}
	return affected(res)
}

func (r *trustRepo) CompareAndSwap(ctx context.Context, record domain.TrustRecord, expectedRevision int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE trust_scores SET
			score = $1,
			completed_orders = $2,
			completed_tasks = $3,
			report_count = $4,
			paid_cancellations = $5,
			avg_rating = $6,
			revision = $7,
			updated_at = $8
		WHERE user_id = $9 AND revision = $10`,
		record.Score, record.CompletedOrders, record.CompletedTasks, record.ReportCount,
		record.PaidCancellations, record.AvgRating, record.Revision, record.UpdatedAt,
		record.UserID, expectedRevision,
	)
	if err != nil {
		return false, errors.Wrapf(err, "update trust record %s", record.UserID)
	}
	return affected(res)
}
