package repo

import (
	"context"

	"campus-market/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type LedgerRepo interface {
	// Append inserts entry unless its (bizType, bizId) pair was already
	// credited; inserted reports which happened.
	Append(ctx context.Context, entry domain.LedgerEntry) (inserted bool, err error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error)
	Balance(ctx context.Context, userID string) (int, error)
	Ranking(ctx context.Context, limit int) ([]domain.RankEntry, error)
}

type ledgerRepo struct {
	db *sqlx.DB
}

func NewLedgerRepo(db *sqlx.DB) LedgerRepo {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) Append(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO points_ledger (id, user_id, change, reason, biz_type, biz_id, created_at)
		VALUES (:id, :user_id, :change, :reason, :biz_type, :biz_id, :created_at)
		ON CONFLICT (biz_type, biz_id) DO NOTHING`, entry)
	if err != nil {
		return false, errors.Wrap(err, "append ledger entry")
	}
	return affected(res)
}

func (r *ledgerRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	entries := []domain.LedgerEntry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM points_ledger WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list ledger for %s", userID)
	}
	return entries, nil
}

func (r *ledgerRepo) Balance(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		"SELECT COALESCE(SUM(change), 0)::int FROM points_ledger WHERE user_id = $1", userID)
	if err != nil {
		return 0, errors.Wrapf(err, "balance for %s", userID)
	}
	return total, nil
}

func (r *ledgerRepo) Ranking(ctx context.Context, limit int) ([]domain.RankEntry, error) {
	ranks := []domain.RankEntry{}
	err := r.db.SelectContext(ctx, &ranks, `
		SELECT user_id, SUM(change)::int AS total FROM points_ledger
		GROUP BY user_id
		ORDER BY total DESC, user_id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "points ranking")
	}
	return ranks, nil
}
