package repo

import (
	"context"

	"campus-market/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type ReviewRepo interface {
	Exists(ctx context.Context, orderID, fromUserID string) (bool, error)
	// CreateReview fails with domain.ErrAlreadyReviewed on a duplicate
	// (order, reviewer) pair.
	CreateReview(ctx context.Context, review *domain.Review) error
	// ListByOrder returns reviews oldest first.
	ListByOrder(ctx context.Context, orderID string, limit int) ([]domain.Review, error)
	// ScoresFor returns the most recent scores received by userID.
	ScoresFor(ctx context.Context, userID string, limit int) ([]int, error)
}

type reviewRepo struct {
	db *sqlx.DB
}

func NewReviewRepo(db *sqlx.DB) ReviewRepo {
	return &reviewRepo{db: db}
}

func (r *reviewRepo) Exists(ctx context.Context, orderID, fromUserID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM reviews WHERE order_id = $1 AND from_user_id = $2)",
		orderID, fromUserID)
	if err != nil {
		return false, errors.Wrapf(err, "check review for order %s", orderID)
	}
	return exists, nil
}

func (r *reviewRepo) CreateReview(ctx context.Context, review *domain.Review) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO reviews (
			id, order_id, from_user_id, from_user_name, to_user_id, to_user_name,
			score, content, anonymous, created_at
		) VALUES (
			:id, :order_id, :from_user_id, :from_user_name, :to_user_id, :to_user_name,
			:score, :content, :anonymous, :created_at
		)`, review)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyReviewed
	}
	if err != nil {
		return errors.Wrap(err, "create review")
	}
	return nil
}

func (r *reviewRepo) ListByOrder(ctx context.Context, orderID string, limit int) ([]domain.Review, error) {
	reviews := []domain.Review{}
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT * FROM reviews WHERE order_id = $1
		ORDER BY created_at ASC LIMIT $2`, orderID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list reviews for order %s", orderID)
	}
	return reviews, nil
}

func (r *reviewRepo) ScoresFor(ctx context.Context, userID string, limit int) ([]int, error) {
	scores := []int{}
	err := r.db.SelectContext(ctx, &scores, `
		SELECT score FROM reviews WHERE to_user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list scores for %s", userID)
	}
	return scores, nil
}
