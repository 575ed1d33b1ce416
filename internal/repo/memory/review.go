package memory

import (
	"context"
	"sort"
	"sync"

	"campus-market/internal/domain"
	"campus-market/internal/repo"
)

var _ repo.ReviewRepo = (*ReviewRepo)(nil)

type ReviewRepo struct {
	mu      sync.RWMutex
	reviews []domain.Review
}

func NewReviewRepo() *ReviewRepo {
	return &ReviewRepo{}
}

func (r *ReviewRepo) Exists(_ context.Context, orderID, fromUserID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exists(orderID, fromUserID), nil
}

func (r *ReviewRepo) exists(orderID, fromUserID string) bool {
	for _, rv := range r.reviews {
		if rv.OrderID == orderID && rv.FromUserID == fromUserID {
			return true
		}
	}
	return false
}

func (r *ReviewRepo) CreateReview(_ context.Context, review *domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exists(review.OrderID, review.FromUserID) {
		return domain.ErrAlreadyReviewed
	}
	r.reviews = append(r.reviews, *review)
	return nil
}

func (r *ReviewRepo) ListByOrder(_ context.Context, orderID string, limit int) ([]domain.Review, error) {
	r.mu.RLock()
	out := []domain.Review{}
	for _, rv := range r.reviews {
		if rv.OrderID == orderID {
			out = append(out, rv)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out[:clampLimit(len(out), limit)], nil
}

func (r *ReviewRepo) ScoresFor(_ context.Context, userID string, limit int) ([]int, error) {
	r.mu.RLock()
	var received []domain.Review
	for _, rv := range r.reviews {
		if rv.ToUserID == userID {
			received = append(received, rv)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(received, func(i, j int) bool { return received[i].CreatedAt.After(received[j].CreatedAt) })
	received = received[:clampLimit(len(received), limit)]
	scores := make([]int, 0, len(received))
	for _, rv := range received {
		scores = append(scores, rv.Score)
	}
	return scores, nil
}
