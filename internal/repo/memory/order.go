package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-market/internal/domain"
	"campus-market/internal/repo"
)

var _ repo.OrderRepo = (*OrderRepo)(nil)

type OrderRepo struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewOrderRepo() *OrderRepo {
	return &OrderRepo{orders: make(map[string]domain.Order)}
}

func (r *OrderRepo) FindById(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *OrderRepo) CreateOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ProductID == order.ProductID && !o.Status.Terminal() {
			return domain.ErrActiveOrderExists
		}
	}
	r.orders[order.ID] = *order
	return nil
}

func (r *OrderRepo) FindActiveByProduct(_ context.Context, productID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.ProductID == productID && !o.Status.Terminal() {
			return &o, nil
		}
	}
	return nil, nil
}

func (r *OrderRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	out := []domain.Order{}
	for _, o := range r.orders {
		if o.BuyerID == userID || o.SellerID == userID {
			out = append(out, o)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out[:clampLimit(len(out), limit)], nil
}

func (r *OrderRepo) CompareAndSwap(_ context.Context, next *domain.Order, expectedStatus domain.OrderStatus, expectedUpdatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[next.ID]
	if !ok || cur.Status != expectedStatus || !cur.UpdatedAt.Equal(expectedUpdatedAt) {
		return false, nil
	}
	r.orders[next.ID] = *next
	return true, nil
}
