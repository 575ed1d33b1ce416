package repo

import (
	"context"
	"time"

	"campus-market/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type OrderRepo interface {
	// FindById returns nil, nil when the order does not exist.
	FindById(ctx context.Context, id string) (*domain.Order, error)
	// CreateOrder fails with domain.ErrActiveOrderExists when the product
	// already has a non-terminal order.
	CreateOrder(ctx context.Context, order *domain.Order) error
	FindActiveByProduct(ctx context.Context, productID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	// CompareAndSwap writes next only if the stored row still carries
	// expectedStatus and expectedUpdatedAt.
	CompareAndSwap(ctx context.Context, next *domain.Order, expectedStatus domain.OrderStatus, expectedUpdatedAt time.Time) (bool, error)
}

type orderRepo struct {
	db *sqlx.DB
}

func NewOrderRepo(db *sqlx.DB) OrderRepo {
	return &orderRepo{db: db}
}

func (r *orderRepo) FindById(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if isNoRows(err) {
		return nil, nil // not found
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find order %s", id)
	}
	return &order, nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO orders (
			id, product_id, product_title, product_price, buyer_id, buyer_name,
			seller_id, seller_name, status, expire_at, cancelled_by, cancel_reason,
			created_at, updated_at
		) VALUES (
			:id, :product_id, :product_title, :product_price, :buyer_id, :buyer_name,
			:seller_id, :seller_name, :status, :expire_at, :cancelled_by, :cancel_reason,
			:created_at, :updated_at
		)`, order)
	if isUniqueViolation(err) {
		return domain.ErrActiveOrderExists
	}
	if err != nil {
		return errors.Wrap(err, "create order")
	}
	return nil
}

func (r *orderRepo) FindActiveByProduct(ctx context.Context, productID string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.GetContext(ctx, &order, `
		SELECT * FROM orders
		WHERE product_id = $1 AND status NOT IN ('completed', 'cancelled')
		LIMIT 1`, productID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find active order for product %s", productID)
	}
	return &order, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	orders := []domain.Order{}
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %s", userID)
	}
	return orders, nil
}

func (r *orderRepo) CompareAndSwap(ctx context.Context, next *domain.Order, expectedStatus domain.OrderStatus, expectedUpdatedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET
			status = $1,
			expire_at = $2,
			meet_confirmed_at = $3,
			paid_confirmed_at = $4,
			received_confirmed_at = $5,
			completed_at = $6,
			cancelled_at = $7,
			cancelled_by = $8,
			cancel_reason = $9,
			updated_at = $10
		WHERE id = $11 AND status = $12 AND updated_at = $13`,
		next.Status, next.ExpireAt, next.MeetConfirmedAt, next.PaidConfirmedAt,
		next.ReceivedConfirmedAt, next.CompletedAt, next.CancelledAt,
		next.CancelledBy, next.CancelReason, next.UpdatedAt,
		next.ID, expectedStatus, expectedUpdatedAt,
	)
	if err != nil {
		return false, errors.Wrapf(err, "update order %s", next.ID)
	}
	return affected(res)
}
