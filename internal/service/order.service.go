package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campus-market/internal/clock"
	"campus-market/internal/domain"
	"campus-market/internal/infrastructure/catalog"
	"campus-market/internal/repo"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in domain.NewOrderInput) (*domain.Order, error)
	// GetOrder returns the order as the viewer should see it, with the TTL
	// applied. Non-parties get domain.ErrOrderNotFound.
	GetOrder(ctx context.Context, orderID, viewerID string) (*domain.Order, error)
	ListMyOrders(ctx context.Context, userID string) ([]domain.Order, error)
	// Transition moves the order to target on behalf of actorID. An illegal
	// edge or unauthorized actor yields false with a nil error.
	Transition(ctx context.Context, orderID string, target domain.OrderStatus, actorID string, extra TransitionExtra) (bool, error)
	SubmitReview(ctx context.Context, req ReviewRequest) (*domain.Review, error)
	GetOrderReviews(ctx context.Context, orderID string) ([]domain.Review, error)
}

type TransitionExtra struct {
	CancelReason string `json:"cancelReason"`
}

type orderService struct {
	orders  repo.OrderRepo
	reviews repo.ReviewRepo
	effects *SideEffects
	limiter RateLimiter
	locks   Locker
	clock   clock.Clock
	policy  OrderPolicy
	log     logrus.FieldLogger

	// inflight collapses identical requests from one actor that overlap.
	inflight singleflight.Group
}

func NewOrderService(
	store repo.Store,
	effects *SideEffects,
	limiter RateLimiter,
	locks Locker,
	clk clock.Clock,
	policy OrderPolicy,
	log logrus.FieldLogger,
) OrderService {
	return &orderService{
		orders:  store.Orders,
		reviews: store.Reviews,
		effects: effects,
		limiter: limiter,
		locks:   locks,
		clock:   clk,
		policy:  policy,
		log:     log.WithField("component", "orders"),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, in domain.NewOrderInput) (*domain.Order, error) {
	if in.BuyerID == "" {
		return nil, domain.ErrAuthRequired
	}
	productID := strings.TrimSpace(in.ProductID)
	// an overlapping submit is a duplicate, a later one is throttled
	release, ok := s.locks.TryLock(fmt.Sprintf("order:create:%s:%s", productID, in.BuyerID))
	if !ok {
		return nil, domain.ErrDuplicateSubmit
	}
	defer release()

	if err := s.limiter.AssertRateLimit(fmt.Sprintf("order:create:%s:%s", in.BuyerID, productID), s.policy.CreateInterval); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order, err := domain.NewOrder(in, now, s.policy.TTL)
	if err != nil {
		return nil, err
	}

	active, err := s.orders.FindActiveByProduct(ctx, order.ProductID)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	if active != nil {
		if !active.Expired(now) {
			return nil, domain.ErrActiveOrderExists
		}
		s.expire(ctx, active, now)
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, domain.Unavailable(err)
	}

	s.log.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"product_id": order.ProductID,
		"buyer_id":   order.BuyerID,
	}).Info("order created")
	s.effects.ProductStatus(order.ID, order.ProductID, catalog.ProductReserved)
	s.effects.Audit(domain.AuditOrderCreated, order.BuyerID, domain.AuditPayload{
		"orderId":   order.ID,
		"productId": order.ProductID,
		"sellerId":  order.SellerID,
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID, viewerID string) (*domain.Order, error) {
	if viewerID == "" {
		return nil, domain.ErrAuthRequired
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParty(viewerID) {
		return nil, domain.ErrOrderNotFound
	}
	if now := s.clock.Now(); order.Expired(now) {
		view := s.expire(ctx, order, now)
		return &view, nil
	}
	return order, nil
}

func (s *orderService) ListMyOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrAuthRequired
	}
	orders, err := s.orders.ListByUser(ctx, userID, maxListLimit)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	now := s.clock.Now()
	for i := range orders {
		if orders[i].Expired(now) {
			orders[i] = s.expire(ctx, &orders[i], now)
		}
	}
	return orders, nil
}

func (s *orderService) Transition(ctx context.Context, orderID string, target domain.OrderStatus, actorID string, extra TransitionExtra) (bool, error) {
	if actorID == "" {
		return false, domain.ErrAuthRequired
	}
	if !target.Valid() || target == domain.OrderPending {
		return false, domain.InvalidParam(fmt.Sprintf("unknown target status %q", target))
	}
	if target == domain.OrderCancelled && !domain.ValidCancelReason(extra.CancelReason) {
		return false, domain.InvalidParam(fmt.Sprintf("unknown cancel reason %q", extra.CancelReason))
	}

	current, err := s.load(ctx, orderID)
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	if current.Expired(now) {
		view := s.expire(ctx, current, now)
		// asking to cancel an order that already timed out is satisfied
		if target == domain.OrderCancelled && view.IsParty(actorID) {
			return true, nil
		}
		return s.reject(current, target, actorID, reasonExpired), nil
	}

	if current.Status == target {
		if domain.CanOperateOrder(current, actorID, target) {
			return true, nil
		}
		return s.reject(current, target, actorID, reasonPermission), nil
	}

	key := fmt.Sprintf("%s:%s:%s:%s", orderID, actorID, target, extra.CancelReason)
	moved, err, _ := s.inflight.Do(key, func() (any, error) {
		return s.apply(ctx, current, target, actorID, extra, now)
	})
	ok, _ := moved.(bool)
	return ok, err
}

func (s *orderService) apply(ctx context.Context, current *domain.Order, target domain.OrderStatus, actorID string, extra TransitionExtra, now time.Time) (bool, error) {
	orderID := current.ID
	if err := s.assertStatusLimits(actorID, orderID, target); err != nil {
		if domain.CodeOf(err) == domain.CodeRateLimit && s.settled(ctx, orderID, target, actorID) {
			return true, nil
		}
		return false, err
	}
	if !domain.CanTransitionOrder(current.Status, target) {
		return s.reject(current, target, actorID, reasonNotAllowed), nil
	}
	if !domain.CanOperateOrder(current, actorID, target) {
		return s.reject(current, target, actorID, reasonPermission), nil
	}

	reason := ""
	if target == domain.OrderCancelled {
		reason = extra.CancelReason
	}
	next := current.WithTransition(target, actorID, reason, now)
	swapped, err := s.orders.CompareAndSwap(ctx, &next, current.Status, current.UpdatedAt)
	if err != nil {
		return false, domain.Unavailable(err)
	}
	if !swapped {
		latest, err := s.orders.FindById(ctx, orderID)
		if err != nil {
			return false, domain.Unavailable(err)
		}
		if latest != nil && latest.Status == target {
			// a concurrent writer already reached target and owns its effects
			return true, nil
		}
		return s.reject(current, target, actorID, reasonConflict), nil
	}

	s.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"from":     current.Status,
		"to":       target,
		"actor_id": actorID,
	}).Info("order status changed")
	s.afterTransition(current, &next, actorID)
	return true, nil
}

// settled reports whether a throttled request was already carried out by
// an earlier call of the same actor.
func (s *orderService) settled(ctx context.Context, orderID string, target domain.OrderStatus, actorID string) bool {
	latest, err := s.orders.FindById(ctx, orderID)
	if err != nil || latest == nil {
		return false
	}
	return latest.Status == target && domain.CanOperateOrder(latest, actorID, target)
}

func (s *orderService) assertStatusLimits(actorID, orderID string, target domain.OrderStatus) error {
	if err := s.limiter.AssertRateLimit(fmt.Sprintf("order:status:%s:%s:%s", actorID, orderID, target), s.policy.StatusInterval); err != nil {
		return err
	}
	return s.limiter.AssertBurstLimit(fmt.Sprintf("order:status:burst:%s:%s", actorID, orderID), s.policy.StatusBurstWindow, s.policy.StatusBurstMax)
}

func (s *orderService) afterTransition(prev, next *domain.Order, actorID string) {
	switch next.Status {
	case domain.OrderCompleted:
		s.effects.AwardPoints(actorID, domain.BizCompleteOrder, next.ID)
		s.effects.OrderCompleted(next.ID, actorID)
		s.effects.ProductStatus(next.ID, next.ProductID, catalog.ProductSold)
	case domain.OrderCancelled:
		s.effects.ProductStatus(next.ID, next.ProductID, catalog.ProductAvailable)
		if prev.ReachedPayment() {
			s.effects.PaidOrderCancelled(next.ID, actorID)
		}
	}
	s.effects.Audit(domain.AuditOrderStatusChanged, actorID, domain.AuditPayload{
		"orderId":      next.ID,
		"from":         string(prev.Status),
		"to":           string(next.Status),
		"cancelReason": next.CancelReason,
	})
}

// expire persists the timeout view of order. Only the CAS winner releases
// the product; losers just observe the cancelled state.
func (s *orderService) expire(ctx context.Context, order *domain.Order, now time.Time) domain.Order {
	view := order.ExpiredView(now)
	entry := s.log.WithFields(logrus.Fields{"order_id": order.ID, "product_id": order.ProductID})

	swapped, err := s.orders.CompareAndSwap(ctx, &view, order.Status, order.UpdatedAt)
	switch {
	case err != nil:
		entry.WithError(err).Warn("persist order expiry failed")
	case swapped:
		entry.Info("order expired")
		s.effects.ProductStatus(order.ID, order.ProductID, catalog.ProductAvailable)
		s.effects.Audit(domain.AuditOrderExpired, domain.SystemActor, domain.AuditPayload{
			"orderId":  order.ID,
			"expireAt": order.ExpireAt,
		})
	}
	return view
}

func (s *orderService) reject(order *domain.Order, target domain.OrderStatus, actorID, reason string) bool {
	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"target":   target,
		"actor_id": actorID,
		"reason":   reason,
	}).Info("order transition rejected")
	s.effects.Audit(domain.AuditOrderStatusRejected, actorID, domain.AuditPayload{
		"orderId": order.ID,
		"status":  string(order.Status),
		"target":  string(target),
		"reason":  reason,
	})
	return false
}

func (s *orderService) load(ctx context.Context, orderID string) (*domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, domain.InvalidParam("orderId is required")
	}
	order, err := s.orders.FindById(ctx, orderID)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}
