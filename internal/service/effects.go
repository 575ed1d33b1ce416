package service

import (
	"context"
	"fmt"

	"campus-market/internal/clock"
	"campus-market/internal/domain"
	"campus-market/internal/infrastructure/catalog"
	"campus-market/internal/worker"

	"github.com/sirupsen/logrus"
)

type Dispatcher interface {
	Dispatch(effect worker.Effect)
}

// SideEffects turns lifecycle milestones into keyed, fire-and-forget
// effects. Nothing here reports failure to the caller.
type SideEffects struct {
	dispatcher Dispatcher
	catalog    catalog.Catalog
	points     PointsService
	trust      TrustService
	audit      AuditService
	clock      clock.Clock
	log        logrus.FieldLogger
}

func NewSideEffects(
	dispatcher Dispatcher,
	cat catalog.Catalog,
	points PointsService,
	trust TrustService,
	audit AuditService,
	clk clock.Clock,
	log logrus.FieldLogger,
) *SideEffects {
	return &SideEffects{
		dispatcher: dispatcher,
		catalog:    cat,
		points:     points,
		trust:      trust,
		audit:      audit,
		clock:      clk,
		log:        log,
	}
}

func (e *SideEffects) ProductStatus(orderID, productID string, status catalog.ProductStatus) {
	e.dispatcher.Dispatch(worker.Effect{
		Name: "catalog.update_status",
		Key:  fmt.Sprintf("catalog:%s:%s", orderID, status),
		Run: func(ctx context.Context) error {
			return e.catalog.UpdateProductStatus(ctx, productID, status)
		},
	})
}

func (e *SideEffects) AwardPoints(userID string, bizType domain.BizType, bizID string) {
	e.dispatcher.Dispatch(worker.Effect{
		Name: "points.award",
		Key:  fmt.Sprintf("points:%s:%s", bizType, bizID),
		Run: func(ctx context.Context) error {
			_, err := e.points.AwardPoints(ctx, userID, bizType, bizID)
			return err
		},
	})
}

func (e *SideEffects) OrderCompleted(orderID, userID string) {
	e.trustEffect("trust.order_completed", "trust:order_completed:"+orderID, func(ctx context.Context) error {
		return e.trust.RecordOrderCompletion(ctx, userID)
	})
}

func (e *SideEffects) PaidOrderCancelled(orderID, userID string) {
	e.trustEffect("trust.order_cancelled", "trust:order_cancelled:"+orderID, func(ctx context.Context) error {
		return e.trust.RecordOrderCancellation(ctx, userID)
	})
}

func (e *SideEffects) TaskCompleted(taskID, userID string) {
	e.trustEffect("trust.task_completed", "trust:task_completed:"+taskID, func(ctx context.Context) error {
		return e.trust.RecordTaskCompletion(ctx, userID)
	})
}

// RatingChanged recomputes the reviewee's running average from the store.
func (e *SideEffects) RatingChanged(reviewID, userID string, scores func(ctx context.Context) ([]int, error)) {
	e.trustEffect("trust.avg_rating", "trust:rating:"+reviewID, func(ctx context.Context) error {
		s, err := scores(ctx)
		if err != nil {
			return err
		}
		return e.trust.UpdateAvgRating(ctx, userID, domain.AverageRating(s))
	})
}

func (e *SideEffects) trustEffect(name, key string, run func(ctx context.Context) error) {
	e.dispatcher.Dispatch(worker.Effect{Name: name, Key: key, Run: run})
}

// Audit appends an event in the background. The event is stamped now so
// its time reflects the transition, not the worker pickup.
func (e *SideEffects) Audit(action, userID string, payload domain.AuditPayload) {
	event := domain.NewAuditEvent(action, userID, payload, e.clock.Now())
	e.dispatcher.Dispatch(worker.Effect{
		Name: "audit." + action,
		Run: func(ctx context.Context) error {
			return e.audit.Append(ctx, event)
		},
	})
}
