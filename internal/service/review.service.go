package service

import (
	"context"
	"fmt"

	"campus-market/internal/domain"

	"github.com/sirupsen/logrus"
)

type ReviewRequest struct {
	OrderID      string `json:"-"`
	FromUserID   string `json:"-"`
	FromUserName string `json:"fromUserName"`
	Score        int    `json:"score"`
	Content      string `json:"content"`
	Anonymous    bool   `json:"anonymous"`
}

func (s *orderService) SubmitReview(ctx context.Context, req ReviewRequest) (*domain.Review, error) {
	if req.FromUserID == "" {
		return nil, domain.ErrAuthRequired
	}
	if err := s.limiter.AssertRateLimit(fmt.Sprintf("order:review:%s:%s", req.FromUserID, req.OrderID), s.policy.ReviewInterval); err != nil {
		return nil, err
	}

	order, err := s.load(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParty(req.FromUserID) {
		return nil, domain.ErrNotParty
	}
	if order.Status != domain.OrderCompleted {
		return nil, domain.ErrOrderNotCompleted
	}

	exists, err := s.reviews.Exists(ctx, order.ID, req.FromUserID)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	if exists {
		return nil, domain.ErrAlreadyReviewed
	}

	fromName := req.FromUserName
	if fromName == "" {
		fromName = order.PartyName(req.FromUserID)
	}
	toID, toName := order.Counterparty(req.FromUserID)
	review, err := domain.NewReview(domain.NewReviewInput{
		OrderID:      order.ID,
		FromUserID:   req.FromUserID,
		FromUserName: fromName,
		ToUserID:     toID,
		ToUserName:   toName,
		Score:        req.Score,
		Content:      req.Content,
		Anonymous:    req.Anonymous,
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.reviews.CreateReview(ctx, review); err != nil {
		return nil, domain.Unavailable(err)
	}

	s.log.WithFields(logrus.Fields{
		"order_id":  order.ID,
		"review_id": review.ID,
		"score":     review.Score,
	}).Info("review submitted")
	s.effects.RatingChanged(review.ID, toID, func(ctx context.Context) ([]int, error) {
		return s.reviews.ScoresFor(ctx, toID, ratingWindow)
	})
	s.effects.AwardPoints(req.FromUserID, domain.BizSubmitReview, order.ID+":"+req.FromUserID)
	s.effects.Audit(domain.AuditReviewSubmitted, req.FromUserID, domain.AuditPayload{
		"orderId":  order.ID,
		"reviewId": review.ID,
		"score":    review.Score,
	})
	return review, nil
}

func (s *orderService) GetOrderReviews(ctx context.Context, orderID string) ([]domain.Review, error) {
	if orderID == "" {
		return nil, domain.InvalidParam("orderId is required")
	}
	reviews, err := s.reviews.ListByOrder(ctx, orderID, orderReviewList)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	return reviews, nil
}
