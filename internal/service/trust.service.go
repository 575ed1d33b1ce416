package service

import (
	"context"

	"campus-market/internal/clock"
	"campus-market/internal/domain"
	"campus-market/internal/repo"

	"github.com/sirupsen/logrus"
)

const trustUpdateAttempts = 5

type TrustService interface {
	RecordOrderCompletion(ctx context.Context, userID string) error
	// RecordOrderCancellation penalizes a cancellation after payment was
	// attested.
	RecordOrderCancellation(ctx context.Context, userID string) error
	RecordTaskCompletion(ctx context.Context, userID string) error
	UpdateAvgRating(ctx context.Context, userID string, avg float64) error
	// Get returns the stored record, or the default record for a user
	// without history.
	Get(ctx context.Context, userID string) (domain.TrustRecord, error)
}

type trustService struct {
	repo  repo.TrustRepo
	clock clock.Clock
	log   logrus.FieldLogger
}

func NewTrustService(trustRepo repo.TrustRepo, clk clock.Clock, log logrus.FieldLogger) TrustService {
	return &trustService{repo: trustRepo, clock: clk, log: log.WithField("component", "trust")}
}

func (s *trustService) RecordOrderCompletion(ctx context.Context, userID string) error {
	return s.update(ctx, userID, func(r *domain.TrustRecord) { r.CompletedOrders++ })
}

func (s *trustService) RecordOrderCancellation(ctx context.Context, userID string) error {
	return s.update(ctx, userID, func(r *domain.TrustRecord) { r.PaidCancellations++ })
}

func (s *trustService) RecordTaskCompletion(ctx context.Context, userID string) error {
	return s.update(ctx, userID, func(r *domain.TrustRecord) { r.CompletedTasks++ })
}

func (s *trustService) UpdateAvgRating(ctx context.Context, userID string, avg float64) error {
	return s.update(ctx, userID, func(r *domain.TrustRecord) { r.AvgRating = avg })
}

func (s *trustService) Get(ctx context.Context, userID string) (domain.TrustRecord, error) {
	if userID == "" {
		return domain.TrustRecord{}, domain.ErrAuthRequired
	}
	rec, err := s.repo.Find(ctx, userID)
	if err != nil {
		return domain.TrustRecord{}, domain.Unavailable(err)
	}
	if rec == nil {
		return domain.NewTrustRecord(userID, s.clock.Now()), nil
	}
	return *rec, nil
}

// update is a read-modify-CAS on the record revision.
func (s *trustService) update(ctx context.Context, userID string, mutate func(*domain.TrustRecord)) error {
	if userID == "" {
		return domain.ErrAuthRequired
	}
	for attempt := 0; attempt < trustUpdateAttempts; attempt++ {
		cur, err := s.repo.Find(ctx, userID)
		if err != nil {
			return domain.Unavailable(err)
		}
		if cur == nil {
			fresh := domain.NewTrustRecord(userID, s.clock.Now())
			if _, err := s.repo.Insert(ctx, fresh); err != nil {
				return domain.Unavailable(err)
			}
			// re-read whoever won the insert
			continue
		}

		next := *cur
		mutate(&next)
		next.Score = domain.ComputeScore(next)
		next.Revision = cur.Revision + 1
		next.UpdatedAt = s.clock.Now()

		ok, err := s.repo.CompareAndSwap(ctx, next, cur.Revision)
		if err != nil {
			return domain.Unavailable(err)
		}
		if ok {
			s.log.WithFields(logrus.Fields{
				"user_id": userID,
				"score":   next.Score,
				"level":   domain.LevelFor(next.Score),
			}).Debug("trust score updated")
			return nil
		}
	}
	s.log.WithField("user_id", userID).Warn("trust update gave up after repeated conflicts")
	return domain.ErrTrustContention
}
