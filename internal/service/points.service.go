package service

import (
	"context"

	"campus-market/internal/clock"
	"campus-market/internal/domain"
	"campus-market/internal/repo"

	"github.com/sirupsen/logrus"
)

type PointsService interface {
	// AwardPoints credits the rule for bizType once per (bizType, bizID).
	// It returns nil for an unknown rule or an already credited pair.
	AwardPoints(ctx context.Context, userID string, bizType domain.BizType, bizID string) (*domain.LedgerEntry, error)
	Balance(ctx context.Context, userID string) (domain.PointsSummary, error)
	Ranking(ctx context.Context, limit int) ([]domain.RankEntry, error)
}

type pointsService struct {
	ledger repo.LedgerRepo
	clock  clock.Clock
	log    logrus.FieldLogger
}

func NewPointsService(ledger repo.LedgerRepo, clk clock.Clock, log logrus.FieldLogger) PointsService {
	return &pointsService{ledger: ledger, clock: clk, log: log.WithField("component", "points")}
}

func (s *pointsService) AwardPoints(ctx context.Context, userID string, bizType domain.BizType, bizID string) (*domain.LedgerEntry, error) {
	if userID == "" {
		return nil, domain.ErrAuthRequired
	}
	rule, ok := domain.RuleFor(bizType)
	if !ok || bizID == "" {
		return nil, nil
	}

	entry := domain.NewLedgerEntry(userID, bizType, bizID, rule, s.clock.Now())
	inserted, err := s.ledger.Append(ctx, entry)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	if !inserted {
		s.log.WithFields(logrus.Fields{"biz_type": bizType, "biz_id": bizID}).Debug("points already credited")
		return nil, nil
	}
	s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"biz_type": bizType,
		"change":   entry.Change,
	}).Info("points credited")
	return &entry, nil
}

func (s *pointsService) Balance(ctx context.Context, userID string) (domain.PointsSummary, error) {
	if userID == "" {
		return domain.PointsSummary{}, domain.ErrAuthRequired
	}
	total, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return domain.PointsSummary{}, domain.Unavailable(err)
	}
	entries, err := s.ledger.ListByUser(ctx, userID, maxListLimit)
	if err != nil {
		return domain.PointsSummary{}, domain.Unavailable(err)
	}
	return domain.PointsSummary{Total: total, Entries: entries}, nil
}

func (s *pointsService) Ranking(ctx context.Context, limit int) ([]domain.RankEntry, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	ranks, err := s.ledger.Ranking(ctx, limit)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	return ranks, nil
}
