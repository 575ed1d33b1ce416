package service

import (
	"time"

	"campus-market/internal/domain"
)

const (
	maxListLimit    = 100
	orderReviewList = 10
	ratingWindow    = 200
	taskStatsScan   = 500
)

// RateLimiter guards mutations before they touch the store.
type RateLimiter interface {
	AssertRateLimit(key string, interval time.Duration) error
	AssertBurstLimit(key string, window time.Duration, max int) error
}

// Locker rejects concurrent holders of the same key.
type Locker interface {
	TryLock(key string) (release func(), ok bool)
}

type OrderPolicy struct {
	TTL               time.Duration
	CreateInterval    time.Duration
	StatusInterval    time.Duration
	StatusBurstWindow time.Duration
	StatusBurstMax    int
	ReviewInterval    time.Duration
}

func DefaultOrderPolicy() OrderPolicy {
	return OrderPolicy{
		TTL:               domain.DefaultOrderTTL,
		CreateInterval:    2500 * time.Millisecond,
		StatusInterval:    time.Second,
		StatusBurstWindow: 10 * time.Second,
		StatusBurstMax:    5,
		ReviewInterval:    2 * time.Second,
	}
}

type TaskPolicy struct {
	PublishInterval   time.Duration
	StatusInterval    time.Duration
	StatusBurstWindow time.Duration
	StatusBurstMax    int
}

func DefaultTaskPolicy() TaskPolicy {
	return TaskPolicy{
		PublishInterval:   2500 * time.Millisecond,
		StatusInterval:    900 * time.Millisecond,
		StatusBurstWindow: 10 * time.Second,
		StatusBurstMax:    6,
	}
}

// Rejection reasons logged and audited for refused transitions.
const (
	reasonNotAllowed = "transition_not_allowed"
	reasonPermission = "permission_denied"
	reasonConflict   = "cas_conflict"
	reasonExpired    = "expired"
)
