package domain

import (
	"math"
	"time"
)

const (
	DefaultTrustScore = 60

	orderBoostCap     = 15
	orderBoostEach    = 1.5
	taskBoostCap      = 10
	ratingWeight      = 4
	reportPenalty     = 5
	paidCancelPenalty = 8
)

type TrustRecord struct {
	UserID            string    `db:"user_id" json:"userId"`
	Score             int       `db:"score" json:"score"`
	CompletedOrders   int       `db:"completed_orders" json:"completedOrders"`
	CompletedTasks    int       `db:"completed_tasks" json:"completedTasks"`
	ReportCount       int       `db:"report_count" json:"reportCount"`
	PaidCancellations int       `db:"paid_cancellations" json:"paidCancellations"`
	AvgRating         float64   `db:"avg_rating" json:"avgRating"`
	Revision          int64     `db:"revision" json:"revision"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

func NewTrustRecord(userID string, now time.Time) TrustRecord {
	return TrustRecord{
		UserID:    userID,
		Score:     DefaultTrustScore,
		Revision:  1,
		UpdatedAt: now,
	}
}

// ComputeScore derives the 0..100 trust score from the record's counters.
// A cancellation after payment weighs more than a report.
func ComputeScore(r TrustRecord) int {
	score := float64(DefaultTrustScore)
	score += math.Min(orderBoostCap, float64(r.CompletedOrders)*orderBoostEach)
	score += math.Min(taskBoostCap, float64(r.CompletedTasks))
	if r.AvgRating > 0 {
		score += (r.AvgRating - 3) * ratingWeight
	}
	score -= float64(r.ReportCount * reportPenalty)
	score -= float64(r.PaidCancellations * paidCancelPenalty)

	return int(math.Max(0, math.Min(100, math.Round(score))))
}

type TrustLevel string

const (
	TrustExcellent        TrustLevel = "excellent"
	TrustGood             TrustLevel = "good"
	TrustFair             TrustLevel = "fair"
	TrustNeedsImprovement TrustLevel = "needs_improvement"
)

func LevelFor(score int) TrustLevel {
	switch {
	case score >= 90:
		return TrustExcellent
	case score >= 75:
		return TrustGood
	case score >= 60:
		return TrustFair
	}
	return TrustNeedsImprovement
}
