package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinReviewScore   = 1
	MaxReviewScore   = 5
	maxReviewContent = 500
)

type Review struct {
	ID           string    `db:"id" json:"id"`
	OrderID      string    `db:"order_id" json:"orderId"`
	FromUserID   string    `db:"from_user_id" json:"fromUserId"`
	FromUserName string    `db:"from_user_name" json:"fromUserName"`
	ToUserID     string    `db:"to_user_id" json:"toUserId"`
	ToUserName   string    `db:"to_user_name" json:"toUserName"`
	Score        int       `db:"score" json:"score"`
	Content      string    `db:"content" json:"content"`
	Anonymous    bool      `db:"anonymous" json:"anonymous"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type NewReviewInput struct {
	OrderID      string
	FromUserID   string
	FromUserName string
	ToUserID     string
	ToUserName   string
	Score        int
	Content      string
	Anonymous    bool
}

func NewReview(in NewReviewInput, now time.Time) (*Review, error) {
	if in.FromUserID == "" {
		return nil, ErrAuthRequired
	}
	if in.OrderID == "" || in.ToUserID == "" {
		return nil, InvalidParam("orderId and reviewee are required")
	}
	if in.Score < MinReviewScore || in.Score > MaxReviewScore {
		return nil, InvalidParam("score must be between 1 and 5")
	}
	content := strings.TrimSpace(in.Content)
	if runeLen(content) > maxReviewContent {
		return nil, InvalidParam("review content is too long")
	}
	return &Review{
		ID:           uuid.NewString(),
		OrderID:      in.OrderID,
		FromUserID:   in.FromUserID,
		FromUserName: in.FromUserName,
		ToUserID:     in.ToUserID,
		ToUserName:   in.ToUserName,
		Score:        in.Score,
		Content:      content,
		Anonymous:    in.Anonymous,
		CreatedAt:    NextStamp(time.Time{}, now),
	}, nil
}

// AverageRating rounds the mean score to one decimal place; 0 when empty.
func AverageRating(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	total := 0
	for _, s := range scores {
		total += clampScore(s)
	}
	avg := float64(total) / float64(len(scores))
	return float64(int(avg*10+0.5)) / 10
}

func clampScore(s int) int {
	if s < MinReviewScore {
		return MinReviewScore
	}
	if s > MaxReviewScore {
		return MaxReviewScore
	}
	return s
}
