package domain

import (
	"time"

	"github.com/google/uuid"
)

type BizType string

const (
	BizCheckin            BizType = "checkin"
	BizCheckinStreakBonus BizType = "checkin_streak_bonus"
	BizPublishProduct     BizType = "publish_product"
	BizCompleteOrder      BizType = "complete_order"
	BizPublishTask        BizType = "publish_task"
	BizCompleteTask       BizType = "complete_task"
	BizPublishFeed        BizType = "publish_feed"
	BizSubmitReview       BizType = "submit_review"
)

type PointsRule struct {
	Change int
	Reason string
}

var pointsRules = map[BizType]PointsRule{
	BizCheckin:            {Change: 5, Reason: "daily check-in"},
	BizCheckinStreakBonus: {Change: 2, Reason: "check-in streak bonus"},
	BizPublishProduct:     {Change: 10, Reason: "published a product"},
	BizCompleteOrder:      {Change: 15, Reason: "completed a trade"},
	BizPublishTask:        {Change: 8, Reason: "published a task"},
	BizCompleteTask:       {Change: 12, Reason: "completed a task"},
	BizPublishFeed:        {Change: 5, Reason: "published a post"},
	BizSubmitReview:       {Change: 3, Reason: "submitted a review"},
}

func RuleFor(b BizType) (PointsRule, bool) {
	r, ok := pointsRules[b]
	return r, ok
}

type LedgerEntry struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Change    int       `db:"change" json:"change"`
	Reason    string    `db:"reason" json:"reason"`
	BizType   BizType   `db:"biz_type" json:"bizType"`
	BizID     string    `db:"biz_id" json:"bizId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

func NewLedgerEntry(userID string, bizType BizType, bizID string, rule PointsRule, now time.Time) LedgerEntry {
	return LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Change:    rule.Change,
		Reason:    rule.Reason,
		BizType:   bizType,
		BizID:     bizID,
		CreatedAt: NextStamp(time.Time{}, now),
	}
}

type PointsSummary struct {
	Total   int           `json:"total"`
	Entries []LedgerEntry `json:"entries"`
}

type RankEntry struct {
	UserID string `db:"user_id" json:"userId"`
	Total  int    `db:"total" json:"total"`
}
