package domain

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskAssigned  TaskStatus = "assigned"
	TaskPickedUp  TaskStatus = "picked_up"
	TaskDelivered TaskStatus = "delivered"
	TaskCompleted TaskStatus = "completed"
	TaskCancelled TaskStatus = "cancelled"

	// TaskConfirmComplete is a transition request only, never stored.
	TaskConfirmComplete TaskStatus = "confirm_complete"
)

func (s TaskStatus) Valid() bool {
	_, ok := taskTransitions[s]
	return ok
}

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

const (
	TaskTypeExpress = "express_delivery"
	TaskTypeOther   = "other"

	taskTypeExpressAlias = "express"
	defaultPublisherName = "campus user"

	maxTaskTitle       = 40
	maxTaskLocation    = 40
	maxTaskDescription = 300
)

// NormalizeTaskType maps legacy aliases onto canonical categories.
func NormalizeTaskType(t string) string {
	t = strings.TrimSpace(t)
	switch t {
	case "":
		return TaskTypeOther
	case taskTypeExpressAlias:
		return TaskTypeExpress
	}
	return t
}

// Requirements is stored as a JSON array.
type Requirements []string

func (r Requirements) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(r))
}

func (r *Requirements) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = Requirements{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Errorf("requirements: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return errors.Wrap(err, "requirements")
	}
	*r = out
	return nil
}

type Task struct {
	ID            string          `db:"id" json:"id"`
	Title         string          `db:"title" json:"title"`
	Type          string          `db:"type" json:"type"`
	Reward        decimal.Decimal `db:"reward" json:"reward"`
	TimeText      string          `db:"time_text" json:"time"`
	Location      string          `db:"location" json:"location"`
	Description   string          `db:"description" json:"description"`
	Publisher     string          `db:"publisher" json:"publisher"`
	PublisherID   string          `db:"publisher_id" json:"publisherId"`
	Status        TaskStatus      `db:"status" json:"status"`
	DeadlineAt    *time.Time      `db:"deadline_at" json:"deadlineAt"`
	DistanceKm    *float64        `db:"distance_km" json:"distanceKm"`
	Requirements  Requirements    `db:"requirements" json:"requirements"`
	IsRecurring   bool            `db:"is_recurring" json:"isRecurring"`
	RecurringRule string          `db:"recurring_rule" json:"recurringRule"`

	AssignedUser   string     `db:"assigned_user" json:"assignedUser"`
	AssignedUserID string     `db:"assigned_user_id" json:"assignedUserId"`
	AssignedAt     *time.Time `db:"assigned_at" json:"assignedAt"`
	PickedUpAt     *time.Time `db:"picked_up_at" json:"pickedUpAt"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"deliveredAt"`
	CompletedAt    *time.Time `db:"completed_at" json:"completedAt"`
	CancelledAt    *time.Time `db:"cancelled_at" json:"cancelledAt"`

	ConfirmProofImage    string     `db:"confirm_proof_image" json:"confirmProofImage"`
	ConfirmByPublisherAt *time.Time `db:"confirm_by_publisher_at" json:"confirmByPublisherAt"`
	ConfirmByAssigneeAt  *time.Time `db:"confirm_by_assignee_at" json:"confirmByAssigneeAt"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type NewTaskInput struct {
	Title         string          `json:"title"`
	Type          string          `json:"type"`
	Reward        decimal.Decimal `json:"reward"`
	TimeText      string          `json:"time"`
	Location      string          `json:"location"`
	Description   string          `json:"description"`
	DeadlineAt    *time.Time      `json:"deadlineAt"`
	DistanceKm    *float64        `json:"distanceKm"`
	Requirements  []string        `json:"requirements"`
	IsRecurring   bool            `json:"isRecurring"`
	RecurringRule string          `json:"recurringRule"`
	Publisher     string          `json:"publisher"`
	PublisherID   string          `json:"-"`
}

func NewTask(in NewTaskInput, now time.Time) (*Task, error) {
	if in.PublisherID == "" {
		return nil, ErrAuthRequired
	}
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return nil, InvalidParam("title is required")
	case runeLen(title) > maxTaskTitle:
		return nil, InvalidParam("title is too long")
	case runeLen(in.Location) > maxTaskLocation:
		return nil, InvalidParam("location is too long")
	case runeLen(in.Description) > maxTaskDescription:
		return nil, InvalidParam("description is too long")
	case in.Reward.IsNegative():
		return nil, InvalidParam("reward cannot be negative")
	case in.DistanceKm != nil && *in.DistanceKm < 0:
		return nil, InvalidParam("distanceKm cannot be negative")
	}

	reqs := Requirements{}
	for _, r := range in.Requirements {
		if r = strings.TrimSpace(r); r != "" {
			reqs = append(reqs, r)
		}
	}

	stamp := NextStamp(time.Time{}, now)
	return &Task{
		ID:            uuid.NewString(),
		Title:         title,
		Type:          NormalizeTaskType(in.Type),
		Reward:        in.Reward,
		TimeText:      in.TimeText,
		Location:      strings.TrimSpace(in.Location),
		Description:   strings.TrimSpace(in.Description),
		Publisher:     orDefault(in.Publisher, defaultPublisherName),
		PublisherID:   in.PublisherID,
		Status:        TaskOpen,
		DeadlineAt:    in.DeadlineAt,
		DistanceKm:    in.DistanceKm,
		Requirements:  reqs,
		IsRecurring:   in.IsRecurring,
		RecurringRule: in.RecurringRule,
		CreatedAt:     stamp,
		UpdatedAt:     stamp,
	}, nil
}

func (t *Task) IsExpress() bool {
	return NormalizeTaskType(t.Type) == TaskTypeExpress
}

func (t *Task) IsParty(userID string) bool {
	if userID == "" {
		return false
	}
	return t.PublisherID == userID || (t.AssignedUserID != "" && t.AssignedUserID == userID)
}

// HasConfirmed reports whether userID already stamped its completion
// confirmation.
func (t *Task) HasConfirmed(userID string) bool {
	switch {
	case userID == "":
		return false
	case t.PublisherID == userID && t.ConfirmByPublisherAt == nil:
		return false
	case t.AssignedUserID == userID && t.ConfirmByAssigneeAt == nil:
		return false
	}
	return t.IsParty(userID)
}

// WithAssignee returns a copy of an open task taken by userID.
func (t Task) WithAssignee(userName, userID string, now time.Time) Task {
	next := t
	stamp := NextStamp(t.UpdatedAt, now)
	next.Status = TaskAssigned
	next.AssignedUser = userName
	next.AssignedUserID = userID
	next.AssignedAt = timePtr(stamp)
	next.CompletedAt = nil
	next.CancelledAt = nil
	next.UpdatedAt = stamp
	return next
}

func (t Task) WithTransition(target TaskStatus, now time.Time) Task {
	next := t
	stamp := NextStamp(t.UpdatedAt, now)
	next.Status = target
	next.UpdatedAt = stamp
	switch target {
	case TaskPickedUp:
		next.PickedUpAt = timePtr(stamp)
	case TaskDelivered:
		next.DeliveredAt = timePtr(stamp)
	case TaskCompleted:
		next.CompletedAt = timePtr(stamp)
	case TaskCancelled:
		next.CancelledAt = timePtr(stamp)
	}
	return next
}

// WithConfirmation stamps the actor's own confirmation. The same write
// completes the task once both sides have confirmed, in either order.
func (t Task) WithConfirmation(actorID string, now time.Time) Task {
	next := t
	stamp := NextStamp(t.UpdatedAt, now)
	next.UpdatedAt = stamp
	if t.PublisherID == actorID && next.ConfirmByPublisherAt == nil {
		next.ConfirmByPublisherAt = timePtr(stamp)
	}
	if t.AssignedUserID == actorID && next.ConfirmByAssigneeAt == nil {
		next.ConfirmByAssigneeAt = timePtr(stamp)
	}
	if next.ConfirmByPublisherAt != nil && next.ConfirmByAssigneeAt != nil {
		next.Status = TaskCompleted
		next.CompletedAt = timePtr(stamp)
	}
	return next
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
