package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	AuditOrderCreated        = "order_create_success"
	AuditOrderStatusChanged  = "order_status_changed"
	AuditOrderStatusRejected = "order_status_change_rejected"
	AuditOrderExpired        = "order_expired"
	AuditReviewSubmitted     = "review_submitted"
	AuditTaskPublished       = "task_published"
	AuditTaskTaken           = "task_taken"
	AuditTaskStatusChanged   = "task_status_changed"
	AuditTaskStatusRejected  = "task_status_change_rejected"
	AuditTaskDualConfirm     = "task_dual_confirm"
	unknownAuditUser         = "unknown"
)

// AuditPayload is stored as a JSON object.
type AuditPayload map[string]any

func (p AuditPayload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(p))
}

func (p *AuditPayload) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = AuditPayload{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Errorf("audit payload: unsupported type %T", src)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return errors.Wrap(err, "audit payload")
	}
	*p = out
	return nil
}

type AuditEvent struct {
	ID        string       `db:"id" json:"id"`
	Action    string       `db:"action" json:"action"`
	UserID    string       `db:"user_id" json:"userId"`
	Payload   AuditPayload `db:"payload" json:"payload"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
}

func NewAuditEvent(action, userID string, payload AuditPayload, now time.Time) AuditEvent {
	if userID == "" {
		userID = unknownAuditUser
	}
	if payload == nil {
		payload = AuditPayload{}
	}
	return AuditEvent{
		ID:        uuid.NewString(),
		Action:    action,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: NextStamp(time.Time{}, now),
	}
}
