package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending           OrderStatus = "pending"
	OrderMeetConfirmed     OrderStatus = "meet_confirmed"
	OrderPaidConfirmed     OrderStatus = "paid_confirmed"
	OrderReceivedConfirmed OrderStatus = "received_confirmed"
	OrderCompleted         OrderStatus = "completed"
	OrderCancelled         OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// SystemActor is recorded as CancelledBy when an order expires.
const SystemActor = "system"

const (
	CancelReasonTimeout           = "timeout"
	CancelReasonBuyerChangedMind  = "buyer_changed_mind"
	CancelReasonSellerUnavailable = "seller_unavailable"
	CancelReasonPriceDisagreement = "price_disagreement"
	CancelReasonItemDefect        = "item_defect"
	CancelReasonScheduleConflict  = "schedule_conflict"
	CancelReasonOther             = "other"
)

var CancelReasons = []string{
	CancelReasonBuyerChangedMind,
	CancelReasonSellerUnavailable,
	CancelReasonPriceDisagreement,
	CancelReasonItemDefect,
	CancelReasonScheduleConflict,
	CancelReasonOther,
}

// ValidCancelReason accepts an empty reason or one of CancelReasons.
func ValidCancelReason(reason string) bool {
	if reason == "" {
		return true
	}
	for _, r := range CancelReasons {
		if r == reason {
			return true
		}
	}
	return false
}

type Order struct {
	ID           string          `db:"id" json:"id"`
	ProductID    string          `db:"product_id" json:"productId"`
	ProductTitle string          `db:"product_title" json:"productTitle"`
	ProductPrice decimal.Decimal `db:"product_price" json:"productPrice"`
	BuyerID      string          `db:"buyer_id" json:"buyerId"`
	BuyerName    string          `db:"buyer_name" json:"buyerName"`
	SellerID     string          `db:"seller_id" json:"sellerId"`
	SellerName   string          `db:"seller_name" json:"sellerName"`
	Status       OrderStatus     `db:"status" json:"status"`

	ExpireAt            *time.Time `db:"expire_at" json:"expireAt"`
	MeetConfirmedAt     *time.Time `db:"meet_confirmed_at" json:"meetConfirmedAt"`
	PaidConfirmedAt     *time.Time `db:"paid_confirmed_at" json:"paidConfirmedAt"`
	ReceivedConfirmedAt *time.Time `db:"received_confirmed_at" json:"receivedConfirmedAt"`
	CompletedAt         *time.Time `db:"completed_at" json:"completedAt"`
	CancelledAt         *time.Time `db:"cancelled_at" json:"cancelledAt"`
	CancelledBy         string     `db:"cancelled_by" json:"cancelledBy"`
	CancelReason        string     `db:"cancel_reason" json:"cancelReason"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// SellerContext is the commercial snapshot copied into an order at
// creation. It is never re-read from the catalog afterwards.
type SellerContext struct {
	SellerID     string          `json:"sellerId"`
	SellerName   string          `json:"sellerName"`
	ProductTitle string          `json:"productTitle"`
	ProductPrice decimal.Decimal `json:"productPrice"`
}

type NewOrderInput struct {
	ProductID string
	BuyerID   string
	BuyerName string
	Seller    SellerContext
}

const (
	defaultBuyerName  = "buyer"
	defaultSellerName = "seller"
	maxTitleLength    = 80
)

func NewOrder(in NewOrderInput, now time.Time, ttl time.Duration) (*Order, error) {
	productID := strings.TrimSpace(in.ProductID)
	if productID == "" {
		return nil, InvalidParam("productId is required")
	}
	if in.BuyerID == "" {
		return nil, ErrAuthRequired
	}
	if in.Seller.SellerID == "" {
		return nil, InvalidParam("sellerId is required")
	}
	if in.Seller.SellerID == in.BuyerID {
		return nil, InvalidParam("buyer and seller must differ")
	}
	if in.Seller.ProductPrice.IsNegative() {
		return nil, InvalidParam("productPrice cannot be negative")
	}
	if runeLen(in.Seller.ProductTitle) > maxTitleLength {
		return nil, InvalidParam("productTitle is too long")
	}

	stamp := NextStamp(time.Time{}, now)
	expireAt := OrderExpireAt(stamp, ttl)
	return &Order{
		ID:           uuid.NewString(),
		ProductID:    productID,
		ProductTitle: in.Seller.ProductTitle,
		ProductPrice: in.Seller.ProductPrice,
		BuyerID:      in.BuyerID,
		BuyerName:    orDefault(in.BuyerName, defaultBuyerName),
		SellerID:     in.Seller.SellerID,
		SellerName:   orDefault(in.Seller.SellerName, defaultSellerName),
		Status:       OrderPending,
		ExpireAt:     &expireAt,
		CreatedAt:    stamp,
		UpdatedAt:    stamp,
	}, nil
}

func (o *Order) IsParty(userID string) bool {
	return userID != "" && (o.BuyerID == userID || o.SellerID == userID)
}

// Counterparty returns the other side of the order for userID.
func (o *Order) Counterparty(userID string) (id, name string) {
	if o.BuyerID == userID {
		return o.SellerID, o.SellerName
	}
	return o.BuyerID, o.BuyerName
}

// PartyName returns the display name recorded for userID on this order.
func (o *Order) PartyName(userID string) string {
	if o.SellerID == userID {
		return o.SellerName
	}
	return o.BuyerName
}

// ReachedPayment reports whether the seller has attested payment.
func (o *Order) ReachedPayment() bool {
	return o.Status == OrderPaidConfirmed || o.Status == OrderReceivedConfirmed || o.PaidConfirmedAt != nil
}

// WithTransition returns a copy of o moved to target with the edge's
// timestamp set and a fresh write stamp.
func (o Order) WithTransition(target OrderStatus, actorID, cancelReason string, now time.Time) Order {
	next := o
	stamp := NextStamp(o.UpdatedAt, now)
	next.Status = target
	next.UpdatedAt = stamp

	switch target {
	case OrderMeetConfirmed:
		next.MeetConfirmedAt = timePtr(stamp)
		next.ExpireAt = nil
	case OrderPaidConfirmed:
		next.PaidConfirmedAt = timePtr(stamp)
	case OrderReceivedConfirmed:
		next.ReceivedConfirmedAt = timePtr(stamp)
	case OrderCompleted:
		next.CompletedAt = timePtr(stamp)
	case OrderCancelled:
		next.CancelledAt = timePtr(stamp)
		next.CancelledBy = actorID
		next.CancelReason = cancelReason
	}
	return next
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
