package domain

import "time"

// DefaultOrderTTL is the creation-to-expiry window of an order.
const DefaultOrderTTL = 24 * time.Hour

func OrderExpireAt(createdAt time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultOrderTTL
	}
	return createdAt.Add(ttl)
}

// Expired reports whether the order passed its deadline before meet-up.
// Reaching meet_confirmed clears ExpireAt, so a met-up order never expires.
func (o *Order) Expired(now time.Time) bool {
	if o == nil || o.ExpireAt == nil {
		return false
	}
	if o.Status != OrderPending && o.Status != OrderMeetConfirmed {
		return false
	}
	return now.After(*o.ExpireAt)
}

// ExpiredView returns the order as it reads once the TTL has lapsed:
// cancelled by the system at its deadline. The write stamp is advanced so
// the view can be persisted as-is with a CAS against o.
func (o Order) ExpiredView(now time.Time) Order {
	view := o
	cancelledAt := *o.ExpireAt
	view.Status = OrderCancelled
	view.CancelledAt = &cancelledAt
	view.CancelledBy = SystemActor
	view.CancelReason = CancelReasonTimeout
	view.UpdatedAt = NextStamp(o.UpdatedAt, now)
	return view
}
