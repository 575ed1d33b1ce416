package domain

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:           {OrderMeetConfirmed, OrderCancelled},
	OrderMeetConfirmed:     {OrderPaidConfirmed, OrderCancelled},
	OrderPaidConfirmed:     {OrderReceivedConfirmed, OrderCancelled},
	OrderReceivedConfirmed: {OrderCompleted},
	OrderCompleted:         {},
	OrderCancelled:         {},
}

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskOpen:      {TaskAssigned, TaskCancelled},
	TaskAssigned:  {TaskPickedUp, TaskDelivered, TaskCompleted, TaskConfirmComplete, TaskCancelled},
	TaskPickedUp:  {TaskDelivered, TaskCancelled},
	TaskDelivered: {TaskCompleted},
	TaskCompleted: {},
	TaskCancelled: {},
}

func CanTransitionOrder(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanOperateOrder reports whether actorID may request the edge into to.
// Each edge is attested by the party with first-hand knowledge: the seller
// confirms payment, the buyer confirms receipt.
func CanOperateOrder(o *Order, actorID string, to OrderStatus) bool {
	if o == nil || actorID == "" {
		return false
	}
	switch to {
	case OrderCancelled, OrderMeetConfirmed, OrderCompleted:
		return o.IsParty(actorID)
	case OrderPaidConfirmed:
		return o.SellerID == actorID
	case OrderReceivedConfirmed:
		return o.BuyerID == actorID
	}
	return false
}

func CanTransitionTask(from, to TaskStatus) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func CanOperateTask(t *Task, actorID string, to TaskStatus) bool {
	if t == nil || actorID == "" {
		return false
	}
	switch to {
	case TaskCancelled:
		return t.PublisherID == actorID
	case TaskPickedUp, TaskDelivered:
		return t.AssignedUserID == actorID
	case TaskConfirmComplete:
		return t.IsParty(actorID)
	case TaskCompleted:
		// only the publisher can vouch that a delivery arrived
		if t.IsExpress() {
			return t.PublisherID == actorID
		}
		return t.IsParty(actorID)
	}
	return false
}
