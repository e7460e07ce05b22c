package orders

import "time"

// Status is the payment state recorded on the order.
type Status string

const (
	StatusPending Status = "pending" // cash on delivery
	StatusPaid    Status = "paid"
)

type DeliveryStatus string

const (
	DeliveryPlaced          DeliveryStatus = "Order Placed"
	DeliveryDelivered       DeliveryStatus = "Delivered"
	DeliveryReturnInitiated DeliveryStatus = "Return Initiated"
	DeliveryRefunded        DeliveryStatus = "Refunded"
	DeliveryCancelled       DeliveryStatus = "Cancelled"
)

// ReturnWindow dihitung dari createdAt, batas inklusif.
const ReturnWindow = 7 * 24 * time.Hour

var validNext = map[DeliveryStatus]map[DeliveryStatus]bool{
	DeliveryPlaced:          {DeliveryDelivered: true, DeliveryCancelled: true},
	DeliveryDelivered:       {DeliveryReturnInitiated: true},
	DeliveryReturnInitiated: {DeliveryDelivered: true, DeliveryRefunded: true},
	DeliveryRefunded:        {},
	DeliveryCancelled:       {},
}

func CanTransition(from, to DeliveryStatus) bool {
	return validNext[from][to]
}

type Action string

const (
	ActionCancel       Action = "cancel"
	ActionReturn       Action = "return"
	ActionCancelReturn Action = "cancel_return"
)

func CanCancel(o *Order) bool {
	return o.DeliveryStatus == DeliveryPlaced
}

func CanReturn(o *Order, now time.Time) bool {
	return o.DeliveryStatus == DeliveryDelivered && !now.After(o.CreatedAt.Add(ReturnWindow))
}

func CanCancelReturn(o *Order) bool {
	return o.DeliveryStatus == DeliveryReturnInitiated
}

// AvailableActions lists what the purchaser may do with o at now.
func AvailableActions(o *Order, now time.Time) []Action {
	out := []Action{}
	if CanCancel(o) {
		out = append(out, ActionCancel)
	}
	if CanReturn(o, now) {
		out = append(out, ActionReturn)
	}
	if CanCancelReturn(o) {
		out = append(out, ActionCancelReturn)
	}
	return out
}
