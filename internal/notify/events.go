package notify

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/account"
	"github.com/shopspring/decimal"
)

const TopicNotifications = "storefront.notifications"

type Kind string

const (
	KindOrderConfirmation     Kind = "order_confirmation"
	KindOrderCancelled        Kind = "order_cancelled"
	KindReturnRequested       Kind = "return_requested"
	KindReturnCancelled       Kind = "return_cancelled"
	KindOrderDelivered        Kind = "order_delivered"
	KindRefundIssued          Kind = "refund_issued"
	KindRegistrationConfirmed Kind = "registration_confirmed"
	// KindCheckoutRefunded: payment captured but the checkout could not be fulfilled.
	KindCheckoutRefunded Kind = "checkout_refunded"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // Kind
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id / registration_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderSummary struct {
	OrderID        string          `json:"order_id"`
	ProductName    string          `json:"product_name"`
	Quantity       int             `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentID      string          `json:"payment_id"`
	Status         string          `json:"status"`
	DeliveryStatus string          `json:"delivery_status"`
	ShippingInfo   account.Address `json:"shipping_info"`
	PlacedAt       time.Time       `json:"placed_at"`
}

type RegistrationSummary struct {
	RegistrationID string          `json:"registration_id"`
	Kind           string          `json:"kind"`
	TargetID       string          `json:"target_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentRef     string          `json:"payment_ref"`
	SlotStart      *time.Time      `json:"slot_start,omitempty"`
}

type RefundSummary struct {
	CheckoutID string          `json:"checkout_id"`
	PaymentID  string          `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
	Refunded   bool            `json:"refunded"`
}

// Event is the payload of one notification.
type Event struct {
	ID           string               `json:"id"`
	Kind         Kind                 `json:"kind"`
	Recipient    EmailAddress         `json:"recipient"`
	Order        *OrderSummary        `json:"order,omitempty"`
	Registration *RegistrationSummary `json:"registration,omitempty"`
	Refund       *RefundSummary       `json:"refund,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

func (e Event) CorrelationID() string {
	switch {
	case e.Order != nil:
		return e.Order.OrderID
	case e.Registration != nil:
		return e.Registration.RegistrationID
	case e.Refund != nil:
		return e.Refund.CheckoutID
	}
	return e.ID
}
