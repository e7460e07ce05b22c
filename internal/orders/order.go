package orders

import (
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/account"
	"github.com/ariefcatur/go-storefront-checkout/internal/notify"
	"github.com/shopspring/decimal"
)

// Order is one purchased line item; a checkout of N items yields N orders.
type Order struct {
	ID                string          `json:"id"`
	CheckoutID        string          `json:"checkout_id"`
	UserID            string          `json:"user_id"`
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name"`
	VendorID          string          `json:"vendor_id"`
	Quantity          int             `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	Total             decimal.Decimal `json:"total"`
	Status            Status          `json:"status"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentID         string          `json:"payment_id"`
	DeliveryStatus    DeliveryStatus  `json:"delivery_status"`
	ShippingInfo      account.Address `json:"shipping_info"`
	ReturnReason      string          `json:"return_reason,omitempty"`
	ReturnRequestedAt *time.Time      `json:"return_requested_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	// purchaser contact, read from users
	UserEmail string `json:"-"`
	UserName  string `json:"-"`
}

type Payment struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	VendorID      string          `json:"vendor_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	PaymentID     string          `json:"payment_id"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (o *Order) Summary() *notify.OrderSummary {
	return &notify.OrderSummary{
		OrderID:        o.ID,
		ProductName:    o.ProductName,
		Quantity:       o.Quantity,
		Price:          o.Price,
		Total:          o.Total,
		PaymentMethod:  o.PaymentMethod,
		PaymentID:      o.PaymentID,
		Status:         string(o.Status),
		DeliveryStatus: string(o.DeliveryStatus),
		ShippingInfo:   o.ShippingInfo,
		PlacedAt:       o.CreatedAt,
	}
}

func (o *Order) Event(kind notify.Kind) notify.Event {
	return notify.Event{
		Kind:      kind,
		Recipient: notify.EmailAddress{Email: o.UserEmail, Name: o.UserName},
		Order:     o.Summary(),
		Reason:    o.ReturnReason,
	}
}
