package checkout

import (
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/account"
	"github.com/ariefcatur/go-storefront-checkout/internal/notify"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentCompleted IntentStatus = "completed"
	IntentFailed    IntentStatus = "failed"
	// IntentRefundPending: paid but not fulfillable; the refund has not gone through yet.
	IntentRefundPending IntentStatus = "refund_pending"
	IntentRefunded      IntentStatus = "refunded"
)

// Line is the price snapshot of one cart item taken when the intent is written.
type Line struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	VendorID    string          `json:"vendor_id"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Intent is the write-ahead record of a checkout. It is unique per
// (UserID, PaymentRef), so a replayed payment confirmation resumes it.
type Intent struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentRef    string        `json:"payment_ref"`
	PaymentID     string        `json:"payment_id"`
	// Provider is empty for cash on delivery and none for free checkouts.
	Provider      payment.Provider `json:"provider,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	UserEmail     string           `json:"user_email,omitempty"`
	Status        IntentStatus     `json:"status"`
	Items         []Line           `json:"items"`
	ShippingInfo  account.Address  `json:"shipping_info"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Attempts      int              `json:"attempts"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (in *Intent) OrderStatus() orders.Status {
	if in.PaymentMethod == PaymentMethodCOD {
		return orders.StatusPending
	}
	return orders.StatusPaid
}

// Captured reports whether money was taken from a processor for this intent.
func (in *Intent) Captured() bool {
	return in.PaymentMethod == PaymentMethodOnline && in.Provider != "" && in.Provider != payment.ProviderNone
}

// ClaimRef is the processor transaction this intent consumes, or "".
func (in *Intent) ClaimRef() string {
	if !in.Captured() {
		return ""
	}
	return string(in.Provider) + ":" + in.PaymentID
}

func (in *Intent) Quantities() map[string]int {
	out := make(map[string]int, len(in.Items))
	for _, l := range in.Items {
		out[l.ProductID] += l.Quantity
	}
	return out
}

func (in *Intent) RefundEvent(refunded bool) notify.Event {
	return notify.Event{
		Kind:      notify.KindCheckoutRefunded,
		Recipient: notify.EmailAddress{Email: in.UserEmail},
		Reason:    in.FailureReason,
		Refund: &notify.RefundSummary{
			CheckoutID: in.ID,
			PaymentID:  in.PaymentID,
			Amount:     in.Amount,
			Refunded:   refunded,
		},
	}
}

type Result struct {
	CheckoutID string         `json:"checkout_id"`
	Status     IntentStatus   `json:"status"`
	Orders     []orders.Order `json:"orders"`
	Skipped    []string       `json:"skipped,omitempty"`
	Replayed   bool           `json:"replayed,omitempty"`
}

func (r *Result) OrderIDs() []string {
	ids := make([]string, 0, len(r.Orders))
	for _, o := range r.Orders {
		ids = append(ids, o.ID)
	}
	return ids
}
