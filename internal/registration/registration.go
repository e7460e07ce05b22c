package registration

import (
	"errors"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/notify"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindProgram Kind = "program"
	KindEvent   Kind = "event"
	KindClass   Kind = "class"
)

var ErrUnknownKind = errors.New("unknown registration type")

// tables is also the whitelist for table names interpolated into SQL.
var tables = map[Kind]string{
	KindProgram: "program_registrations",
	KindEvent:   "event_registrations",
	KindClass:   "class_registrations",
}

// offerings holds the priced documents each kind books against.
var offerings = map[Kind]string{
	KindProgram: "programs",
	KindEvent:   "events",
	KindClass:   "classes",
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := tables[k]; !ok {
		return "", ErrUnknownKind
	}
	return k, nil
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	// StatusConfirmed is the paid state of class bookings.
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// PaidStatus: class booking jadi "confirmed", sisanya "completed".
func PaidStatus(k Kind) Status {
	if k == KindClass {
		return StatusConfirmed
	}
	return StatusCompleted
}

type Registration struct {
	ID              string          `json:"id"`
	Kind            Kind            `json:"kind"`
	UserID          string          `json:"user_id"`
	TargetID        string          `json:"target_id"`
	Amount          decimal.Decimal `json:"amount"`
	DiscountCode    string          `json:"discount_code,omitempty"`
	Status          Status          `json:"status"`
	PaymentStatus   Status          `json:"payment_status"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	SlotStart       *time.Time      `json:"slot_start,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// owner is how a registration appears in the payment claim ledger.
func (r *Registration) owner() string {
	return string(r.Kind) + ":" + r.ID
}

func (r *Registration) Paid() bool {
	return r.PaymentStatus == StatusCompleted
}

func (r *Registration) Event(to notify.EmailAddress) notify.Event {
	return notify.Event{
		Kind:      notify.KindRegistrationConfirmed,
		Recipient: to,
		Registration: &notify.RegistrationSummary{
			RegistrationID: r.ID,
			Kind:           string(r.Kind),
			TargetID:       r.TargetID,
			Amount:         r.Amount,
			PaymentRef:     r.PaymentIntentID,
			SlotStart:      r.SlotStart,
		},
	}
}
