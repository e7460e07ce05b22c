package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/discount"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/notify"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("registration not found")
	ErrAlreadyPaid     = errors.New("registration already paid with a different payment")
	ErrCancelled       = errors.New("registration is cancelled")
	ErrNotPending      = errors.New("registration is no longer pending")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("registration belongs to another user")
	ErrInvalidInput    = errors.New("invalid registration request")
	ErrTargetNotFound  = errors.New("program, event or class not found")
	ErrSlotTaken       = errors.New("slot already booked")
)

type Store interface {
	// Create fails with ErrSlotTaken when a live booking holds the same slot.
	Create(ctx context.Context, r *Registration) error
	Get(ctx context.Context, k Kind, id string) (*Registration, error)
	// MarkPaid claims the processor transaction (claim, empty for free) in
	// the same write that flips the registration to paid.
	MarkPaid(ctx context.Context, k Kind, id, ref, claim string, at time.Time) (*Registration, bool, error)
	Cancel(ctx context.Context, k Kind, id string, at time.Time) (*Registration, error)
}

// Offerings prices the program, event or class a registration books.
type Offerings interface {
	Price(ctx context.Context, k Kind, targetID string) (decimal.Decimal, error)
}

type Discounts interface {
	Quote(ctx context.Context, code string, subtotal decimal.Decimal) (*discount.Quote, error)
}

type Payments interface {
	Confirm(ctx context.Context, c payment.Confirmation) (*payment.Receipt, error)
}

type Service struct {
	Store     Store
	Offerings Offerings
	Discounts Discounts
	Payments  Payments
	Notifier  notify.Dispatcher
	Log       *logger.Logger
	// Currency receipts must be paid in; empty skips the check.
	Currency string
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type ReserveRequest struct {
	Kind         Kind       `json:"registration_type"`
	TargetID     string     `json:"target_id"`
	DiscountCode string     `json:"discount_code,omitempty"`
	SlotStart    *time.Time `json:"slot_start,omitempty"`
}

// Reserve holds a slot by writing a pending registration priced from the
// booked offering. The stored amount is what Confirm later expects paid.
func (s *Service) Reserve(ctx context.Context, sess *session.Session, req ReserveRequest) (*Registration, error) {
	if sess == nil || sess.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := ParseKind(string(req.Kind)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.TargetID) == "" {
		return nil, fmt.Errorf("%w: target_id required", ErrInvalidInput)
	}
	if req.Kind == KindClass && req.SlotStart == nil {
		return nil, fmt.Errorf("%w: slot_start required for class bookings", ErrInvalidInput)
	}

	price, err := s.Offerings.Price(ctx, req.Kind, req.TargetID)
	if err != nil {
		return nil, err
	}
	amount := price.Round(2)
	code := strings.TrimSpace(req.DiscountCode)
	if code != "" {
		q, err := s.Discounts.Quote(ctx, code, amount)
		if err != nil {
			return nil, err
		}
		amount = q.Total
		code = q.Rule.Code
	}

	now := s.now()
	r := &Registration{
		ID:            uuid.NewString(),
		Kind:          req.Kind,
		UserID:        sess.UserID,
		TargetID:      req.TargetID,
		Amount:        amount,
		DiscountCode:  code,
		Status:        StatusPending,
		PaymentStatus: StatusPending,
		SlotStart:     req.SlotStart,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Create(ctx, r); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.Log.Info("slot already held", "kind", r.Kind, "target_id", r.TargetID, "slot_start", r.SlotStart)
		}
		return nil, err
	}
	s.Log.Info("registration reserved", "registration_id", r.ID, "kind", r.Kind, "target_id", r.TargetID, "amount", r.Amount.StringFixed(2))
	return r, nil
}

// MarkPaid records the receipt as the payment of a registration, at most
// once. The same transaction again is a no-op; a different one is
// ErrAlreadyPaid; a transaction already spent elsewhere is
// payment.ErrAlreadyClaimed.
func (s *Service) MarkPaid(ctx context.Context, k Kind, id string, rc payment.Receipt) (*Registration, bool, error) {
	if _, err := ParseKind(string(k)); err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(rc.TransactionID) == "" {
		return nil, false, fmt.Errorf("%w: payment reference required", ErrInvalidInput)
	}
	claim := ""
	if rc.Provider != "" && rc.Provider != payment.ProviderNone {
		claim = rc.ClaimRef()
	}
	r, changed, err := s.Store.MarkPaid(ctx, k, id, rc.TransactionID, claim, s.now())
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.Log.Info("registration paid", "registration_id", id, "kind", k, "payment_ref", rc.TransactionID)
	}
	return r, changed, nil
}

// Confirm verifies the payment for a reserved registration and marks it
// paid. Zero-amount registrations take the free path with no processor call.
// A processor receipt must have been opened for this registration and cover
// its amount.
func (s *Service) Confirm(ctx context.Context, sess *session.Session, k Kind, id string, c *payment.Confirmation) (*Registration, error) {
	r, err := s.owned(ctx, sess, k, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusCancelled {
		return nil, ErrCancelled
	}

	receipt := payment.FreeReceipt()
	if r.Amount.IsPositive() {
		if c == nil || (c.IntentID == "" && c.TransactionID == "") {
			return nil, fmt.Errorf("%w: payment confirmation required", ErrInvalidInput)
		}
		if r.Paid() && (r.PaymentIntentID == c.TransactionID || r.PaymentIntentID == c.IntentID) {
			return r, nil
		}
		rc, err := s.Payments.Confirm(ctx, *c)
		if err != nil {
			return nil, err
		}
		if err := rc.BoundTo(map[string]string{
			payment.MetaUserID:           r.UserID,
			payment.MetaRegistrationID:   r.ID,
			payment.MetaRegistrationType: string(k),
		}); err != nil {
			return nil, err
		}
		if err := rc.Covers(r.Amount, s.Currency); err != nil {
			return nil, err
		}
		receipt = *rc
	}

	r, changed, err := s.MarkPaid(ctx, k, id, receipt)
	if err != nil {
		return nil, err
	}
	if changed {
		s.Notifier.Dispatch(ctx, r.Event(notify.EmailAddress{Email: sess.Email, Name: sess.Name}))
	}
	return r, nil
}

func (s *Service) Cancel(ctx context.Context, sess *session.Session, k Kind, id string) (*Registration, error) {
	if _, err := s.owned(ctx, sess, k, id); err != nil {
		return nil, err
	}
	r, err := s.Store.Cancel(ctx, k, id, s.now())
	if err != nil {
		return nil, err
	}
	s.Log.Info("registration cancelled", "registration_id", id, "kind", k)
	return r, nil
}

func (s *Service) Get(ctx context.Context, sess *session.Session, k Kind, id string) (*Registration, error) {
	return s.owned(ctx, sess, k, id)
}

func (s *Service) owned(ctx context.Context, sess *session.Session, k Kind, id string) (*Registration, error) {
	if sess == nil || sess.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := ParseKind(string(k)); err != nil {
		return nil, err
	}
	r, err := s.Store.Get(ctx, k, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != sess.UserID && !sess.IsOperator() {
		return nil, ErrForbidden
	}
	return r, nil
}
