package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/account"
	"github.com/ariefcatur/go-storefront-checkout/internal/cart"
	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/notify"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidInput       = errors.New("invalid checkout request")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCheckoutInProgress = errors.New("another checkout is in progress for this user")
	// ErrCheckoutPending: intent tersimpan tapi belum ter-apply; sweeper akan melanjutkan.
	ErrCheckoutPending = errors.New("checkout accepted but not yet completed")
	ErrCheckoutFailed  = errors.New("checkout failed")
	errIntentClosed    = errors.New("checkout intent already failed")
)

var tracer = otel.Tracer("storefront/checkout")

type Request struct {
	PaymentMethod PaymentMethod         `json:"payment_method"`
	Payment       *payment.Confirmation `json:"payment,omitempty"`
	// IdempotencyKey is required for cash on delivery and free checkouts,
	// which have no processor transaction id to key on.
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	ShippingInfo   *account.Address `json:"shipping_info,omitempty"`
	AddressID      string           `json:"address_id,omitempty"`
}

type Tx interface {
	LockIntent(ctx context.Context, id string) (IntentStatus, error)
	ReserveStock(ctx context.Context, productID string, qty int) error
	InsertOrder(ctx context.Context, o *orders.Order) (bool, error)
	InsertPayment(ctx context.Context, p *orders.Payment) error
	AttachOrders(ctx context.Context, userID string, orderIDs []string, shipping account.Address) error
	// ClearCart takes qty off each cart line and drops lines that reach zero.
	ClearCart(ctx context.Context, userID string, qty map[string]int) error
	CompleteIntent(ctx context.Context, id string, at time.Time) error
	OrdersForIntent(ctx context.Context, id string) ([]orders.Order, error)
}

type Store interface {
	FindIntent(ctx context.Context, userID, paymentRef string) (*Intent, error)
	// CreateIntent inserts in, or returns the stored intent with created=false.
	// A new intent claims its processor transaction in the same write and
	// fails with payment.ErrAlreadyClaimed when another purchase holds it.
	CreateIntent(ctx context.Context, in *Intent) (stored *Intent, created bool, err error)
	MarkFailed(ctx context.Context, id, reason string) error
	MarkRefundPending(ctx context.Context, id, reason string) error
	MarkRefunded(ctx context.Context, id string) error
	RefundsDue(ctx context.Context, olderThan time.Time, limit int) ([]Intent, error)
	RecordAttempt(ctx context.Context, id string) error
	PendingIntents(ctx context.Context, olderThan time.Time, limit int) ([]Intent, error)
	OrdersForIntent(ctx context.Context, id string) ([]orders.Order, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}

type Carts interface {
	Items(ctx context.Context, userID string) ([]cart.Item, error)
}

type Products interface {
	ByIDs(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

type Addresses interface {
	Resolve(ctx context.Context, sess *session.Session, id string) (account.Address, error)
}

type Payments interface {
	Confirm(ctx context.Context, c payment.Confirmation) (*payment.Receipt, error)
	Refund(ctx context.Context, provider payment.Provider, transactionID string) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// IsTransient decides whether a failed apply is worth another attempt.
type IsTransient func(error) bool

type Service struct {
	Store     Store
	Carts     Carts
	Products  Products
	Addresses Addresses
	Payments  Payments
	Locker    Locker
	Notifier  notify.Dispatcher
	Log       *logger.Logger
	// Currency receipts must be paid in; empty skips the check.
	Currency string

	Transient    IsTransient
	LockTTL      time.Duration
	MaxAttempts  int
	RetryInitial time.Duration
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Checkout turns the caller's cart into one order and one payment per line
// item. Payment is confirmed first; the fan-out runs in a single transaction.
// Notifications go out after the user's lock is released.
func (s *Service) Checkout(ctx context.Context, sess *session.Session, req Request) (*Result, error) {
	if sess == nil || sess.UserID == "" {
		return nil, ErrUnauthenticated
	}
	shipping, err := s.validate(ctx, sess, &req)
	if err != nil {
		return nil, err
	}

	release, err := s.Locker.Acquire(ctx, fmt.Sprintf(redisx.KeyCheckoutLock, sess.UserID), s.lockTTL())
	if errors.Is(err, redisx.ErrLocked) {
		metrics.RecordCheckout("conflict")
		return nil, ErrCheckoutInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("acquire checkout lock: %w", err)
	}
	res, events, err := s.checkout(ctx, sess, req, shipping)
	release()
	s.announce(ctx, events)
	return res, err
}

func (s *Service) checkout(ctx context.Context, sess *session.Session, req Request, shipping account.Address) (*Result, []notify.Event, error) {
	log := s.Log.With("user_id", sess.UserID, "payment_method", req.PaymentMethod)

	// replay of a confirmation we already turned into orders
	ref := paymentRef(req)
	if existing, err := s.Store.FindIntent(ctx, sess.UserID, ref); err != nil {
		return nil, nil, err
	} else if existing != nil {
		log.Info("checkout replayed", "checkout_id", existing.ID, "status", existing.Status)
		return s.resume(ctx, existing, nil)
	}

	items, err := s.Carts.Items(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	products, err := s.Products.ByIDs(ctx, cart.ProductIDs(items))
	if err != nil {
		return nil, nil, err
	}
	view := cart.Resolve(items, products)
	for _, pid := range view.Missing {
		log.Warn("cart item skipped, product missing", "product_id", pid)
	}
	if len(view.Lines) == 0 {
		return nil, nil, ErrEmptyCart
	}

	receipt, err := s.confirmPayment(ctx, sess, req, view)
	if err != nil {
		metrics.RecordCheckout("payment_failed")
		return nil, nil, err
	}

	now := s.now()
	in := &Intent{
		ID:            uuid.NewString(),
		UserID:        sess.UserID,
		UserEmail:     sess.Email,
		PaymentMethod: req.PaymentMethod,
		PaymentRef:    ref,
		PaymentID:     ref,
		Amount:        view.Subtotal,
		Status:        IntentPending,
		ShippingInfo:  shipping,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if receipt != nil {
		in.Provider = receipt.Provider
		in.PaymentID = receipt.TransactionID
	}
	for _, l := range view.Lines {
		in.Items = append(in.Items, Line{
			ProductID:   l.ProductID,
			ProductName: l.Product.Name,
			VendorID:    l.Product.VendorID,
			Quantity:    l.Quantity,
			Price:       l.Product.Price,
		})
	}

	stored, created, err := s.Store.CreateIntent(ctx, in)
	if errors.Is(err, payment.ErrAlreadyClaimed) {
		metrics.RecordCheckout("payment_reused")
		log.Warn("payment already consumed", "payment_id", in.PaymentID, "provider", in.Provider)
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, fmt.Errorf("write checkout intent: %w", err)
	}
	if !created {
		return s.resume(ctx, stored, view.Missing)
	}
	log.Info("checkout intent written", "checkout_id", in.ID, "items", len(in.Items))
	return s.run(ctx, stored, view.Missing)
}

func (s *Service) validate(ctx context.Context, sess *session.Session, req *Request) (account.Address, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	switch req.PaymentMethod {
	case PaymentMethodCOD:
		if req.IdempotencyKey == "" {
			return account.Address{}, fmt.Errorf("%w: idempotency_key required for cash on delivery", ErrInvalidInput)
		}
	case PaymentMethodOnline:
		if req.Payment == nil || (req.Payment.IntentID == "" && req.Payment.TransactionID == "") {
			if req.IdempotencyKey == "" {
				return account.Address{}, fmt.Errorf("%w: payment confirmation required", ErrInvalidInput)
			}
		}
	default:
		return account.Address{}, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, req.PaymentMethod)
	}

	var shipping account.Address
	switch {
	case req.ShippingInfo != nil:
		shipping = *req.ShippingInfo
	case req.AddressID != "":
		a, err := s.Addresses.Resolve(ctx, sess, req.AddressID)
		if errors.Is(err, account.ErrAddressNotFound) {
			return account.Address{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if err != nil {
			return account.Address{}, err
		}
		shipping = a
	default:
		return account.Address{}, fmt.Errorf("%w: shipping info required", ErrInvalidInput)
	}
	if err := shipping.Validate(); err != nil {
		return account.Address{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return shipping, nil
}

// paymentRef is the idempotency key of a checkout within one user.
func paymentRef(req Request) string {
	switch {
	case req.PaymentMethod == PaymentMethodCOD:
		return "cod:" + req.IdempotencyKey
	case req.Payment != nil && req.Payment.TransactionID != "":
		return string(req.Payment.Provider) + ":" + req.Payment.TransactionID
	case req.Payment != nil && req.Payment.IntentID != "":
		return string(req.Payment.Provider) + ":" + req.Payment.IntentID
	default:
		return "free:" + req.IdempotencyKey
	}
}

// confirmPayment returns nil for cash on delivery. A processor receipt must
// be bound to the caller, not to a registration, and cover the cart total.
func (s *Service) confirmPayment(ctx context.Context, sess *session.Session, req Request, view cart.View) (*payment.Receipt, error) {
	if req.PaymentMethod == PaymentMethodCOD {
		return nil, nil
	}
	if !view.Subtotal.IsPositive() {
		r := payment.FreeReceipt()
		return &r, nil
	}
	if req.Payment == nil || (req.Payment.IntentID == "" && req.Payment.TransactionID == "") {
		return nil, fmt.Errorf("%w: payment confirmation required", ErrInvalidInput)
	}
	r, err := s.Payments.Confirm(ctx, *req.Payment)
	if err != nil {
		return nil, err
	}
	if err := r.BoundTo(map[string]string{payment.MetaUserID: sess.UserID}); err != nil {
		return nil, err
	}
	if r.Metadata[payment.MetaRegistrationID] != "" {
		return nil, fmt.Errorf("%w: payment was opened for a registration", payment.ErrMismatch)
	}
	if err := r.Covers(view.Subtotal, s.Currency); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) resume(ctx context.Context, in *Intent, skipped []string) (*Result, []notify.Event, error) {
	switch in.Status {
	case IntentCompleted:
		list, err := s.Store.OrdersForIntent(ctx, in.ID)
		if err != nil {
			return nil, nil, err
		}
		return &Result{CheckoutID: in.ID, Status: IntentCompleted, Orders: list, Replayed: true}, nil, nil
	case IntentFailed, IntentRefundPending, IntentRefunded:
		return nil, nil, fmt.Errorf("%w: %s", ErrCheckoutFailed, in.FailureReason)
	default:
		return s.run(ctx, in, skipped)
	}
}

// run applies the intent with retries. The returned events are for the
// caller to dispatch once it holds no lock.
func (s *Service) run(ctx context.Context, in *Intent, skipped []string) (*Result, []notify.Event, error) {
	list, err := s.applyWithRetry(ctx, in)
	if err != nil {
		var oos *catalog.OutOfStockError
		switch {
		case errors.As(err, &oos):
			metrics.RecordCheckout("out_of_stock")
			s.Log.Warn("checkout rejected", "checkout_id", in.ID, "product_id", oos.ProductID, "requested", oos.Requested, "available", oos.Available)
			if in.Captured() {
				return nil, s.compensate(ctx, in, oos.Error()), err
			}
			if mErr := s.Store.MarkFailed(ctx, in.ID, oos.Error()); mErr != nil {
				s.Log.Error("mark checkout failed", "checkout_id", in.ID, "error", mErr)
			}
			return nil, nil, err
		case errors.Is(err, errIntentClosed):
			return nil, nil, ErrCheckoutFailed
		case s.transient(err):
			metrics.RecordCheckout("pending")
			s.Log.Error("checkout left pending", "checkout_id", in.ID, "error", err)
			return nil, nil, ErrCheckoutPending
		}
		metrics.RecordCheckout("error")
		return nil, nil, err
	}

	metrics.RecordCheckout("completed")
	metrics.RecordCheckoutItems(len(list))
	events := make([]notify.Event, 0, len(list))
	for i := range list {
		events = append(events, list[i].Event(notify.KindOrderConfirmation))
	}
	s.Log.Info("checkout completed", "checkout_id", in.ID, "orders", len(list))
	return &Result{CheckoutID: in.ID, Status: IntentCompleted, Orders: list, Skipped: skipped}, events, nil
}

// compensate hands a captured payment back when its checkout cannot be
// fulfilled. A refund that fails stays refund_pending for the sweeper.
func (s *Service) compensate(ctx context.Context, in *Intent, reason string) []notify.Event {
	if err := s.Store.MarkRefundPending(ctx, in.ID, reason); err != nil {
		s.Log.Error("mark checkout refund pending", "checkout_id", in.ID, "error", err)
	}
	in.Status = IntentRefundPending
	in.FailureReason = reason
	return []notify.Event{in.RefundEvent(s.refund(ctx, in))}
}

func (s *Service) refund(ctx context.Context, in *Intent) bool {
	if err := s.Payments.Refund(ctx, in.Provider, in.PaymentID); err != nil {
		metrics.RecordCheckout("refund_failed")
		s.Log.Error("refund left pending", "checkout_id", in.ID, "payment_id", in.PaymentID, "error", err)
		return false
	}
	if err := s.Store.MarkRefunded(ctx, in.ID); err != nil {
		s.Log.Error("mark checkout refunded", "checkout_id", in.ID, "error", err)
	}
	in.Status = IntentRefunded
	metrics.RecordCheckout("refunded")
	s.Log.Info("checkout payment refunded", "checkout_id", in.ID, "payment_id", in.PaymentID, "amount", in.Amount.StringFixed(2))
	return true
}

func (s *Service) announce(ctx context.Context, events []notify.Event) {
	for _, e := range events {
		s.Notifier.Dispatch(ctx, e)
	}
}

func (s *Service) transient(err error) bool {
	return s.Transient != nil && s.Transient(err)
}

func (s *Service) applyWithRetry(ctx context.Context, in *Intent) ([]orders.Order, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.RetryInitial
	if b.InitialInterval <= 0 {
		b.InitialInterval = 100 * time.Millisecond
	}
	b.MaxInterval = 2 * time.Second
	tries := s.MaxAttempts
	if tries <= 0 {
		tries = 4
	}

	return backoff.Retry(ctx, func() ([]orders.Order, error) {
		if err := s.Store.RecordAttempt(ctx, in.ID); err != nil && !s.transient(err) {
			return nil, backoff.Permanent(err)
		}
		list, err := s.apply(ctx, in)
		if err != nil && !s.transient(err) {
			return nil, backoff.Permanent(err)
		}
		return list, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(tries)))
}

// apply is idempotent: a completed intent returns its orders untouched.
func (s *Service) apply(ctx context.Context, in *Intent) ([]orders.Order, error) {
	ctx, span := tracer.Start(ctx, "checkout.apply")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.id", in.ID), attribute.Int("checkout.items", len(in.Items)))

	var out []orders.Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		status, err := tx.LockIntent(ctx, in.ID)
		if err != nil {
			return err
		}
		switch status {
		case IntentCompleted:
			out, err = tx.OrdersForIntent(ctx, in.ID)
			return err
		case IntentFailed, IntentRefundPending, IntentRefunded:
			return errIntentClosed
		}

		now := s.now()
		orderIDs := make([]string, 0, len(in.Items))
		// item diproses berurutan, satu order + satu payment per item
		for _, l := range in.Items {
			if err := tx.ReserveStock(ctx, l.ProductID, l.Quantity); err != nil {
				if errors.Is(err, catalog.ErrProductGone) {
					s.Log.Warn("product removed before apply, skipped", "checkout_id", in.ID, "product_id", l.ProductID)
					continue
				}
				return err
			}
			o := &orders.Order{
				ID:             uuid.NewString(),
				CheckoutID:     in.ID,
				UserID:         in.UserID,
				ProductID:      l.ProductID,
				ProductName:    l.ProductName,
				VendorID:       l.VendorID,
				Quantity:       l.Quantity,
				Price:          l.Price,
				Total:          l.Total(),
				Status:         in.OrderStatus(),
				PaymentMethod:  string(in.PaymentMethod),
				PaymentID:      in.PaymentID,
				DeliveryStatus: orders.DeliveryPlaced,
				ShippingInfo:   in.ShippingInfo,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, err := tx.InsertOrder(ctx, o); err != nil {
				return fmt.Errorf("insert order for %s: %w", l.ProductID, err)
			}
			p := &orders.Payment{
				ID:            uuid.NewString(),
				OrderID:       o.ID,
				UserID:        in.UserID,
				VendorID:      l.VendorID,
				Amount:        o.Total,
				PaymentMethod: o.PaymentMethod,
				PaymentID:     in.PaymentID,
				Status:        o.Status,
				CreatedAt:     now,
			}
			if err := tx.InsertPayment(ctx, p); err != nil {
				return fmt.Errorf("insert payment for %s: %w", o.ID, err)
			}
			orderIDs = append(orderIDs, o.ID)
		}

		if err := tx.AttachOrders(ctx, in.UserID, orderIDs, in.ShippingInfo); err != nil {
			return err
		}
		// cart dikosongkan paling akhir, setelah semua order tercatat
		if err := tx.ClearCart(ctx, in.UserID, in.Quantities()); err != nil {
			return err
		}
		if err := tx.CompleteIntent(ctx, in.ID, now); err != nil {
			return err
		}
		out, err = tx.OrdersForIntent(ctx, in.ID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return redisx.TTLCheckoutLock
}

// ResumePending re-applies intents stuck in pending for longer than grace.
func (s *Service) ResumePending(ctx context.Context, grace time.Duration, limit int) (int, error) {
	pending, err := s.Store.PendingIntents(ctx, s.now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for i := range pending {
		in := &pending[i]
		release, err := s.Locker.Acquire(ctx, fmt.Sprintf(redisx.KeyCheckoutLock, in.UserID), s.lockTTL())
		if err != nil {
			// user sedang checkout; coba lagi di putaran berikutnya
			continue
		}
		_, events, err := s.run(ctx, in, nil)
		release()
		s.announce(ctx, events)
		if err != nil {
			s.Log.Warn("resume checkout", "checkout_id", in.ID, "error", err)
			continue
		}
		done++
	}
	return done, nil
}

// RetryRefunds retries compensations whose refund call failed earlier.
func (s *Service) RetryRefunds(ctx context.Context, grace time.Duration, limit int) (int, error) {
	due, err := s.Store.RefundsDue(ctx, s.now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for i := range due {
		in := &due[i]
		if !s.refund(ctx, in) {
			continue
		}
		s.announce(ctx, []notify.Event{in.RefundEvent(true)})
		done++
	}
	return done, nil
}
