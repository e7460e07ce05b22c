package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultIntentTimeout = 10 * time.Second

var tracer = otel.Tracer("storefront/payment")

// Adapter fronts the processors: free-path short circuit, bounded intent
// creation, no retries. Callers resubmit on failure.
type Adapter struct {
	gateways map[Provider]Gateway
	currency string
	timeout  time.Duration
	log      *logger.Logger
}

func NewAdapter(gateways map[Provider]Gateway, currency string, timeout time.Duration, log *logger.Logger) *Adapter {
	if timeout <= 0 {
		timeout = DefaultIntentTimeout
	}
	return &Adapter{gateways: gateways, currency: currency, timeout: timeout, log: log.With("component", "payment")}
}

func (a *Adapter) Currency() string { return a.currency }

func (a *Adapter) CreateIntent(ctx context.Context, provider Provider, req IntentRequest) (*Intent, error) {
	if req.Currency == "" {
		req.Currency = a.currency
	}
	if !req.Amount.IsPositive() {
		metrics.RecordPaymentIntent(string(provider), "free")
		return &Intent{Provider: ProviderNone, ID: FreePaymentID, Currency: req.Currency, State: StateConfirmed, Free: true, Notes: req.Notes}, nil
	}
	gw, ok := a.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	ctx, span := tracer.Start(ctx, "payment.create_intent")
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider", string(provider)), attribute.Int64("payment.amount_minor", ToMinor(req.Amount)))

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	intent, err := gw.CreateIntent(ctx, req)
	if err != nil {
		err = a.classify(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordPaymentIntent(string(provider), "failed")
		a.log.Warn("create intent failed", "provider", provider, "registration_id", req.RegistrationID, "receipt", req.Receipt, "error", err)
		return nil, err
	}
	metrics.RecordPaymentIntent(string(provider), "created")
	a.log.Info("intent created", "provider", provider, "intent_id", intent.ID, "amount_minor", intent.AmountMinor)
	return intent, nil
}

func (a *Adapter) Confirm(ctx context.Context, c Confirmation) (*Receipt, error) {
	if c.TransactionID == "" && c.IntentID == "" {
		return nil, fmt.Errorf("%w: missing payment reference", ErrInvalidRequest)
	}
	gw, ok := a.gateways[c.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}

	ctx, span := tracer.Start(ctx, "payment.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider", string(c.Provider)))

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	r, err := gw.Confirm(ctx, c)
	if err != nil {
		err = a.classify(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordPaymentIntent(string(c.Provider), "unconfirmed")
		return nil, err
	}
	metrics.RecordPaymentIntent(string(c.Provider), "confirmed")
	return r, nil
}

// Refund is a compensation: logged loudly on failure so an operator can
// finish it by hand.
func (a *Adapter) Refund(ctx context.Context, provider Provider, transactionID string) error {
	gw, ok := a.gateways[provider]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	ctx, span := tracer.Start(ctx, "payment.refund")
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider", string(provider)), attribute.String("payment.transaction_id", transactionID))

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := gw.Refund(ctx, transactionID); err != nil {
		err = a.classify(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordPaymentIntent(string(provider), "refund_failed")
		a.log.Error("refund failed", "provider", provider, "transaction_id", transactionID, "error", err)
		return err
	}
	metrics.RecordPaymentIntent(string(provider), "refunded")
	a.log.Info("refund issued", "provider", provider, "transaction_id", transactionID)
	return nil
}

func (a *Adapter) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrProvider), errors.Is(err, ErrNotConfirmed):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrProviderTimeout
	default:
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
}
