package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderRazorpay Provider = "razorpay"
	// ProviderNone marks payments that never touched a processor.
	ProviderNone Provider = "none"
)

// FreePaymentID is stored as the payment reference of zero-amount purchases.
const FreePaymentID = "free-payment"

type State string

const (
	StateInitializing  State = "initializing"
	StateIntentCreated State = "intent_created"
	StateConfirmed     State = "confirmed"
	StateFailed        State = "failed"
)

var validNext = map[State]map[State]bool{
	StateInitializing:  {StateIntentCreated: true, StateConfirmed: true, StateFailed: true},
	StateIntentCreated: {StateConfirmed: true, StateFailed: true},
	StateConfirmed:     {},
	StateFailed:        {},
}

func CanTransition(from, to State) bool {
	return validNext[from][to]
}

var (
	ErrUnknownProvider = errors.New("unknown payment provider")
	ErrProvider        = errors.New("payment provider error")
	ErrProviderTimeout = errors.New("payment provider timed out, please try again")
	ErrNotConfirmed    = errors.New("payment not confirmed")
	ErrInvalidRequest  = errors.New("invalid payment request")
	// ErrMismatch: the processor record was opened for another user or purchase.
	ErrMismatch = errors.New("payment belongs to a different purchase")
)

// Metadata keys stamped on every intent and read back from receipts.
const (
	MetaUserID           = "userId"
	MetaRegistrationID   = "registrationId"
	MetaRegistrationType = "registrationType"
)

type ProviderError struct {
	Provider   Provider
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return ErrProvider }

type IntentRequest struct {
	// Amount in major units (rupees, dollars).
	Amount           decimal.Decimal
	Currency         string
	Receipt          string
	Notes            map[string]string
	UserID           string
	RegistrationID   string
	RegistrationType string
}

// Metadata merges the caller's notes with the binding keys; the binding
// keys win.
func (r IntentRequest) Metadata() map[string]string {
	out := make(map[string]string, len(r.Notes)+3)
	for k, v := range r.Notes {
		out[k] = v
	}
	if r.UserID != "" {
		out[MetaUserID] = r.UserID
	}
	if r.RegistrationID != "" {
		out[MetaRegistrationID] = r.RegistrationID
		out[MetaRegistrationType] = r.RegistrationType
	}
	return out
}

type Intent struct {
	Provider     Provider          `json:"provider"`
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret,omitempty"`
	AmountMinor  int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Key          string            `json:"key,omitempty"`
	Notes        map[string]string `json:"notes,omitempty"`
	State        State             `json:"state"`
	Free         bool              `json:"free,omitempty"`
}

// Confirmation is what the client reports back after completing payment.
type Confirmation struct {
	Provider      Provider `json:"provider"`
	IntentID      string   `json:"intent_id"`
	TransactionID string   `json:"transaction_id"`
	Signature     string   `json:"signature,omitempty"`
}

type Receipt struct {
	Provider      Provider          `json:"provider"`
	TransactionID string            `json:"transaction_id"`
	AmountMinor   int64             `json:"amount"`
	Currency      string            `json:"currency,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Covers fails unless the captured amount pays for amount in currency.
// A receipt with no captured amount never covers a positive total.
func (r *Receipt) Covers(amount decimal.Decimal, currency string) error {
	want := ToMinor(amount)
	if r.AmountMinor < want {
		return fmt.Errorf("%w: paid %d, expected %d", ErrNotConfirmed, r.AmountMinor, want)
	}
	if currency != "" && r.Currency != "" && !strings.EqualFold(currency, r.Currency) {
		return fmt.Errorf("%w: paid in %s, expected %s", ErrNotConfirmed, r.Currency, currency)
	}
	return nil
}

// BoundTo fails unless every key in want was stamped on the intent with
// the same value.
func (r *Receipt) BoundTo(want map[string]string) error {
	for k, v := range want {
		if r.Metadata[k] != v {
			return fmt.Errorf("%w: %s", ErrMismatch, k)
		}
	}
	return nil
}

// ClaimRef is the globally unique key of a captured processor transaction.
func (r *Receipt) ClaimRef() string {
	return string(r.Provider) + ":" + r.TransactionID
}

func FreeReceipt() Receipt {
	return Receipt{Provider: ProviderNone, TransactionID: FreePaymentID}
}

type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Confirm(ctx context.Context, c Confirmation) (*Receipt, error)
	// Refund returns the full captured amount of a transaction.
	Refund(ctx context.Context, transactionID string) error
}

// ToMinor converts major units to the smallest currency unit (2 decimals).
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
