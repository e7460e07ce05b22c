package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-storefront-checkout/internal/cart"
	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/ariefcatur/go-storefront-checkout/internal/registration"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Intents interface {
	CreateIntent(ctx context.Context, provider payment.Provider, req payment.IntentRequest) (*payment.Intent, error)
	Currency() string
}

type RegistrationLookup interface {
	Get(ctx context.Context, sess *session.Session, k registration.Kind, id string) (*registration.Registration, error)
}

type CartTotals interface {
	View(ctx context.Context, sess *session.Session) (cart.View, error)
}

// PaymentsHandler opens processor intents. The charged amount always comes
// from the stored registration or the caller's cart, never the request.
type PaymentsHandler struct {
	Intents       Intents
	Registrations RegistrationLookup
	Carts         CartTotals
	Log           *logger.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments/intent", h.createIntent)
	r.Post("/payments/orders", h.createLegacyOrder)
}

type intentReq struct {
	RegistrationID   string           `json:"registrationId"`
	RegistrationType string           `json:"registrationType"`
	Provider         payment.Provider `json:"provider,omitempty"`
}

type intentResp struct {
	ClientSecret string          `json:"clientSecret,omitempty"`
	IntentID     string          `json:"intentId"`
	Amount       decimal.Decimal `json:"amount"`
	Free         bool            `json:"free,omitempty"`
}

// price resolves what the caller owes: the registration when one is named,
// otherwise the current cart subtotal.
func (h *PaymentsHandler) price(ctx context.Context, sess *session.Session, regID, regType string) (payment.IntentRequest, error) {
	if sess == nil {
		return payment.IntentRequest{}, checkout.ErrUnauthenticated
	}
	req := payment.IntentRequest{UserID: sess.UserID, Currency: h.Intents.Currency()}

	if regID != "" || regType != "" {
		k, err := registration.ParseKind(regType)
		if err != nil {
			return req, err
		}
		reg, err := h.Registrations.Get(ctx, sess, k, regID)
		if err != nil {
			return req, err
		}
		switch {
		case reg.Status == registration.StatusCancelled:
			return req, registration.ErrCancelled
		case reg.Paid():
			return req, registration.ErrAlreadyPaid
		}
		req.Amount = reg.Amount
		req.RegistrationID = reg.ID
		req.RegistrationType = string(k)
		return req, nil
	}

	view, err := h.Carts.View(ctx, sess)
	if err != nil {
		return req, err
	}
	if len(view.Lines) == 0 {
		return req, checkout.ErrEmptyCart
	}
	req.Amount = view.Subtotal
	return req, nil
}

func (h *PaymentsHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	var body intentReq
	if err := decode(r, &body); err != nil {
		writeError(w, r, h.Log, errInvalidJSON)
		return
	}
	if body.Provider == "" {
		body.Provider = payment.ProviderStripe
	}
	req, err := h.price(r.Context(), session.FromContext(r.Context()), body.RegistrationID, body.RegistrationType)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	in, err := h.Intents.CreateIntent(r.Context(), body.Provider, req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, intentResp{ClientSecret: in.ClientSecret, IntentID: in.ID, Amount: req.Amount, Free: in.Free})
}

// Legacy clients still send amount and currency; both are ignored. The
// registration, if any, is named in notes.
type legacyOrderReq struct {
	Receipt string            `json:"receipt"`
	Notes   map[string]string `json:"notes"`
}

type legacyOrderResp struct {
	OrderID  string            `json:"orderId"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Key      string            `json:"key,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
	Free     bool              `json:"free,omitempty"`
}

func (h *PaymentsHandler) createLegacyOrder(w http.ResponseWriter, r *http.Request) {
	var body legacyOrderReq
	if err := decode(r, &body); err != nil {
		writeError(w, r, h.Log, errInvalidJSON)
		return
	}
	req, err := h.price(r.Context(), session.FromContext(r.Context()),
		body.Notes[payment.MetaRegistrationID], body.Notes[payment.MetaRegistrationType])
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	req.Receipt = body.Receipt
	req.Notes = body.Notes

	in, err := h.Intents.CreateIntent(r.Context(), payment.ProviderRazorpay, req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, legacyOrderResp{
		OrderID:  in.ID,
		Amount:   in.AmountMinor,
		Currency: in.Currency,
		Key:      in.Key,
		Notes:    in.Notes,
		Free:     in.Free,
	})
}
