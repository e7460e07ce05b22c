package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/go-chi/chi/v5"
)

type Checkouts interface {
	Checkout(ctx context.Context, sess *session.Session, req checkout.Request) (*checkout.Result, error)
}

type CheckoutHandler struct {
	Checkouts Checkouts
	Log       *logger.Logger
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, errInvalidJSON)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	res, err := h.Checkouts.Checkout(r.Context(), session.FromContext(r.Context()), req)
	if errors.Is(err, checkout.ErrCheckoutPending) {
		// pembayaran sudah masuk; order akan dibuat oleh sweeper
		writeJSON(w, http.StatusAccepted, map[string]string{"status": string(checkout.IntentPending), "message": err.Error()})
		return
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}
