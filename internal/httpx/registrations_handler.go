package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-storefront-checkout/internal/discount"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/ariefcatur/go-storefront-checkout/internal/registration"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Registrations interface {
	Reserve(ctx context.Context, sess *session.Session, req registration.ReserveRequest) (*registration.Registration, error)
	Get(ctx context.Context, sess *session.Session, k registration.Kind, id string) (*registration.Registration, error)
	Confirm(ctx context.Context, sess *session.Session, k registration.Kind, id string, c *payment.Confirmation) (*registration.Registration, error)
	Cancel(ctx context.Context, sess *session.Session, k registration.Kind, id string) (*registration.Registration, error)
}

type Quoter interface {
	Quote(ctx context.Context, code string, subtotal decimal.Decimal) (*discount.Quote, error)
}

type RegistrationsHandler struct {
	Registrations Registrations
	Discounts     Quoter
	Log           *logger.Logger
}

func (h *RegistrationsHandler) RegisterPublic(r chi.Router) {
	r.Post("/discounts/validate", h.validateDiscount)
}

func (h *RegistrationsHandler) Register(r chi.Router) {
	r.Post("/registrations", h.reserve)
	r.Get("/registrations/{kind}/{id}", h.get)
	r.Post("/registrations/{kind}/{id}/confirm", h.confirm)
	r.Post("/registrations/{kind}/{id}/cancel", h.cancel)
}

func (h *RegistrationsHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req registration.ReserveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, errInvalidJSON)
		return
	}
	reg, err := h.Registrations.Reserve(r.Context(), session.FromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (h *RegistrationsHandler) get(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Registrations.Get(r.Context(), session.FromContext(r.Context()), registration.Kind(chi.URLParam(r, "kind")), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (h *RegistrationsHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var c *payment.Confirmation
	if r.ContentLength != 0 {
		c = &payment.Confirmation{}
		if err := decode(r, c); err != nil {
			writeError(w, r, h.Log, errInvalidJSON)
			return
		}
	}
	reg, err := h.Registrations.Confirm(r.Context(), session.FromContext(r.Context()), registration.Kind(chi.URLParam(r, "kind")), chi.URLParam(r, "id"), c)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (h *RegistrationsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Registrations.Cancel(r.Context(), session.FromContext(r.Context()), registration.Kind(chi.URLParam(r, "kind")), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

type validateDiscountReq struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func (h *RegistrationsHandler) validateDiscount(w http.ResponseWriter, r *http.Request) {
	var req validateDiscountReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, errInvalidJSON)
		return
	}
	q, err := h.Discounts.Quote(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
