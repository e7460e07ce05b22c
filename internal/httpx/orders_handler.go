package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/go-chi/chi/v5"
)

type Orders interface {
	List(ctx context.Context, sess *session.Session) ([]orders.View, error)
	Get(ctx context.Context, sess *session.Session, id string) (*orders.View, error)
	Cancel(ctx context.Context, sess *session.Session, id string) (*orders.Order, error)
	RequestReturn(ctx context.Context, sess *session.Session, id, reason string) (*orders.Order, error)
	CancelReturn(ctx context.Context, sess *session.Session, id string) (*orders.Order, error)
	MarkDelivered(ctx context.Context, sess *session.Session, id string) (*orders.Order, error)
	Refund(ctx context.Context, sess *session.Session, id string) (*orders.Order, error)
}

type OrdersHandler struct {
	Orders Orders
	Log    *logger.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Post("/orders/{id}/cancel", h.transition(h.Orders.Cancel))
	r.Post("/orders/{id}/return", h.requestReturn)
	r.Post("/orders/{id}/return/cancel", h.transition(h.Orders.CancelReturn))
	// operator only; the service checks the role
	r.Post("/orders/{id}/deliver", h.transition(h.Orders.MarkDelivered))
	r.Post("/orders/{id}/refund", h.transition(h.Orders.Refund))
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.List(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if list == nil {
		list = []orders.View{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	v, err := h.Orders.Get(r.Context(), session.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type returnReq struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) requestReturn(w http.ResponseWriter, r *http.Request) {
	var req returnReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, h.Log, errInvalidJSON)
			return
		}
	}
	o, err := h.Orders.RequestReturn(r.Context(), session.FromContext(r.Context()), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type transitionFunc func(ctx context.Context, sess *session.Session, id string) (*orders.Order, error)

func (h *OrdersHandler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := fn(r.Context(), session.FromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}
