package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-storefront-checkout/internal/account"
	"github.com/ariefcatur/go-storefront-checkout/internal/apierr"
	"github.com/ariefcatur/go-storefront-checkout/internal/cart"
	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/discount"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/ariefcatur/go-storefront-checkout/internal/registration"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/go-chi/chi/v5/middleware"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errInvalidJSON = apierr.New(http.StatusBadRequest, "invalid_json", errors.New("invalid json"))

type mapping struct {
	target error
	status int
	code   string
}

// first match wins; more specific errors go first
var mappings = []mapping{
	{session.ErrInvalidToken, http.StatusUnauthorized, "unauthenticated"},
	{checkout.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{cart.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{account.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{orders.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{registration.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},

	{orders.ErrForbidden, http.StatusForbidden, "forbidden"},
	{registration.ErrForbidden, http.StatusForbidden, "forbidden"},

	{catalog.ErrNotFound, http.StatusNotFound, "product_not_found"},
	{orders.ErrNotFound, http.StatusNotFound, "order_not_found"},
	{registration.ErrNotFound, http.StatusNotFound, "registration_not_found"},
	{registration.ErrTargetNotFound, http.StatusNotFound, "target_not_found"},
	{discount.ErrNotFound, http.StatusNotFound, "discount_not_found"},
	{account.ErrAddressNotFound, http.StatusNotFound, "address_not_found"},
	{cart.ErrNotInCart, http.StatusNotFound, "not_in_cart"},

	{checkout.ErrInvalidInput, http.StatusBadRequest, "invalid_request"},
	{checkout.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{cart.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{account.ErrInvalidAddress, http.StatusBadRequest, "invalid_address"},
	{registration.ErrInvalidInput, http.StatusBadRequest, "invalid_request"},
	{registration.ErrUnknownKind, http.StatusBadRequest, "unknown_registration_type"},
	{payment.ErrInvalidRequest, http.StatusBadRequest, "invalid_payment_request"},
	{payment.ErrUnknownProvider, http.StatusBadRequest, "unknown_provider"},
	{discount.ErrEmptyCode, http.StatusBadRequest, "empty_code"},

	{checkout.ErrCheckoutInProgress, http.StatusConflict, "checkout_in_progress"},
	{checkout.ErrCheckoutFailed, http.StatusConflict, "checkout_failed"},
	{catalog.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
	{orders.ErrReturnWindowClosed, http.StatusConflict, "return_window_closed"},
	{orders.ErrTransitionNotAllowed, http.StatusConflict, "transition_not_allowed"},
	{registration.ErrAlreadyPaid, http.StatusConflict, "already_paid"},
	{registration.ErrCancelled, http.StatusConflict, "registration_cancelled"},
	{registration.ErrNotPending, http.StatusConflict, "not_pending"},
	{registration.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	{payment.ErrAlreadyClaimed, http.StatusConflict, "payment_already_used"},

	{discount.ErrNotActive, http.StatusUnprocessableEntity, "discount_not_active"},
	{payment.ErrMismatch, http.StatusUnprocessableEntity, "payment_mismatch"},
	{payment.ErrNotConfirmed, http.StatusPaymentRequired, "payment_not_confirmed"},
	{payment.ErrProviderTimeout, http.StatusGatewayTimeout, "provider_timeout"},
	{payment.ErrProvider, http.StatusBadGateway, "provider_error"},
}

func toAPIError(err error) *apierr.Error {
	if e, ok := apierr.As(err); ok {
		return e
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return apierr.New(m.status, m.code, err)
		}
	}
	return apierr.New(http.StatusInternalServerError, "internal", err)
}

func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	e := toAPIError(err)
	msg := e.Error()
	if e.Status >= http.StatusInternalServerError && e.Status != http.StatusBadGateway && e.Status != http.StatusGatewayTimeout {
		log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		msg = "internal error"
	}
	writeJSON(w, e.Status, errorBody{Error: msg, Code: e.Code})
}
