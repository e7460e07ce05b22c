package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(log *logger.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog(log), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(metrics.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

func accessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Authenticate resolves the bearer token into a session. Requests without a
// valid token are rejected with 401.
func Authenticate(v *session.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := v.Verify(r.Header.Get("Authorization"))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error(), Code: "unauthenticated"})
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

type API struct {
	Verifier      *session.Verifier
	Shop          *ShopHandler
	Checkout      *CheckoutHandler
	Payments      *PaymentsHandler
	Registrations *RegistrationsHandler
	Orders        *OrdersHandler
}

// Mount wires every route; everything except the catalog and discount
// validation needs a session.
func (a *API) Mount(r chi.Router) {
	a.Shop.RegisterPublic(r)
	a.Registrations.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(a.Verifier))
		a.Shop.Register(r)
		a.Checkout.Register(r)
		a.Payments.Register(r)
		a.Registrations.Register(r)
		a.Orders.Register(r)
	})
}
