package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/orders/{id}", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/abc", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/orders/{id}", "418"))
	assert.Equal(t, before+1, after)
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(checkoutsTotal.WithLabelValues("completed"))
	sentBefore := testutil.ToFloat64(notificationsTotal.WithLabelValues("order_confirmation", "sent"))

	RecordCheckout("completed")
	RecordCheckoutItems(3)
	RecordPaymentIntent("stripe", "created")
	RecordNotification("order_confirmation", "sent")

	assert.Equal(t, before+1, testutil.ToFloat64(checkoutsTotal.WithLabelValues("completed")))
	assert.Equal(t, sentBefore+1, testutil.ToFloat64(notificationsTotal.WithLabelValues("order_confirmation", "sent")))
}
