package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkouts by outcome",
		},
		[]string{"outcome"},
	)

	checkoutItemsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_items_applied_total",
			Help: "Line items turned into orders",
		},
	)

	paymentIntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_total",
			Help: "Payment intents by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(checkoutsTotal)
	prometheus.MustRegister(checkoutItemsTotal)
	prometheus.MustRegister(paymentIntentsTotal)
	prometheus.MustRegister(notificationsTotal)
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler { return promhttp.Handler() }

func RecordCheckout(outcome string) { checkoutsTotal.WithLabelValues(outcome).Inc() }

func RecordCheckoutItems(n int) { checkoutItemsTotal.Add(float64(n)) }

func RecordPaymentIntent(provider, outcome string) {
	paymentIntentsTotal.WithLabelValues(provider, outcome).Inc()
}

func RecordNotification(kind, outcome string) {
	notificationsTotal.WithLabelValues(kind, outcome).Inc()
}
