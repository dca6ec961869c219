package kit

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelMethod = "method"
	labelRoute  = "route"
	labelStatus = "status"
	labelResult = "result"
	labelReason = "reason"
)

// Metrics holds the request instruments and the cart activity counters of
// one service. Every series carries a constant service label.
type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	InFlight prometheus.Gauge

	CartAdded   *prometheus.CounterVec
	CartUpdated prometheus.Counter
	CartRemoved *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer, service string) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern and status.",
		}, []string{labelMethod, labelRoute, labelStatus}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{labelMethod, labelRoute}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served.",
		}),

		CartAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_items_added_total",
			Help: "Successful add-to-cart calls; result is created or merged.",
		}, []string{labelResult}),
		CartUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cart_items_updated_total",
			Help: "Cart item quantities overwritten.",
		}),
		CartRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_items_removed_total",
			Help: "Cart items removed; reason is deleted or zero_quantity.",
		}, []string{labelReason}),
	}

	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, reg)
	wrapped.MustRegister(m.Requests, m.Latency, m.InFlight, m.CartAdded, m.CartUpdated, m.CartRemoved)
	return m
}

// ItemAdded, ItemUpdated and ItemRemoved let *Metrics record cart events
// directly from the cart handlers.
func (m *Metrics) ItemAdded(created bool) {
	result := "merged"
	if created {
		result = "created"
	}
	m.CartAdded.WithLabelValues(result).Inc()
}

func (m *Metrics) ItemUpdated() { m.CartUpdated.Inc() }

func (m *Metrics) ItemRemoved(byQuantity bool) {
	reason := "deleted"
	if byQuantity {
		reason = "zero_quantity"
	}
	m.CartRemoved.WithLabelValues(reason).Inc()
}

// Middleware records one counter tick and one latency sample per request.
// routeLabel must return a bounded set of values, e.g. RouteLabel. Handlers
// that panic are only counted when a recoverer runs inside this middleware.
func (m *Metrics) Middleware(routeLabel func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.InFlight.Inc()
			defer m.InFlight.Dec()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := routeLabel(r)
			m.Latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		})
	}
}
