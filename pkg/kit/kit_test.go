package kit_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MiniTienda/pkg/kit"
)

func TestRecoverer_GenericInternalError(t *testing.T) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer(zap.NewNop()))
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("secret detail") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret detail")

	var body kit.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, kit.MsgInternal, body.Error)
	require.NotEmpty(t, body.RequestID)
}

func TestIPRateLimiter_Allow(t *testing.T) {
	l := kit.NewIPRateLimiter(2, time.Minute)

	require.True(t, l.Allow("1.1.1.1"))
	require.True(t, l.Allow("1.1.1.1"))
	require.False(t, l.Allow("1.1.1.1"))
	require.True(t, l.Allow("2.2.2.2"))
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	l := kit.NewIPRateLimiter(1, time.Minute)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do())
	require.Equal(t, http.StatusTooManyRequests, do())
}

func TestMetricsAuth(t *testing.T) {
	h := kit.MetricsAuth("tok")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusForbidden},
		{"wrong", "Bearer nope", http.StatusForbidden},
		{"ok", "Bearer tok", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestMetrics_CountsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := kit.NewMetrics(reg, "tienda")

	r := chi.NewRouter()
	r.Use(m.Middleware(kit.RouteLabel))
	r.Get("/api/carrito/{usuarioId}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	for _, u := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/carrito/"+u, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/1", nil))

	require.Equal(t, float64(3), testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "/api/carrito/{usuarioId}", "200")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "unmatched", "404")))
	require.Zero(t, testutil.ToFloat64(m.InFlight))

	n, err := testutil.GatherAndCount(reg, "http_requests_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestMetrics_CartEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := kit.NewMetrics(reg, "tienda")

	m.ItemAdded(true)
	m.ItemAdded(false)
	m.ItemAdded(false)
	m.ItemUpdated()
	m.ItemRemoved(true)

	require.Equal(t, float64(1), testutil.ToFloat64(m.CartAdded.WithLabelValues("created")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.CartAdded.WithLabelValues("merged")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.CartUpdated))
	require.Equal(t, float64(1), testutil.ToFloat64(m.CartRemoved.WithLabelValues("zero_quantity")))
	require.Zero(t, testutil.ToFloat64(m.CartRemoved.WithLabelValues("deleted")))

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP cart_items_updated_total Cart item quantities overwritten.
# TYPE cart_items_updated_total counter
cart_items_updated_total{service="tienda"} 1
`), "cart_items_updated_total"))
}

func TestServe_DrainsInFlightOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusAccepted)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- kit.Serve(ctx, ln, h, zap.NewNop(), kit.ServerOptions{}) }()

	status := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			status <- 0
			return
		}
		_ = resp.Body.Close()
		status <- resp.StatusCode
	}()

	<-entered
	cancel()
	close(release)

	require.Equal(t, http.StatusAccepted, <-status)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestCORS(t *testing.T) {
	h := kit.CORS([]string{"https://shop.example"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("preflight allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/anything", nil)
		req.Header.Set("Origin", "https://shop.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
