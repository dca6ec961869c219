package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"MiniTienda/internal/app"
	"MiniTienda/internal/cart"
	"MiniTienda/internal/catalog"
)

const (
	origin       = "https://mi-tienda-pwa-kned.vercel.app"
	metricsToken = "scrape-token"
)

var fixedNow = time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

type option func(*app.Deps)

func newTS(t *testing.T, opts ...option) *httptest.Server {
	t.Helper()

	deps := app.Deps{
		Catalog: catalog.NewMemStore(),
		Cart:    cart.NewMemStore(),
		Now:     func() time.Time { return fixedNow },
	}
	for _, o := range opts {
		o(&deps)
	}

	h := app.NewHandler(deps, app.HTTPDeps{
		Log:            zap.NewNop(),
		Service:        "tienda",
		Registry:       prometheus.NewRegistry(),
		AllowedOrigins: []string{origin},
		MetricsEnabled: true,
		MetricsToken:   metricsToken,
	})

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestPublicAPI_HappyPath(t *testing.T) {
	ts := newTS(t)

	resp, raw := do(t, http.MethodGet, ts.URL+"/api/productos", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var products struct {
		Success   bool              `json:"success"`
		Productos []catalog.Product `json:"productos"`
		Count     int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(raw, &products))
	require.True(t, products.Success)
	require.Equal(t, 2, products.Count)
	require.Equal(t, 1, products.Productos[0].ID)
	require.Equal(t, 2, products.Productos[1].ID)

	resp, root := do(t, http.MethodGet, ts.URL+"/", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, string(raw), string(root))

	for _, qty := range []int{2, 3} {
		resp, _ = do(t, http.MethodPost, ts.URL+"/api/carrito/agregar", map[string]any{
			"usuarioId": "u1", "productoId": 1, "cantidad": qty,
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, raw = do(t, http.MethodGet, ts.URL+"/api/carrito/u1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Carrito []cart.Item `json:"carrito"`
		Count   int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, 1, got.Count)
	require.Equal(t, 5, got.Carrito[0].Quantity)
	require.Equal(t, "Laptop Gaming", got.Carrito[0].ProductName)
	require.True(t, fixedNow.Equal(got.Carrito[0].AddedAt))

	resp, raw = do(t, http.MethodGet, ts.URL+"/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"OK","timestamp":"2026-10-17T08:00:00Z","carritosCount":1}`, string(raw))
}

func TestProbes(t *testing.T) {
	ts := newTS(t)

	resp, _ := do(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/readyz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

type downCart struct{ *cart.MemStore }

func (downCart) Ping(context.Context) error { return errors.New("dial tcp: connection refused") }

func (downCart) Count(context.Context) (int, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func TestProbes_StoreDown(t *testing.T) {
	ts := newTS(t, func(d *app.Deps) { d.Cart = downCart{cart.NewMemStore()} })

	resp, raw := do(t, http.MethodGet, ts.URL+"/readyz", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Contains(t, string(raw), "cart not ready")

	resp, raw = do(t, http.MethodGet, ts.URL+"/health", nil, nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, string(raw), "Error interno del servidor")
	require.NotContains(t, string(raw), "connection refused")
}

func TestUnknownRoute(t *testing.T) {
	ts := newTS(t)

	resp, raw := do(t, http.MethodGet, ts.URL+"/api/nada", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, string(raw), `"success":false`)
}

func TestCORS(t *testing.T) {
	ts := newTS(t)

	resp, _ := do(t, http.MethodOptions, ts.URL+"/api/carrito/agregar", nil, map[string]string{
		"Origin":                         origin,
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Content-Type",
	})
	require.Less(t, resp.StatusCode, 300)
	require.Equal(t, origin, resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/productos", nil, map[string]string{
		"Origin": "https://evil.example",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetrics(t *testing.T) {
	ts := newTS(t)

	do(t, http.MethodGet, ts.URL+"/api/carrito/u1", nil, nil)

	resp, _ := do(t, http.MethodGet, ts.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw := do(t, http.MethodGet, ts.URL+"/metrics", nil, map[string]string{
		"Authorization": "Bearer " + metricsToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(raw), `route="/api/carrito/{usuarioId}"`), "metrics:\n%s", raw)
}

func TestAddRateLimit(t *testing.T) {
	ts := newTS(t, func(d *app.Deps) { d.AddRateLimitPerMin = 2 })

	body := map[string]any{"usuarioId": "u1", "productoId": 2}
	for i := 0; i < 2; i++ {
		resp, _ := do(t, http.MethodPost, ts.URL+"/api/carrito/agregar", body, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, raw := do(t, http.MethodPost, ts.URL+"/api/carrito/agregar", body, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Contains(t, string(raw), "Demasiadas solicitudes")

	// Reads are not limited.
	resp, _ = do(t, http.MethodGet, ts.URL+"/api/carrito/u1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

type panickingCart struct{ *cart.MemStore }

func (panickingCart) ListByUser(context.Context, string) ([]cart.Item, error) {
	panic("nil map write")
}

func TestPanicIsLoggedAndCounted(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reg := prometheus.NewRegistry()

	h := app.NewHandler(app.Deps{
		Catalog: catalog.NewMemStore(),
		Cart:    panickingCart{cart.NewMemStore()},
	}, app.HTTPDeps{
		Log:            zap.New(core),
		Service:        "tienda",
		Registry:       reg,
		AllowedOrigins: []string{origin},
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	resp, raw := do(t, http.MethodGet, ts.URL+"/api/carrito/u1", nil, nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, string(raw), "Error interno del servidor")
	require.NotContains(t, string(raw), "nil map write")

	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	reqLogs := logs.FilterMessage("request").All()
	require.Len(t, reqLogs, 1)
	require.EqualValues(t, http.StatusInternalServerError, reqLogs[0].ContextMap()["status"])

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP http_requests_total HTTP requests by route pattern and status.
# TYPE http_requests_total counter
http_requests_total{method="GET",route="/api/carrito/{usuarioId}",service="tienda",status="500"} 1
`), "http_requests_total"))
}

func TestCartEventsAreCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := app.NewHandler(app.Deps{
		Catalog: catalog.NewMemStore(),
		Cart:    cart.NewMemStore(),
	}, app.HTTPDeps{
		Log:            zap.NewNop(),
		Service:        "tienda",
		Registry:       reg,
		AllowedOrigins: []string{origin},
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	add := map[string]any{"usuarioId": "u1", "productoId": 1}
	do(t, http.MethodPost, ts.URL+"/api/carrito/agregar", add, nil)
	_, raw := do(t, http.MethodPost, ts.URL+"/api/carrito/agregar", add, nil)

	var added struct {
		Item cart.Item `json:"item"`
	}
	require.NoError(t, json.Unmarshal(raw, &added))

	do(t, http.MethodPut, ts.URL+"/api/carrito/"+added.Item.ID, map[string]any{"usuarioId": "u1", "cantidad": 4}, nil)
	do(t, http.MethodPut, ts.URL+"/api/carrito/"+added.Item.ID, map[string]any{"usuarioId": "u1", "cantidad": 0}, nil)

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP cart_items_added_total Successful add-to-cart calls; result is created or merged.
# TYPE cart_items_added_total counter
cart_items_added_total{result="created",service="tienda"} 1
cart_items_added_total{result="merged",service="tienda"} 1
# HELP cart_items_removed_total Cart items removed; reason is deleted or zero_quantity.
# TYPE cart_items_removed_total counter
cart_items_removed_total{reason="zero_quantity",service="tienda"} 1
# HELP cart_items_updated_total Cart item quantities overwritten.
# TYPE cart_items_updated_total counter
cart_items_updated_total{service="tienda"} 1
`), "cart_items_added_total", "cart_items_removed_total", "cart_items_updated_total"))
}
