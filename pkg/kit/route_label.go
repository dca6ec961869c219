package kit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteLabel returns the chi route pattern. Unmatched requests share one label
// so arbitrary 404 paths cannot blow up metric cardinality.
func RouteLabel(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return "unmatched"
	}
	if rp := rc.RoutePattern(); rp != "" {
		return rp
	}
	return "unmatched"
}
