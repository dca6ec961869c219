package kit

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows exactly the listed origins, with credentials. Preflight requests
// are answered for every path, matched or not.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
