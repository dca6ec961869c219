package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MiniTienda/pkg/kit"
)

type Server struct {
	Store Store
	Log   *zap.Logger
}

type listResp struct {
	Success   bool      `json:"success"`
	Productos []Product `json:"productos"`
	Count     int       `json:"count"`
}

// Register mounts the listing on /api/productos and on / for older clients.
func (s *Server) Register(r chi.Router) {
	r.Get("/api/productos", s.list)
	r.Get("/", s.list)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	s.Log.Info("list products", zap.String("path", r.URL.Path))

	products, err := s.Store.ListSortedByID(r.Context())
	if err != nil {
		s.Log.Error("list products failed", zap.Error(err))
		kit.WriteInternal(w, r)
		return
	}
	if products == nil {
		products = []Product{}
	}

	kit.WriteJSON(w, http.StatusOK, listResp{
		Success:   true,
		Productos: products,
		Count:     len(products),
	})
}
