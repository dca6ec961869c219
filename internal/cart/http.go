package cart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"MiniTienda/internal/catalog"
	"MiniTienda/pkg/kit"
)

const maxBodyBytes = 1 << 20

const (
	msgAdded   = "Producto agregado al carrito"
	msgUpdated = "Carrito actualizado"
	msgRemoved = "Producto eliminado del carrito"
)

// ProductLookup resolves a product id at insert time. catalog.Store satisfies it.
type ProductLookup interface {
	Get(ctx context.Context, id int) (catalog.Product, bool, error)
}

// Recorder receives cart events after they are stored. *kit.Metrics satisfies it.
type Recorder interface {
	ItemAdded(created bool)
	ItemUpdated()
	ItemRemoved(byQuantity bool)
}

type nopRecorder struct{}

func (nopRecorder) ItemAdded(bool)   {}
func (nopRecorder) ItemUpdated()     {}
func (nopRecorder) ItemRemoved(bool) {}

type Server struct {
	Store   Store
	Catalog ProductLookup
	Log     *zap.Logger
	Events  Recorder

	// Now and NewID default to time.Now and a prefixed UUID.
	Now   func() time.Time
	NewID func() string
}

type cartResp struct {
	Success bool   `json:"success"`
	Carrito []Item `json:"carrito"`
	Count   int    `json:"count"`
}

// Register mounts the cart routes. addMW wraps only the add endpoint.
func (s *Server) Register(r chi.Router, addMW ...func(http.Handler) http.Handler) {
	r.Route("/api/carrito", func(cr chi.Router) {
		cr.With(addMW...).Post("/agregar", s.add)
		cr.Get("/{usuarioId}", s.list)
		cr.Put("/{itemId}", s.update)
		cr.Delete("/{itemId}", s.remove)
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "usuarioId")

	items, err := s.Store.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []Item{}
	}

	s.Log.Info("cart fetched", zap.String("user_id", userID), zap.Int("items", len(items)))
	kit.WriteJSON(w, http.StatusOK, cartResp{Success: true, Carrito: items, Count: len(items)})
}

func (s *Server) add(w http.ResponseWriter, r *http.Request) {
	var req addReq
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	it, created, err := s.addItem(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.Log.Info("cart item added",
		zap.String("user_id", it.UserID),
		zap.Int("product_id", it.ProductID),
		zap.Int("quantity", it.Quantity),
		zap.Bool("created", created),
	)
	s.events().ItemAdded(created)
	kit.WriteMessage(w, msgAdded, it)
}

func (s *Server) addItem(ctx context.Context, req addReq) (Item, bool, error) {
	userID := string(req.UserID)
	if userID == "" || req.ProductID.zero() {
		return Item{}, false, errMissingAddFields
	}

	pid, ok := req.productID()
	if !ok {
		return Item{}, false, ErrUnknownProduct
	}
	p, found, err := s.Catalog.Get(ctx, pid)
	if err != nil {
		return Item{}, false, err
	}
	if !found {
		return Item{}, false, ErrUnknownProduct
	}

	qty, err := req.quantity()
	if err != nil {
		return Item{}, false, err
	}

	return s.Store.Add(ctx, Item{
		ID:                 s.newID(),
		UserID:             userID,
		ProductID:          p.ID,
		Quantity:           qty,
		ProductName:        p.Nombre,
		ProductPrice:       p.Precio,
		ProductImage:       p.Imagen,
		ProductDescription: p.Descripcion,
		AddedAt:            s.now().UTC(),
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")

	var req updateReq
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID := string(req.UserID)
	if userID == "" {
		s.writeError(w, r, errMissingUser)
		return
	}

	// An unknown item is reported before any complaint about cantidad.
	if _, err := s.Store.Get(r.Context(), itemID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}

	qty, err := req.quantity()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if qty < 1 {
		if err := s.Store.Remove(r.Context(), itemID, userID); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.Log.Info("cart item removed by quantity", zap.String("item_id", itemID), zap.String("user_id", userID))
		s.events().ItemRemoved(true)
		kit.WriteMessage(w, msgUpdated, nil)
		return
	}

	if _, err := s.Store.SetQuantity(r.Context(), itemID, userID, qty); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Log.Info("cart item updated", zap.String("item_id", itemID), zap.Int("quantity", qty))
	s.events().ItemUpdated()
	kit.WriteMessage(w, msgUpdated, nil)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")

	var req deleteReq
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID := string(req.UserID)
	if userID == "" {
		s.writeError(w, r, errMissingUser)
		return
	}

	if err := s.Store.Remove(r.Context(), itemID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Log.Info("cart item removed", zap.String("item_id", itemID), zap.String("user_id", userID))
	s.events().ItemRemoved(false)
	kit.WriteMessage(w, msgRemoved, nil)
}

// decodeBody treats an empty body as an empty object so that missing fields
// are reported as such rather than as bad JSON.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errBadJSON
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errBadJSON
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBadJSON):
		kit.WriteError(w, r, http.StatusBadRequest, "JSON inválido")
	case errors.Is(err, errMissingAddFields):
		kit.WriteError(w, r, http.StatusBadRequest, "usuarioId y productoId son requeridos")
	case errors.Is(err, errMissingUser):
		kit.WriteError(w, r, http.StatusBadRequest, "usuarioId es requerido")
	case errors.Is(err, errQuantityRequired):
		kit.WriteError(w, r, http.StatusBadRequest, "cantidad es requerida")
	case errors.Is(err, errBadQuantity), errors.Is(err, ErrQuantityOverflow):
		kit.WriteError(w, r, http.StatusBadRequest, "cantidad inválida")
	case errors.Is(err, ErrUnknownProduct):
		kit.WriteError(w, r, http.StatusNotFound, "Producto no encontrado")
	case errors.Is(err, ErrItemNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "Item del carrito no encontrado")
	default:
		s.Log.Error("cart request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		kit.WriteInternal(w, r)
	}
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) events() Recorder {
	if s.Events != nil {
		return s.Events
	}
	return nopRecorder{}
}

func (s *Server) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return "ci_" + uuid.NewString()
}
