package cart

import (
	"context"
	"errors"
	"math"
	"time"
)

// MaxQuantity bounds a single item's quantity so every backend can hold it.
const MaxQuantity = math.MaxInt32

var (
	ErrItemNotFound     = errors.New("cart item not found")
	ErrUnknownProduct   = errors.New("unknown product")
	ErrQuantityOverflow = errors.New("quantity overflow")
)

// Item is one product line in one user's cart. The product fields are copied
// from the catalog when the line is first created.
type Item struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"usuarioId"`
	ProductID          int       `json:"productoId"`
	Quantity           int       `json:"cantidad"`
	ProductName        string    `json:"productoNombre"`
	ProductPrice       float64   `json:"productoPrecio"`
	ProductImage       string    `json:"productoImagen"`
	ProductDescription string    `json:"productoDescripcion"`
	AddedAt            time.Time `json:"fechaAgregado"`
}

// Store holds at most one Item per (UserID, ProductID). Implementations keep
// that true under concurrent calls.
type Store interface {
	// ListByUser returns the user's items in insertion order.
	ListByUser(ctx context.Context, userID string) ([]Item, error)
	// Add inserts it, or adds it.Quantity to the existing item for the same
	// user and product. It returns the stored item and whether it was created.
	Add(ctx context.Context, it Item) (Item, bool, error)
	// Get returns the item when it exists and belongs to userID.
	Get(ctx context.Context, id, userID string) (Item, error)
	// SetQuantity overwrites the quantity of the item owned by userID.
	SetQuantity(ctx context.Context, id, userID string, qty int) (Item, error)
	// Remove deletes the item owned by userID.
	Remove(ctx context.Context, id, userID string) error
	// Count returns the number of items across all users.
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

func addQuantity(cur, delta int) (int, error) {
	if delta < 0 || cur > MaxQuantity-delta {
		return 0, ErrQuantityOverflow
	}
	return cur + delta, nil
}
