package catalog

import "context"

// Product is immutable once seeded.
type Product struct {
	ID          int     `json:"id"`
	Nombre      string  `json:"nombre"`
	Precio      float64 `json:"precio"`
	Descripcion string  `json:"descripcion"`
	Imagen      string  `json:"imagen"`
}

type Store interface {
	ListSortedByID(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int) (Product, bool, error)
	Ping(ctx context.Context) error
}

// Seed is the catalog every fresh store starts with.
func Seed() []Product {
	return []Product{
		{
			ID:          1,
			Nombre:      "Laptop Gaming",
			Precio:      1200,
			Descripcion: "Laptop para gaming de alta performance",
			Imagen:      "https://images.unsplash.com/photo-1603302576837-37561b2e2302?w=300&h=200&fit=crop",
		},
		{
			ID:          2,
			Nombre:      "Smartphone",
			Precio:      599,
			Descripcion: "Teléfono inteligente última generación",
			Imagen:      "https://images.unsplash.com/photo-1511707171634-5f897ff02aa9?w=300&h=200&fit=crop",
		},
	}
}
