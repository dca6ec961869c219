package catalog

import (
	"context"
	"sort"
)

// MemStore never changes after construction, so reads need no locking.
type MemStore struct {
	m map[int]Product
}

func NewMemStore(products ...Product) *MemStore {
	if len(products) == 0 {
		products = Seed()
	}
	s := &MemStore{m: make(map[int]Product, len(products))}
	for _, p := range products {
		s.m[p.ID] = p
	}
	return s
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) ListSortedByID(ctx context.Context) ([]Product, error) {
	out := make([]Product, 0, len(s.m))
	for _, p := range s.m {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) Get(ctx context.Context, id int) (Product, bool, error) {
	p, ok := s.m[id]
	return p, ok, nil
}
