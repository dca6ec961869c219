package cart

import (
	"context"
	"slices"
	"sync"
)

type pairKey struct {
	userID    string
	productID int
}

type MemStore struct {
	mu     sync.Mutex
	items  map[string]*Item
	byPair map[pairKey]string
	order  []string
}

func NewMemStore() *MemStore {
	return &MemStore{
		items:  map[string]*Item{},
		byPair: map[pairKey]string{},
	}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) ListByUser(ctx context.Context, userID string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, 0, 4)
	for _, id := range s.order {
		if it := s.items[id]; it.UserID == userID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (s *MemStore) Add(ctx context.Context, it Item) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pairKey{userID: it.UserID, productID: it.ProductID}
	if id, ok := s.byPair[k]; ok {
		cur := s.items[id]
		q, err := addQuantity(cur.Quantity, it.Quantity)
		if err != nil {
			return Item{}, false, err
		}
		cur.Quantity = q
		return *cur, false, nil
	}

	stored := it
	s.items[it.ID] = &stored
	s.byPair[k] = it.ID
	s.order = append(s.order, it.ID)
	return stored, true, nil
}

func (s *MemStore) Get(ctx context.Context, id, userID string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok || it.UserID != userID {
		return Item{}, ErrItemNotFound
	}
	return *it, nil
}

func (s *MemStore) SetQuantity(ctx context.Context, id, userID string, qty int) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok || it.UserID != userID {
		return Item{}, ErrItemNotFound
	}
	it.Quantity = qty
	return *it, nil
}

func (s *MemStore) Remove(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok || it.UserID != userID {
		return ErrItemNotFound
	}

	delete(s.items, id)
	delete(s.byPair, pairKey{userID: it.UserID, productID: it.ProductID})
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return nil
}

func (s *MemStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}
