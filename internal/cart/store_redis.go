package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const maxTxRetries = 16

var errTooMuchContention = errors.New("cart: redis transaction retries exhausted")

// RedisStore keeps one JSON document per item plus three indexes:
//
//	<ns>:cart:item:<id>               item document
//	<ns>:cart:pair:<user>:<product>   id of the user's item for product
//	<ns>:cart:user:<user>             list of the user's item ids, insertion order
//	<ns>:cart:items                   set of every item id
//
// Writes run in WATCH/MULTI transactions on the pair or item key.
type RedisStore struct {
	client *redis.Client
	ns     string
}

func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{client: client, ns: namespace}
}

func (s *RedisStore) itemKey(id string) string { return s.ns + ":cart:item:" + id }
func (s *RedisStore) userKey(u string) string  { return s.ns + ":cart:user:" + u }
func (s *RedisStore) allKey() string           { return s.ns + ":cart:items" }

func (s *RedisStore) pairKey(userID string, productID int) string {
	return s.ns + ":cart:pair:" + userID + ":" + strconv.Itoa(productID)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]Item, error) {
	ids, err := s.client.LRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Item, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.itemKey(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// removed between LRANGE and MGET
			continue
		}
		it, err := decodeItem([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *RedisStore) Add(ctx context.Context, it Item) (Item, bool, error) {
	var (
		out     Item
		created bool
	)
	pk := s.pairKey(it.UserID, it.ProductID)

	err := s.retry(ctx, func(tx *redis.Tx) error {
		id, err := tx.Get(ctx, pk).Result()
		if errors.Is(err, redis.Nil) {
			out, created = it, true
			return s.create(ctx, tx, it, pk, "")
		}
		if err != nil {
			return err
		}

		if err := tx.Watch(ctx, s.itemKey(id)).Err(); err != nil {
			return err
		}
		cur, err := s.getItem(ctx, tx, id)
		if errors.Is(err, ErrItemNotFound) {
			// The pair index outlived its item (eviction or manual DEL).
			out, created = it, true
			return s.create(ctx, tx, it, pk, id)
		}
		if err != nil {
			return err
		}
		if cur.Quantity, err = addQuantity(cur.Quantity, it.Quantity); err != nil {
			return err
		}
		if err := s.putItem(ctx, tx, cur); err != nil {
			return err
		}
		out, created = cur, false
		return nil
	}, pk)

	if err != nil {
		return Item{}, false, err
	}
	return out, created, nil
}

// create writes a new item and its indexes. A non-empty staleID is a dangling
// id left in the indexes, dropped in the same transaction.
func (s *RedisStore) create(ctx context.Context, tx *redis.Tx, it Item, pk, staleID string) error {
	raw, err := json.Marshal(it)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if staleID != "" {
			p.LRem(ctx, s.userKey(it.UserID), 0, staleID)
			p.SRem(ctx, s.allKey(), staleID)
		}
		p.Set(ctx, s.itemKey(it.ID), raw, 0)
		p.Set(ctx, pk, it.ID, 0)
		p.RPush(ctx, s.userKey(it.UserID), it.ID)
		p.SAdd(ctx, s.allKey(), it.ID)
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, id, userID string) (Item, error) {
	raw, err := s.client.Get(ctx, s.itemKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}

	it, err := decodeItem(raw)
	if err != nil {
		return Item{}, err
	}
	if it.UserID != userID {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (s *RedisStore) SetQuantity(ctx context.Context, id, userID string, qty int) (Item, error) {
	var out Item

	err := s.retry(ctx, func(tx *redis.Tx) error {
		cur, err := s.getOwned(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		cur.Quantity = qty
		if err := s.putItem(ctx, tx, cur); err != nil {
			return err
		}
		out = cur
		return nil
	}, s.itemKey(id))

	if err != nil {
		return Item{}, err
	}
	return out, nil
}

func (s *RedisStore) Remove(ctx context.Context, id, userID string) error {
	return s.retry(ctx, func(tx *redis.Tx) error {
		cur, err := s.getOwned(ctx, tx, id, userID)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, s.itemKey(id), s.pairKey(cur.UserID, cur.ProductID))
			p.LRem(ctx, s.userKey(cur.UserID), 1, id)
			p.SRem(ctx, s.allKey(), id)
			return nil
		})
		return err
	}, s.itemKey(id))
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.allKey()).Result()
	return int(n), err
}

// retry runs fn under WATCH on keys, retrying when another client wins the race.
func (s *RedisStore) retry(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errTooMuchContention
}

func (s *RedisStore) getItem(ctx context.Context, tx *redis.Tx, id string) (Item, error) {
	raw, err := tx.Get(ctx, s.itemKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}

	return decodeItem(raw)
}

func decodeItem(raw []byte) (Item, error) {
	var it Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return Item{}, fmt.Errorf("decode cart item: %w", err)
	}
	return it, nil
}

func (s *RedisStore) getOwned(ctx context.Context, tx *redis.Tx, id, userID string) (Item, error) {
	it, err := s.getItem(ctx, tx, id)
	if err != nil {
		return Item{}, err
	}
	if it.UserID != userID {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (s *RedisStore) putItem(ctx context.Context, tx *redis.Tx, it Item) error {
	raw, err := json.Marshal(it)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.itemKey(it.ID), raw, 0)
		return nil
	})
	return err
}
