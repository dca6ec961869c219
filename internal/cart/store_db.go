package cart

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second

	pgForeignKeyCode     = "23503"
	pgOutOfRangeCode     = "22003"
	pgCheckViolationCode = "23514"
)

// The products table must exist first; see catalog.PostgresStore.Migrate.
const schema = `
CREATE TABLE IF NOT EXISTS cart_items (
	seq                 BIGSERIAL PRIMARY KEY,
	id                  TEXT NOT NULL UNIQUE,
	user_id             TEXT NOT NULL,
	product_id          INTEGER NOT NULL REFERENCES products (id),
	quantity            INTEGER NOT NULL CHECK (quantity >= 1),
	product_name        TEXT NOT NULL,
	product_price       NUMERIC(12, 2) NOT NULL,
	product_image       TEXT NOT NULL,
	product_description TEXT NOT NULL,
	added_at            TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, product_id)
)`

const itemColumns = `id, user_id, product_id, quantity, product_name, product_price,
	product_image, product_description, added_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, schema)
		return err
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Item, error) {
	out := make([]Item, 0, 4)

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+itemColumns+`
			FROM cart_items
			WHERE user_id = $1
			ORDER BY seq ASC
		`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				return err
			}
			out = append(out, it)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

// Add relies on the (user_id, product_id) unique constraint; xmax is zero only
// for a freshly inserted row.
func (s *PostgresStore) Add(ctx context.Context, it Item) (Item, bool, error) {
	var (
		out     Item
		created bool
	)

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `
			INSERT INTO cart_items (`+itemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (user_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
			RETURNING `+itemColumns+`, (xmax = 0) AS created
		`, it.ID, it.UserID, it.ProductID, it.Quantity, it.ProductName, it.ProductPrice,
			it.ProductImage, it.ProductDescription, it.AddedAt)

		return row.Scan(&out.ID, &out.UserID, &out.ProductID, &out.Quantity, &out.ProductName,
			&out.ProductPrice, &out.ProductImage, &out.ProductDescription, &out.AddedAt, &created)
	})
	if err != nil {
		return Item{}, false, mapPgError(err)
	}
	return out, created, nil
}

func (s *PostgresStore) Get(ctx context.Context, id, userID string) (Item, error) {
	var out Item

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+itemColumns+`
			FROM cart_items
			WHERE id = $1 AND user_id = $2
		`, id, userID)

		var err error
		out, err = scanItem(row)
		return err
	})

	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return out, nil
}

func (s *PostgresStore) SetQuantity(ctx context.Context, id, userID string, qty int) (Item, error) {
	var out Item

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `
			UPDATE cart_items
			SET quantity = $3
			WHERE id = $1 AND user_id = $2
			RETURNING `+itemColumns, id, userID, qty)

		var err error
		out, err = scanItem(row)
		return err
	})

	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, mapPgError(err)
	}
	return out, nil
}

func (s *PostgresStore) Remove(ctx context.Context, id, userID string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE id = $1 AND user_id = $2
		`, id, userID)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrItemNotFound
		}
		return nil
	})
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT count(*) FROM cart_items`).Scan(&n)
	})
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (Item, error) {
	var it Item
	err := r.Scan(&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.ProductName,
		&it.ProductPrice, &it.ProductImage, &it.ProductDescription, &it.AddedAt)
	return it, err
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgForeignKeyCode:
		return ErrUnknownProduct
	case pgOutOfRangeCode, pgCheckViolationCode:
		return ErrQuantityOverflow
	}
	return err
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
