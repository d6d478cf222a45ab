package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopkit/checkout/internal/checkout/ports"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Reserve claims the key by inserting an unresolved placeholder row. The
// insert is the serialization point: concurrent requests with the same key
// race on the primary key and exactly one wins.
func (s *Store) Reserve(ctx context.Context, key string) (*ports.StoredResponse, bool, error) {
	insert := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id)
		VALUES ($1, 0, ''::bytea, '')
		ON CONFLICT (key) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, insert, key)
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil, true, nil
	}

	query := `
		SELECT status_code, body, order_id
		FROM idempotency_keys
		WHERE key = $1
	`

	var resp ports.StoredResponse
	err = s.pool.QueryRow(ctx, query, key).Scan(
		&resp.StatusCode,
		&resp.Body,
		&resp.OrderID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The holder released between our insert and select; the caller
			// retries.
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, false, nil
}

func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
		    body = EXCLUDED.body,
		    order_id = EXCLUDED.order_id
	`

	_, err := s.pool.Exec(ctx, query, key, response.StatusCode, response.Body, response.OrderID)
	if err != nil {
		return fmt.Errorf("save idempotency key: %w", err)
	}

	return nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}

	return nil
}
