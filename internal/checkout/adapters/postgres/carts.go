package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
	"github.com/shopkit/checkout/internal/money"
)

type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	q := db(ctx, r.pool)

	query := `
		SELECT id, user_id, session_id, coupon_code, expires_at, updated_at
		FROM carts
		WHERE id = $1 AND converted_at IS NULL
	`

	var cart domain.Cart
	err := q.QueryRow(ctx, query, id).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.SessionID,
		&cart.CouponCode,
		&cart.ExpiresAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrCartNotFound
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	items, err := r.loadItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return &cart, nil
}

func (r *CartRepository) loadItems(ctx context.Context, q querier, cartID uuid.UUID) ([]domain.CartItem, error) {
	query := `
		SELECT variant_id, product_name, sku, category, quantity,
		       unit_price_units, currency, priced_at, weight_grams
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY position
	`

	rows, err := q.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var (
			item       domain.CartItem
			priceUnits int64
			currency   string
		)
		if err := rows.Scan(
			&item.VariantID,
			&item.ProductName,
			&item.SKU,
			&item.Category,
			&item.Quantity,
			&priceUnits,
			&currency,
			&item.PricedAt,
			&item.WeightGrams,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		item.UnitPrice = money.FromMinorUnits(priceUnits, currency)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}

	return items, nil
}

func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	q := db(ctx, r.pool)

	upsert := `
		INSERT INTO carts (id, user_id, session_id, coupon_code, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			coupon_code = EXCLUDED.coupon_code,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := q.Exec(ctx, upsert,
		cart.ID,
		cart.UserID,
		cart.SessionID,
		cart.CouponCode,
		cart.ExpiresAt,
		cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	// Items are replaced wholesale; carts are small.
	if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}

	insert := `
		INSERT INTO cart_items (cart_id, position, variant_id, product_name, sku, category,
		                        quantity, unit_price_units, currency, priced_at, weight_grams)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for i, item := range cart.Items {
		_, err := q.Exec(ctx, insert,
			cart.ID,
			i,
			item.VariantID,
			item.ProductName,
			item.SKU,
			item.Category,
			item.Quantity,
			item.UnitPrice.MinorUnits(),
			item.UnitPrice.Currency(),
			item.PricedAt,
			item.WeightGrams,
		)
		if err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	return nil
}

func (r *CartRepository) MarkConverted(ctx context.Context, id uuid.UUID) error {
	q := db(ctx, r.pool)

	result, err := q.Exec(ctx, `
		UPDATE carts
		SET converted_at = now()
		WHERE id = $1 AND converted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("mark cart converted: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrCartNotFound
	}

	return nil
}
