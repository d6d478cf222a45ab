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

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	q := db(ctx, r.pool)

	insert := `
		INSERT INTO orders (id, number, user_id, session_id, coupon_code, state,
		                    payment_ref, tracking_ref, version, currency,
		                    subtotal_units, discount_units, tax_units, shipping_units, grand_total_units,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	currency := order.Totals.GrandTotal.Currency()
	_, err := q.Exec(ctx, insert,
		order.ID,
		order.Number,
		order.UserID,
		order.SessionID,
		order.CouponCode,
		order.State,
		order.PaymentRef,
		order.TrackingRef,
		order.Version,
		currency,
		order.Totals.Subtotal.MinorUnits(),
		order.Totals.Discount.MinorUnits(),
		order.Totals.Tax.MinorUnits(),
		order.Totals.Shipping.MinorUnits(),
		order.Totals.GrandTotal.MinorUnits(),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemInsert := `
		INSERT INTO order_items (order_id, position, variant_id, product_name, sku, category,
		                         quantity, unit_price_units, line_total_units, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for i, item := range order.Items {
		_, err := q.Exec(ctx, itemInsert,
			order.ID,
			i,
			item.VariantID,
			item.ProductName,
			item.SKU,
			item.Category,
			item.Quantity,
			item.UnitPrice.MinorUnits(),
			item.LineTotal.MinorUnits(),
			item.UnitPrice.Currency(),
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return r.appendTransitions(ctx, q, order.ID, order.History, 0)
}

func (r *OrderRepository) appendTransitions(ctx context.Context, q querier, orderID uuid.UUID, history []domain.Transition, from int) error {
	insert := `
		INSERT INTO order_transitions (order_id, position, from_state, to_state, actor, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := from; i < len(history); i++ {
		tr := history[i]
		_, err := q.Exec(ctx, insert, orderID, i, tr.From, tr.To, tr.Actor, tr.Reason, tr.At)
		if err != nil {
			return fmt.Errorf("insert order transition: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	q := db(ctx, r.pool)

	query := `
		SELECT id, number, user_id, session_id, coupon_code, state,
		       payment_ref, tracking_ref, version, currency,
		       subtotal_units, discount_units, tax_units, shipping_units, grand_total_units,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	order, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	if err := r.loadDetails(ctx, q, order); err != nil {
		return nil, err
	}

	return order, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order    domain.Order
		currency string
		units    [5]int64
	)
	err := row.Scan(
		&order.ID,
		&order.Number,
		&order.UserID,
		&order.SessionID,
		&order.CouponCode,
		&order.State,
		&order.PaymentRef,
		&order.TrackingRef,
		&order.Version,
		&currency,
		&units[0], &units[1], &units[2], &units[3], &units[4],
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Totals = domain.Totals{
		Subtotal:   money.FromMinorUnits(units[0], currency),
		Discount:   money.FromMinorUnits(units[1], currency),
		Tax:        money.FromMinorUnits(units[2], currency),
		Shipping:   money.FromMinorUnits(units[3], currency),
		GrandTotal: money.FromMinorUnits(units[4], currency),
	}
	return &order, nil
}

func (r *OrderRepository) loadDetails(ctx context.Context, q querier, order *domain.Order) error {
	itemRows, err := q.Query(ctx, `
		SELECT variant_id, product_name, sku, category, quantity,
		       unit_price_units, line_total_units, currency
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, order.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			item       domain.OrderItem
			priceUnits int64
			totalUnits int64
			currency   string
		)
		if err := itemRows.Scan(
			&item.VariantID,
			&item.ProductName,
			&item.SKU,
			&item.Category,
			&item.Quantity,
			&priceUnits,
			&totalUnits,
			&currency,
		); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		item.UnitPrice = money.FromMinorUnits(priceUnits, currency)
		item.LineTotal = money.FromMinorUnits(totalUnits, currency)
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}
	itemRows.Close()

	trRows, err := q.Query(ctx, `
		SELECT from_state, to_state, actor, reason, occurred_at
		FROM order_transitions
		WHERE order_id = $1
		ORDER BY position
	`, order.ID)
	if err != nil {
		return fmt.Errorf("query order transitions: %w", err)
	}
	defer trRows.Close()

	for trRows.Next() {
		var tr domain.Transition
		if err := trRows.Scan(&tr.From, &tr.To, &tr.Actor, &tr.Reason, &tr.At); err != nil {
			return fmt.Errorf("scan order transition: %w", err)
		}
		order.History = append(order.History, tr)
	}
	if err := trRows.Err(); err != nil {
		return fmt.Errorf("iterate order transitions: %w", err)
	}

	return nil
}

func (r *OrderRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	q := db(ctx, r.pool)

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `
		SELECT id, number, user_id, session_id, coupon_code, state,
		       payment_ref, tracking_ref, version, currency,
		       subtotal_units, discount_units, tax_units, shipping_units, grand_total_units,
		       created_at, updated_at
		FROM orders
		WHERE ($1::text IS NULL OR state = $1)
		  AND ($2::uuid IS NULL OR user_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	var stateFilter *string
	if filter.State != nil {
		s := string(*filter.State)
		stateFilter = &s
	}

	offset := (page - 1) * pageSize

	rows, err := q.Query(ctx, query, stateFilter, filter.UserID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	// List responses carry summaries; items and history stay lazy.
	return orders, nil
}

// SaveTransition persists the latest lifecycle change only when the caller
// saw the current version. History rows already stored are left untouched.
func (r *OrderRepository) SaveTransition(ctx context.Context, order *domain.Order, expectedVersion int64) error {
	q := db(ctx, r.pool)

	result, err := q.Exec(ctx, `
		UPDATE orders
		SET state = $1, payment_ref = $2, tracking_ref = $3, version = $4, updated_at = $5
		WHERE id = $6 AND version = $7
	`,
		order.State,
		order.PaymentRef,
		order.TrackingRef,
		order.Version,
		order.UpdatedAt,
		order.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	return r.appendTransitions(ctx, q, order.ID, order.History, len(order.History)-1)
}
