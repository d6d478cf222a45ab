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
)

type InventoryStore struct {
	pool *pgxpool.Pool
}

func NewInventoryStore(pool *pgxpool.Pool) *InventoryStore {
	return &InventoryStore{pool: pool}
}

func (s *InventoryStore) Create(ctx context.Context, record domain.InventoryRecord) error {
	q := db(ctx, s.pool)

	_, err := q.Exec(ctx, `
		INSERT INTO inventory_records (variant_id, available, reserved, version)
		VALUES ($1, $2, $3, $4)
	`, record.VariantID, record.Available, record.Reserved, record.Version)
	if err != nil {
		return fmt.Errorf("insert inventory record: %w", err)
	}

	return nil
}

func (s *InventoryStore) Get(ctx context.Context, variantID uuid.UUID) (domain.InventoryRecord, error) {
	q := db(ctx, s.pool)

	var record domain.InventoryRecord
	err := q.QueryRow(ctx, `
		SELECT variant_id, available, reserved, version
		FROM inventory_records
		WHERE variant_id = $1
	`, variantID).Scan(
		&record.VariantID,
		&record.Available,
		&record.Reserved,
		&record.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.InventoryRecord{}, ports.ErrVariantNotFound
		}
		return domain.InventoryRecord{}, fmt.Errorf("select inventory record: %w", err)
	}

	return record, nil
}

// CompareAndSwap writes the record only when the stored version matches what
// the caller read. Losing the race surfaces as domain.ErrVersionConflict.
func (s *InventoryStore) CompareAndSwap(ctx context.Context, record domain.InventoryRecord, expectedVersion int64) error {
	q := db(ctx, s.pool)

	result, err := q.Exec(ctx, `
		UPDATE inventory_records
		SET available = $1, reserved = $2, version = $3
		WHERE variant_id = $4 AND version = $5
	`, record.Available, record.Reserved, record.Version, record.VariantID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update inventory record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	return nil
}
