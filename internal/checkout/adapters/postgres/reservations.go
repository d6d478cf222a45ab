package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopkit/checkout/internal/checkout/domain"
	"github.com/shopkit/checkout/internal/checkout/ports"
)

type ReservationStore struct {
	pool *pgxpool.Pool
}

func NewReservationStore(pool *pgxpool.Pool) *ReservationStore {
	return &ReservationStore{pool: pool}
}

func (s *ReservationStore) Create(ctx context.Context, reservation *domain.Reservation) error {
	q := db(ctx, s.pool)

	_, err := q.Exec(ctx, `
		INSERT INTO reservations (id, order_id, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, reservation.ID, reservation.OrderID, reservation.Status, reservation.CreatedAt, reservation.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	for _, line := range reservation.Lines {
		_, err := q.Exec(ctx, `
			INSERT INTO reservation_lines (reservation_id, variant_id, quantity)
			VALUES ($1, $2, $3)
		`, reservation.ID, line.VariantID, line.Quantity)
		if err != nil {
			return fmt.Errorf("insert reservation line: %w", err)
		}
	}

	return nil
}

func (s *ReservationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	q := db(ctx, s.pool)

	var reservation domain.Reservation
	err := q.QueryRow(ctx, `
		SELECT id, order_id, status, created_at, expires_at
		FROM reservations
		WHERE id = $1
	`, id).Scan(
		&reservation.ID,
		&reservation.OrderID,
		&reservation.Status,
		&reservation.CreatedAt,
		&reservation.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrReservationNotFound
		}
		return nil, fmt.Errorf("select reservation: %w", err)
	}

	lines, err := s.loadLines(ctx, q, id)
	if err != nil {
		return nil, err
	}
	reservation.Lines = lines

	return &reservation, nil
}

func (s *ReservationStore) loadLines(ctx context.Context, q querier, reservationID uuid.UUID) ([]domain.ReservationLine, error) {
	rows, err := q.Query(ctx, `
		SELECT variant_id, quantity
		FROM reservation_lines
		WHERE reservation_id = $1
	`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("query reservation lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.ReservationLine
	for rows.Next() {
		var line domain.ReservationLine
		if err := rows.Scan(&line.VariantID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan reservation line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation lines: %w", err)
	}

	return lines, nil
}

func (s *ReservationStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus) error {
	q := db(ctx, s.pool)

	result, err := q.Exec(ctx, `
		UPDATE reservations
		SET status = $1
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrReservationNotFound
	}

	return nil
}

func (s *ReservationStore) FindExpired(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	q := db(ctx, s.pool)

	rows, err := q.Query(ctx, `
		SELECT id, order_id, status, created_at, expires_at
		FROM reservations
		WHERE status = 'active' AND expires_at <= $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("query expired reservations: %w", err)
	}
	defer rows.Close()

	var expired []domain.Reservation
	for rows.Next() {
		var reservation domain.Reservation
		if err := rows.Scan(
			&reservation.ID,
			&reservation.OrderID,
			&reservation.Status,
			&reservation.CreatedAt,
			&reservation.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		expired = append(expired, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}

	for i := range expired {
		lines, err := s.loadLines(ctx, q, expired[i].ID)
		if err != nil {
			return nil, err
		}
		expired[i].Lines = lines
	}

	return expired, nil
}
