package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
)

func TestReserveMovesAvailableToReserved(t *testing.T) {
	f := newFixture()
	variant := uuid.New()
	f.seedStock(variant, 10)

	reservation, err := f.reserver.Reserve(context.Background(), uuid.New(), []domain.ReservationLine{
		{VariantID: variant, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if reservation.Status != domain.ReservationActive {
		t.Errorf("status = %s, want active", reservation.Status)
	}

	rec := f.stock(variant)
	if rec.Available != 7 || rec.Reserved != 3 {
		t.Errorf("stock = %d/%d, want available 7 reserved 3", rec.Available, rec.Reserved)
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	f := newFixture()
	plenty := uuid.New()
	scarce := uuid.New()
	f.seedStock(plenty, 10)
	f.seedStock(scarce, 1)

	_, err := f.reserver.Reserve(context.Background(), uuid.New(), []domain.ReservationLine{
		{VariantID: plenty, Quantity: 2},
		{VariantID: scarce, Quantity: 5},
	})

	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("error = %v, want InsufficientStockError", err)
	}
	if insufficient.VariantID != scarce {
		t.Errorf("flagged variant %s, want %s", insufficient.VariantID, scarce)
	}
	if insufficient.Available != 1 || insufficient.Requested != 5 {
		t.Errorf("reported %d available for %d requested, want 1 for 5", insufficient.Available, insufficient.Requested)
	}

	// The satisfiable first line must have been rolled back.
	rec := f.stock(plenty)
	if rec.Available != 10 || rec.Reserved != 0 {
		t.Errorf("stock = %d/%d after failed reserve, want 10/0", rec.Available, rec.Reserved)
	}
}

func TestReserveLastUnitSingleWinner(t *testing.T) {
	f := newFixture()
	variant := uuid.New()
	f.seedStock(variant, 1)

	const racers = 2

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.reserver.Reserve(context.Background(), uuid.New(), []domain.ReservationLine{
				{VariantID: variant, Quantity: 1},
			})
		}(i)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range errs {
		var insufficient *domain.InsufficientStockError
		switch {
		case err == nil:
			winners++
		case errors.As(err, &insufficient), errors.Is(err, domain.ErrContended):
			losers++
		default:
			t.Errorf("unexpected reserve error: %v", err)
		}
	}
	if winners != 1 || losers != 1 {
		t.Errorf("winners = %d losers = %d, want exactly one of each", winners, losers)
	}

	rec := f.stock(variant)
	if rec.Available != 0 || rec.Reserved != 1 {
		t.Errorf("stock = %d/%d, want available 0 reserved 1", rec.Available, rec.Reserved)
	}
}

func TestConfirmLeavesInventoryUntouched(t *testing.T) {
	f := newFixture()
	variant := uuid.New()
	f.seedStock(variant, 10)

	ctx := context.Background()
	reservation, err := f.reserver.Reserve(ctx, uuid.New(), []domain.ReservationLine{
		{VariantID: variant, Quantity: 4},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	before := f.stock(variant)
	if err := f.reserver.Confirm(ctx, reservation.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	after := f.stock(variant)

	if before != after {
		t.Errorf("confirm changed inventory: %+v -> %+v", before, after)
	}

	// Confirming again is a no-op.
	if err := f.reserver.Confirm(ctx, reservation.ID); err != nil {
		t.Errorf("second Confirm: %v", err)
	}
}

func TestConfirmExpiredReservation(t *testing.T) {
	f := newFixture()
	variant := uuid.New()
	f.seedStock(variant, 5)

	ctx := context.Background()
	reservation, err := f.reserver.Reserve(ctx, uuid.New(), []domain.ReservationLine{
		{VariantID: variant, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	f.now = f.now.Add(11 * time.Minute)

	if err := f.reserver.Confirm(ctx, reservation.ID); !errors.Is(err, domain.ErrReservationExpired) {
		t.Errorf("Confirm on expired reservation = %v, want ErrReservationExpired", err)
	}
}

func TestReleaseReturnsStock(t *testing.T) {
	f := newFixture()
	variant := uuid.New()
	f.seedStock(variant, 5)

	ctx := context.Background()
	reservation, err := f.reserver.Reserve(ctx, uuid.New(), []domain.ReservationLine{
		{VariantID: variant, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if err := f.reserver.Release(ctx, reservation.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	rec := f.stock(variant)
	if rec.Available != 5 || rec.Reserved != 0 {
		t.Errorf("stock = %d/%d after release, want 5/0", rec.Available, rec.Reserved)
	}

	// Releasing again must not double-credit.
	if err := f.reserver.Release(ctx, reservation.ID); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	rec = f.stock(variant)
	if rec.Available != 5 {
		t.Errorf("available = %d after repeated release, want 5", rec.Available)
	}
}

func TestCommitShipmentDrainsReserved(t *testing.T) {
	f := newFixture()
	variant := uuid.New()
	f.seedStock(variant, 5)

	ctx := context.Background()
	lines := []domain.ReservationLine{{VariantID: variant, Quantity: 2}}

	reservation, err := f.reserver.Reserve(ctx, uuid.New(), lines)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := f.reserver.Confirm(ctx, reservation.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := f.reserver.CommitShipment(ctx, lines); err != nil {
		t.Fatalf("CommitShipment: %v", err)
	}

	rec := f.stock(variant)
	if rec.Available != 3 || rec.Reserved != 0 {
		t.Errorf("stock = %d/%d after shipment, want available 3 reserved 0", rec.Available, rec.Reserved)
	}
}

func TestFindExpiredSkipsConfirmed(t *testing.T) {
	f := newFixture()
	abandoned := uuid.New()
	committed := uuid.New()
	f.seedStock(abandoned, 5)
	f.seedStock(committed, 5)

	ctx := context.Background()
	stale, err := f.reserver.Reserve(ctx, uuid.New(), []domain.ReservationLine{
		{VariantID: abandoned, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Reserve abandoned: %v", err)
	}
	confirmed, err := f.reserver.Reserve(ctx, uuid.New(), []domain.ReservationLine{
		{VariantID: committed, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Reserve confirmed: %v", err)
	}
	if err := f.reserver.Confirm(ctx, confirmed.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	f.now = f.now.Add(11 * time.Minute)

	expired, err := f.reserver.FindExpired(ctx)
	if err != nil {
		t.Fatalf("FindExpired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Errorf("expired = %v, want only the unconfirmed reservation %s", expired, stale.ID)
	}
}
