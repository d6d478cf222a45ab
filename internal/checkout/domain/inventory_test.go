package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/checkout/domain"
)

func TestInventoryReserveReleaseConservation(t *testing.T) {
	rec := domain.InventoryRecord{VariantID: uuid.New(), Available: 10, Reserved: 2, Version: 7}
	sum := rec.Available + rec.Reserved

	reserved := rec.WithReservation(3)
	if reserved.Available != 7 || reserved.Reserved != 5 {
		t.Errorf("after reserve: available=%d reserved=%d, want 7/5", reserved.Available, reserved.Reserved)
	}
	if reserved.Available+reserved.Reserved != sum {
		t.Error("reserve must conserve available + reserved")
	}
	if reserved.Version != 8 {
		t.Errorf("version = %d, want 8", reserved.Version)
	}

	released := reserved.WithRelease(3)
	if released.Available != 10 || released.Reserved != 2 {
		t.Errorf("after release: available=%d reserved=%d, want 10/2", released.Available, released.Reserved)
	}
	if released.Available+released.Reserved != sum {
		t.Error("release must conserve available + reserved")
	}
}

func TestInventoryShipmentDrainsReserved(t *testing.T) {
	rec := domain.InventoryRecord{Available: 5, Reserved: 3, Version: 1}

	shipped := rec.WithShipment(3)
	if shipped.Available != 5 || shipped.Reserved != 0 {
		t.Errorf("after shipment: available=%d reserved=%d, want 5/0", shipped.Available, shipped.Reserved)
	}

	over := rec.WithShipment(10)
	if over.Reserved != 0 {
		t.Errorf("over-shipment reserved=%d, want clamped to 0", over.Reserved)
	}
}

func TestInventoryCanReserve(t *testing.T) {
	rec := domain.InventoryRecord{Available: 2, Reserved: 1}

	tests := []struct {
		qty  int
		want bool
	}{
		{1, true},
		{2, true},
		{3, false},
		{0, false},
		{-1, false},
	}

	for _, tt := range tests {
		if got := rec.CanReserve(tt.qty); got != tt.want {
			t.Errorf("CanReserve(%d) = %v, want %v", tt.qty, got, tt.want)
		}
	}
}

func TestReservationExpiry(t *testing.T) {
	now := time.Now().UTC()
	res := domain.NewReservation(uuid.New(), []domain.ReservationLine{
		{VariantID: uuid.New(), Quantity: 2},
		{VariantID: uuid.New(), Quantity: 1},
	}, now, 10*time.Minute)

	if res.Status != domain.ReservationActive {
		t.Errorf("new reservation status = %s, want active", res.Status)
	}
	if res.IsExpired(now.Add(5 * time.Minute)) {
		t.Error("reservation expired before its TTL")
	}
	if !res.IsExpired(now.Add(11 * time.Minute)) {
		t.Error("reservation not expired after its TTL")
	}
	if got := res.TotalQuantity(); got != 3 {
		t.Errorf("TotalQuantity = %d, want 3", got)
	}
}
