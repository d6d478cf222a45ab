package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInitializeMetrics(t *testing.T) {
	t.Run("initializes all metric instruments successfully", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		meter := mp.Meter("test")

		metrics, err := NewMetrics(meter)
		if err != nil {
			t.Fatalf("NewMetrics() failed: %v", err)
		}

		if metrics == nil {
			t.Fatal("NewMetrics() returned nil")
		}

		if metrics.checkoutsTotal == nil {
			t.Error("checkoutsTotal is nil")
		}

		if metrics.checkoutDuration == nil {
			t.Error("checkoutDuration is nil")
		}

		if metrics.reservationConflicts == nil {
			t.Error("reservationConflicts is nil")
		}
	})
}

func TestRecordCheckout(t *testing.T) {
	t.Run("records checkout count by outcome", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		meter := mp.Meter("test")

		metrics, err := NewMetrics(meter)
		if err != nil {
			t.Fatalf("NewMetrics() failed: %v", err)
		}

		ctx := context.Background()

		metrics.RecordCheckout(ctx, "success")
		metrics.RecordCheckout(ctx, "resource")

		var rm metricdata.ResourceMetrics
		if err := reader.Collect(ctx, &rm); err != nil {
			t.Fatalf("Failed to collect metrics: %v", err)
		}

		found := false
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if m.Name == "checkouts_total" {
					found = true
					sum, ok := m.Data.(metricdata.Sum[int64])
					if !ok {
						t.Fatal("Expected Sum[int64] data type")
					}
					if len(sum.DataPoints) != 2 {
						t.Errorf("Expected 2 data points, got %d", len(sum.DataPoints))
					}
				}
			}
		}

		if !found {
			t.Error("checkouts_total metric not found")
		}
	})
}

func TestRecordCheckoutDuration(t *testing.T) {
	t.Run("records checkout duration", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		meter := mp.Meter("test")

		metrics, err := NewMetrics(meter)
		if err != nil {
			t.Fatalf("NewMetrics() failed: %v", err)
		}

		ctx := context.Background()

		metrics.RecordCheckoutDuration(ctx, 0.4)
		metrics.RecordCheckoutDuration(ctx, 1.1)

		var rm metricdata.ResourceMetrics
		if err := reader.Collect(ctx, &rm); err != nil {
			t.Fatalf("Failed to collect metrics: %v", err)
		}

		found := false
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if m.Name == "checkout_duration_seconds" {
					found = true
					histogram, ok := m.Data.(metricdata.Histogram[float64])
					if !ok {
						t.Fatal("Expected Histogram[float64] data type")
					}
					if len(histogram.DataPoints) != 1 {
						t.Errorf("Expected 1 data point, got %d", len(histogram.DataPoints))
					}
					if histogram.DataPoints[0].Count != 2 {
						t.Errorf("Expected count=2, got %d", histogram.DataPoints[0].Count)
					}
				}
			}
		}

		if !found {
			t.Error("checkout_duration_seconds metric not found")
		}
	})
}

func TestRecordReservationsExpired(t *testing.T) {
	t.Run("accumulates reclaimed reservation counts", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		meter := mp.Meter("test")

		metrics, err := NewMetrics(meter)
		if err != nil {
			t.Fatalf("NewMetrics() failed: %v", err)
		}

		ctx := context.Background()

		metrics.RecordReservationsExpired(ctx, 3)
		metrics.RecordReservationsExpired(ctx, 2)

		var rm metricdata.ResourceMetrics
		if err := reader.Collect(ctx, &rm); err != nil {
			t.Fatalf("Failed to collect metrics: %v", err)
		}

		found := false
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if m.Name == "inventory_reservations_expired_total" {
					found = true
					sum, ok := m.Data.(metricdata.Sum[int64])
					if !ok {
						t.Fatal("Expected Sum[int64] data type")
					}
					if len(sum.DataPoints) != 1 {
						t.Fatalf("Expected 1 data point, got %d", len(sum.DataPoints))
					}
					if sum.DataPoints[0].Value != 5 {
						t.Errorf("Expected value=5, got %d", sum.DataPoints[0].Value)
					}
				}
			}
		}

		if !found {
			t.Error("inventory_reservations_expired_total metric not found")
		}
	})
}
