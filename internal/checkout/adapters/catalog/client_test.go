package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/money"
)

func TestClientCurrentPriceAndStock(t *testing.T) {
	variantID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/v1/variants/" + variantID.String()
		if r.URL.Path != want {
			t.Errorf("path = %q, want %q", r.URL.Path, want)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"price":{"amount":"19.99","currency":"USD"},"available":7}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	price, err := client.CurrentPrice(context.Background(), variantID)
	if err != nil {
		t.Fatalf("CurrentPrice() error = %v", err)
	}
	if want := money.MustParse("19.99", "USD"); !price.Equal(want) {
		t.Errorf("price = %s, want %s", price, want)
	}

	stock, err := client.CurrentStock(context.Background(), variantID)
	if err != nil {
		t.Fatalf("CurrentStock() error = %v", err)
	}
	if stock != 7 {
		t.Errorf("stock = %d, want 7", stock)
	}
}

func TestClientUnknownVariant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	if _, err := client.CurrentPrice(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error for unknown variant, got nil")
	}
}
