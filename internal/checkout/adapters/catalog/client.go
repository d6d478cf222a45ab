// Package catalog is an HTTP client for the product catalog service, the
// source of truth for current prices and a stock-level hint.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/money"
)

// Client talks to the catalog service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a catalog client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type variantResponse struct {
	Price     money.Money `json:"price"`
	Available int         `json:"available"`
}

func (c *Client) getVariant(ctx context.Context, variantID uuid.UUID) (*variantResponse, error) {
	url := fmt.Sprintf("%s/v1/variants/%s", c.baseURL, variantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d for variant %s", resp.StatusCode, variantID)
	}

	var payload variantResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return &payload, nil
}

func (c *Client) CurrentPrice(ctx context.Context, variantID uuid.UUID) (money.Money, error) {
	v, err := c.getVariant(ctx, variantID)
	if err != nil {
		return money.Money{}, err
	}
	return v.Price, nil
}

func (c *Client) CurrentStock(ctx context.Context, variantID uuid.UUID) (int, error) {
	v, err := c.getVariant(ctx, variantID)
	if err != nil {
		return 0, err
	}
	return v.Available, nil
}
