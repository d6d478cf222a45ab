package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopkit/checkout/internal/money"
)

// CartItem is a single line in a cart. The unit price is a snapshot captured
// when the item was added and re-validated at checkout; the line discount is
// computed, never authoritative.
type CartItem struct {
	VariantID   uuid.UUID   `json:"variant_id"`
	ProductName string      `json:"product_name"`
	SKU         string      `json:"sku"`
	Category    string      `json:"category"`
	Quantity    int         `json:"quantity"`
	UnitPrice   money.Money `json:"unit_price"`
	PricedAt    time.Time   `json:"priced_at"`
	WeightGrams int         `json:"weight_grams"`
}

// LineTotal is the snapshot price times quantity.
func (i CartItem) LineTotal() money.Money {
	return i.UnitPrice.MulInt(int64(i.Quantity))
}

// Cart is a mutable collection of items owned by a registered user or an
// anonymous session. It is mutable until checkout starts.
type Cart struct {
	ID         uuid.UUID  `json:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Items      []CartItem `json:"items"`
	CouponCode string     `json:"coupon_code,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate enforces the cart invariants: an owner is present, no two lines
// reference the same variant, and all quantities are positive.
func (c *Cart) Validate() error {
	if c.UserID == nil && c.SessionID == "" {
		return errors.New("cart requires a user or session owner")
	}

	seen := make(map[uuid.UUID]struct{}, len(c.Items))
	for _, item := range c.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("variant %s: quantity must be positive", item.VariantID)
		}
		if _, dup := seen[item.VariantID]; dup {
			return fmt.Errorf("variant %s appears in more than one line", item.VariantID)
		}
		seen[item.VariantID] = struct{}{}
	}
	return nil
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// IsExpired reports whether the cart is past its expiry.
func (c *Cart) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Subtotal sums line totals over all items.
func (c *Cart) Subtotal(currency string) (money.Money, error) {
	total := money.Zero(currency)
	for _, item := range c.Items {
		var err error
		total, err = total.Add(item.LineTotal())
		if err != nil {
			return money.Money{}, fmt.Errorf("variant %s: %w", item.VariantID, err)
		}
	}
	return total, nil
}

// TotalQuantity sums quantities over all items.
func (c *Cart) TotalQuantity() int {
	var n int
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// TotalWeightGrams sums item weights, used by shipping rule sets.
func (c *Cart) TotalWeightGrams() int {
	var grams int
	for _, item := range c.Items {
		grams += item.WeightGrams * item.Quantity
	}
	return grams
}

// UpsertItem adds a line or merges quantity into an existing line for the
// same variant. A merge refreshes the price snapshot to the incoming one.
func (c *Cart) UpsertItem(item CartItem) {
	if existing := c.ItemByVariant(item.VariantID); existing != nil {
		existing.Quantity += item.Quantity
		existing.UnitPrice = item.UnitPrice
		existing.PricedAt = item.PricedAt
		return
	}
	c.Items = append(c.Items, item)
}

// RemoveItem drops the line for a variant, reporting whether it existed.
func (c *Cart) RemoveItem(variantID uuid.UUID) bool {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// SetQuantity updates a line's quantity. Zero removes the line.
func (c *Cart) SetQuantity(variantID uuid.UUID, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("variant %s: quantity must not be negative", variantID)
	}
	item := c.ItemByVariant(variantID)
	if item == nil {
		return fmt.Errorf("variant %s not in cart", variantID)
	}
	if quantity == 0 {
		c.RemoveItem(variantID)
		return nil
	}
	item.Quantity = quantity
	return nil
}

// Touch records activity and slides the expiry window forward.
func (c *Cart) Touch(now time.Time, ttl time.Duration) {
	c.UpdatedAt = now
	if ttl > 0 {
		c.ExpiresAt = now.Add(ttl)
	}
}

// AttachCoupon sets the active coupon code. Stacking is not supported:
// attaching a second coupon replaces the first.
func (c *Cart) AttachCoupon(code string) (replaced string) {
	replaced = c.CouponCode
	c.CouponCode = code
	return replaced
}

// RemoveCoupon clears the active coupon code.
func (c *Cart) RemoveCoupon() {
	c.CouponCode = ""
}

// ItemByVariant returns the line for a variant, or nil.
func (c *Cart) ItemByVariant(variantID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}
