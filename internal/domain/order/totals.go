package order

import (
	"bytes"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// RawNumber is a client-supplied numeric value kept as text so that the
// active NumericPolicy decides what malformed input means. It accepts JSON
// numbers, strings and null.
type RawNumber string

// UnmarshalJSON never fails: anything that is not a string is kept verbatim.
func (n *RawNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*n = RawNumber(s)
		return nil
	}
	*n = RawNumber(b)
	return nil
}

// Num formats d as a RawNumber.
func Num(d decimal.Decimal) RawNumber {
	return RawNumber(d.String())
}

// NumericPolicy converts raw client numbers into decimals.
type NumericPolicy interface {
	Decimal(field string, n RawNumber) (decimal.Decimal, error)
}

// CoerceOrZero treats anything that does not parse as a number as zero.
// Checkout is never blocked on malformed numeric input.
type CoerceOrZero struct{}

func (CoerceOrZero) Decimal(_ string, n RawNumber) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero, nil
	}
	return d, nil
}

// Strict rejects non-numeric input with a ValidationError.
type Strict struct{}

func (Strict) Decimal(field string, n RawNumber) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: "not a number"}
	}
	return d, nil
}

// FeeSchedule holds the flat delivery fee per delivery type.
type FeeSchedule struct {
	tiers map[DeliveryType]decimal.Decimal
}

// DefaultFeeSchedule returns the stock driver and drone tiers.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{tiers: map[DeliveryType]decimal.Decimal{
		DeliveryDriver: decimal.NewFromInt(20000),
		DeliveryDrone:  decimal.NewFromInt(30000),
	}}
}

// NewFeeSchedule validates the tiers: the driver fee must be positive and
// the drone fee strictly higher.
func NewFeeSchedule(driver, drone decimal.Decimal) (FeeSchedule, error) {
	if !driver.IsPositive() {
		return FeeSchedule{}, errors.Errorf("driver fee must be positive, got %s", driver)
	}
	if !drone.GreaterThan(driver) {
		return FeeSchedule{}, errors.Errorf("drone fee %s must exceed driver fee %s", drone, driver)
	}
	return FeeSchedule{tiers: map[DeliveryType]decimal.Decimal{
		DeliveryDriver: driver,
		DeliveryDrone:  drone,
	}}, nil
}

// Fee returns the flat fee for t. Unknown types pay the driver tier.
func (s FeeSchedule) Fee(t DeliveryType) decimal.Decimal {
	if fee, ok := s.tiers[t]; ok {
		return fee
	}
	return s.tiers[DeliveryDriver]
}

// CartItem is an item as received from the client.
type CartItem struct {
	FoodID       string    `json:"foodId"`
	RestaurantID string    `json:"restaurantId"`
	Name         string    `json:"name"`
	Price        RawNumber `json:"price"`
	Quantity     RawNumber `json:"quantity"`
}

// Adjustments carries the optional discount and the overrides a trusted
// upstream caller may supply. A present override wins verbatim.
type Adjustments struct {
	PromoDiscount *RawNumber
	SubTotal      *RawNumber
	DeliveryFee   *RawNumber
	Total         *RawNumber
}

// Totals is the money breakdown of an order.
type Totals struct {
	SubTotal      decimal.Decimal
	DeliveryFee   decimal.Decimal
	PromoDiscount decimal.Decimal
	Total         decimal.Decimal
}

// Amount is the legacy alias of Total.
func (t Totals) Amount() decimal.Decimal {
	return t.Total
}

// Calculator computes order totals. It has no side effects.
type Calculator struct {
	fees   FeeSchedule
	policy NumericPolicy
}

// NewCalculator creates a Calculator. A nil policy means CoerceOrZero.
func NewCalculator(fees FeeSchedule, policy NumericPolicy) *Calculator {
	if policy == nil {
		policy = CoerceOrZero{}
	}
	return &Calculator{fees: fees, policy: policy}
}

// Fees returns the schedule the calculator was built with.
func (c *Calculator) Fees() FeeSchedule {
	return c.fees
}

// Snapshot converts cart items into order items, applying the numeric policy
// to price and quantity. Fractional quantities are truncated.
func (c *Calculator) Snapshot(cart []CartItem) ([]Item, error) {
	items := make([]Item, len(cart))
	for i, ci := range cart {
		price, err := c.policy.Decimal("price", ci.Price)
		if err != nil {
			return nil, err
		}
		qty, err := c.policy.Decimal("quantity", ci.Quantity)
		if err != nil {
			return nil, err
		}
		items[i] = Item{
			FoodID:       ci.FoodID,
			RestaurantID: ci.RestaurantID,
			Name:         ci.Name,
			Price:        price,
			Quantity:     int(qty.IntPart()),
		}
	}
	return items, nil
}

// Compute returns subtotal, fee, discount and total for items delivered by t.
func (c *Calculator) Compute(items []Item, t DeliveryType, adj Adjustments) (Totals, error) {
	var (
		totals Totals
		err    error
	)

	if adj.SubTotal != nil {
		if totals.SubTotal, err = c.policy.Decimal("subTotal", *adj.SubTotal); err != nil {
			return Totals{}, err
		}
	} else {
		totals.SubTotal = SubTotal(items)
	}

	if adj.DeliveryFee != nil {
		if totals.DeliveryFee, err = c.policy.Decimal("deliveryFee", *adj.DeliveryFee); err != nil {
			return Totals{}, err
		}
	} else {
		totals.DeliveryFee = c.fees.Fee(t)
	}

	if adj.PromoDiscount != nil {
		if totals.PromoDiscount, err = c.policy.Decimal("promoDiscount", *adj.PromoDiscount); err != nil {
			return Totals{}, err
		}
	}

	if adj.Total != nil {
		if totals.Total, err = c.policy.Decimal("total", *adj.Total); err != nil {
			return Totals{}, err
		}
	} else {
		totals.Total = clampTotal(totals.SubTotal, totals.DeliveryFee, totals.PromoDiscount)
	}

	return totals, nil
}

// SubTotal sums price * quantity over items.
func SubTotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

func clampTotal(sub, fee, discount decimal.Decimal) decimal.Decimal {
	total := sub.Add(fee).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
