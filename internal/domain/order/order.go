package order

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryType selects the courier tier for an order.
type DeliveryType string

const (
	DeliveryDriver DeliveryType = "driver"
	DeliveryDrone  DeliveryType = "drone"
)

// Valid reports whether t is a known delivery type.
func (t DeliveryType) Valid() bool {
	return t == DeliveryDriver || t == DeliveryDrone
}

// PaymentMethod is how the customer settles the order.
type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCOD  PaymentMethod = "cod"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentCOD
}

// Item is a line of the order. Name and price are snapshots taken at
// checkout and are never re-read from the catalog.
type Item struct {
	FoodID       string          `json:"foodId"`
	RestaurantID string          `json:"restaurantId,omitempty"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
}

// LineTotal returns price * quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Coordinate is a point on a delivery route.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimelineEntry is one record of the append-only status log.
type TimelineEntry struct {
	Status       string    `json:"status"`
	At           time.Time `json:"at"`
	RestaurantID string    `json:"restaurantId,omitempty"`
}

// SubOrder is the slice of an order that belongs to one restaurant.
type SubOrder struct {
	RestaurantID string          `json:"restaurantId"`
	Items        []Item          `json:"items"`
	Phase        Phase           `json:"deliveryPhase"`
	DeliveryType DeliveryType    `json:"deliveryType"`
	DeliveryFee  decimal.Decimal `json:"deliveryFee"`
	ETAMinutes   *int            `json:"etaMinutes,omitempty"`
}

// Status returns the legacy display string of the sub-order.
func (s SubOrder) Status() string {
	return s.Phase.Status()
}

// Order is the root aggregate of a placed purchase.
type Order struct {
	ID            string
	UserID        string
	Items         []Item
	Address       map[string]any
	Phase         Phase
	PaymentMethod PaymentMethod
	Paid          bool
	DeliveryType  DeliveryType
	DeliveryFee   decimal.Decimal
	PromoCode     string
	PromoDiscount decimal.Decimal
	SubTotal      decimal.Decimal
	Total         decimal.Decimal
	DroneID       string
	DriverID      string
	Route         []Coordinate
	Timeline      []TimelineEntry
	SubOrders     []SubOrder
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Version is bumped on every committed write and guards
	// compare-and-swap replacement in the store.
	Version int64
}

// Status returns the legacy status string derived from the phase.
func (o *Order) Status() string {
	return o.Phase.Status()
}

// Amount is the legacy alias of Total.
func (o *Order) Amount() decimal.Decimal {
	return o.Total
}

// RestaurantIDs returns the distinct restaurant ids referenced by the
// order's items and sub-orders, in first-seen order.
func (o *Order) RestaurantIDs() []string {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, it := range o.Items {
		add(it.RestaurantID)
	}
	for _, so := range o.SubOrders {
		add(so.RestaurantID)
	}
	return ids
}

// Touches reports whether any item or sub-order references one of ids.
func (o *Order) Touches(ids []string) bool {
	for _, id := range o.RestaurantIDs() {
		if slices.Contains(ids, id) {
			return true
		}
	}
	return false
}

// SubOrder returns the sub-order for restaurantID, if any.
func (o *Order) SubOrder(restaurantID string) (*SubOrder, bool) {
	for i := range o.SubOrders {
		if o.SubOrders[i].RestaurantID == restaurantID {
			return &o.SubOrders[i], true
		}
	}
	return nil, false
}

// Delivered reports whether the order counts as completed for revenue.
// Either representation is sufficient.
func (o *Order) Delivered() bool {
	return o.Phase == PhaseDelivered || o.Status() == StatusDelivered
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	c.Route = slices.Clone(o.Route)
	c.Timeline = slices.Clone(o.Timeline)
	if o.Address != nil {
		c.Address = make(map[string]any, len(o.Address))
		for k, v := range o.Address {
			c.Address[k] = v
		}
	}
	if o.SubOrders != nil {
		c.SubOrders = make([]SubOrder, len(o.SubOrders))
		for i, so := range o.SubOrders {
			so.Items = slices.Clone(so.Items)
			if so.ETAMinutes != nil {
				eta := *so.ETAMinutes
				so.ETAMinutes = &eta
			}
			c.SubOrders[i] = so
		}
	}
	return &c
}
