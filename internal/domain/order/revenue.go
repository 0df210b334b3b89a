package order

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

const dayLayout = "2006-01-02"

// RevenueQuery narrows revenue metrics to one restaurant and a creation
// date range. Empty fields are unbounded.
type RevenueQuery struct {
	RestaurantID string
	From         *time.Time
	To           *time.Time
}

// Summary holds the headline revenue KPIs.
type Summary struct {
	TotalRevenue  decimal.Decimal
	TotalOrders   int
	AvgOrderValue decimal.Decimal
}

// RestaurantRevenue is one row of the per-restaurant breakdown.
type RestaurantRevenue struct {
	RestaurantID string
	Revenue      decimal.Decimal
	Orders       int
}

// DailyRevenue is one calendar day of the time series.
type DailyRevenue struct {
	Day     string
	Revenue decimal.Decimal
	Orders  int
}

// RevenueReport is the aggregation result. It is derived on read and never
// persisted.
type RevenueReport struct {
	Summary     Summary
	Restaurants []RestaurantRevenue
	Timeseries  []DailyRevenue
}

// idSet is a set of order ids. Counting orders through set union keeps an
// order that contributes both an item and a sub-order fee from being
// counted twice.
type idSet map[string]struct{}

func (s idSet) add(id string) { s[id] = struct{}{} }

type bucket struct {
	revenue decimal.Decimal
	orders  idSet
}

func (b *bucket) add(orderID string, amount decimal.Decimal) {
	if b.orders == nil {
		b.orders = make(idSet)
	}
	b.revenue = b.revenue.Add(amount)
	b.orders.add(orderID)
}

// Aggregator computes revenue metrics over delivered orders.
type Aggregator struct {
	loc *time.Location
}

// NewAggregator returns an Aggregator that buckets days in loc. A nil loc
// means UTC.
func NewAggregator(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{loc: loc}
}

// Aggregate reduces orders into a RevenueReport. Only delivered orders
// created inside [from, to] and touching the scope contribute.
//
// Revenue for a restaurant is the sum of its item lines plus its attributed
// delivery fee. Order counts, per restaurant and per day, are set unions of
// order ids. The overall order count is taken once over the eligible orders
// rather than summed from the breakdown.
func (a *Aggregator) Aggregate(orders []Order, scope Scope, from, to *time.Time) RevenueReport {
	filter := Filter{From: from, To: to, DeliveredOnly: true}
	if !scope.Unrestricted {
		filter.RestaurantIDs = scope.RestaurantIDs
	}

	restaurants := make(map[string]*bucket)
	days := make(map[string]*bucket)
	matched := make(idSet)
	total := decimal.Zero

	for i := range orders {
		o := &orders[i]
		if !filter.Match(o) {
			continue
		}
		matched.add(o.ID)

		day := o.CreatedAt.In(a.loc).Format(dayLayout)
		db, ok := days[day]
		if !ok {
			db = &bucket{orders: make(idSet)}
			days[day] = db
		}
		db.orders.add(o.ID)

		for id, amount := range contributions(o, scope) {
			rb, ok := restaurants[id]
			if !ok {
				rb = &bucket{}
				restaurants[id] = rb
			}
			rb.add(o.ID, amount)
			db.add(o.ID, amount)
			total = total.Add(amount)
		}
	}

	report := RevenueReport{
		Summary: Summary{
			TotalRevenue:  total,
			TotalOrders:   len(matched),
			AvgOrderValue: decimal.Zero,
		},
		Restaurants: make([]RestaurantRevenue, 0, len(restaurants)),
		Timeseries:  make([]DailyRevenue, 0, len(days)),
	}
	if n := len(matched); n > 0 {
		report.Summary.AvgOrderValue = total.Div(decimal.NewFromInt(int64(n))).Round(2)
	}

	for id, b := range restaurants {
		report.Restaurants = append(report.Restaurants, RestaurantRevenue{
			RestaurantID: id,
			Revenue:      b.revenue,
			Orders:       len(b.orders),
		})
	}
	slices.SortFunc(report.Restaurants, func(x, y RestaurantRevenue) int {
		if c := y.Revenue.Cmp(x.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(x.RestaurantID, y.RestaurantID)
	})

	for day, b := range days {
		report.Timeseries = append(report.Timeseries, DailyRevenue{
			Day:     day,
			Revenue: b.revenue,
			Orders:  len(b.orders),
		})
	}
	slices.SortFunc(report.Timeseries, func(x, y DailyRevenue) int {
		return cmp.Compare(x.Day, y.Day)
	})

	return report
}

// contributions merges the item stream and the fee stream of one order into
// per-restaurant amounts, restricted to the scope. A restaurant is present
// in the result whenever it contributed an item or a fee share, even when
// the amount is zero.
func contributions(o *Order, scope Scope) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, it := range o.Items {
		if it.RestaurantID == "" || !scope.Allows(it.RestaurantID) {
			continue
		}
		out[it.RestaurantID] = out[it.RestaurantID].Add(it.LineTotal())
	}
	for id, share := range FeeAttribution(o) {
		if !scope.Allows(id) {
			continue
		}
		out[id] = out[id].Add(share)
	}
	return out
}
