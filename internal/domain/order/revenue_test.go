package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// revenueFixture returns:
//   - A: delivered on day 1, R1 200 + R2 50 in items, one sub-order each
//     carrying the full 20 fee.
//   - B: delivered on day 2, R1 30 in items, no sub-orders, 10 order fee.
//   - C: still at the restaurant, R1 500.
func revenueFixture() []Order {
	day1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 23, 30, 0, 0, time.UTC)
	fee := decimal.NewFromInt(20)

	a := Order{
		ID:          "A",
		Phase:       PhaseDelivered,
		Items:       []Item{item("R1", 100, 2), item("R2", 50, 1)},
		DeliveryFee: fee,
		CreatedAt:   day1,
	}
	a.SubOrders = Partition(a.Items, DeliveryDriver, fee, nil)

	b := Order{
		ID:          "B",
		Phase:       PhaseDelivered,
		Items:       []Item{item("R1", 30, 1)},
		DeliveryFee: decimal.NewFromInt(10),
		CreatedAt:   day2,
	}

	c := Order{
		ID:          "C",
		Phase:       PhaseAtRestaurant,
		Items:       []Item{item("R1", 500, 1)},
		DeliveryFee: fee,
		CreatedAt:   day2,
	}
	c.SubOrders = Partition(c.Items, DeliveryDriver, fee, nil)

	return []Order{a, b, c}
}

func TestAggregate_Unrestricted(t *testing.T) {
	report := NewAggregator(nil).Aggregate(revenueFixture(), Scope{Unrestricted: true}, nil, nil)

	assertDecimal(t, "330", report.Summary.TotalRevenue)
	assert.Equal(t, 2, report.Summary.TotalOrders)
	assertDecimal(t, "165", report.Summary.AvgOrderValue)

	require.Len(t, report.Restaurants, 2)
	assert.Equal(t, "R1", report.Restaurants[0].RestaurantID)
	assertDecimal(t, "260", report.Restaurants[0].Revenue)
	assert.Equal(t, 2, report.Restaurants[0].Orders)
	assert.Equal(t, "R2", report.Restaurants[1].RestaurantID)
	assertDecimal(t, "70", report.Restaurants[1].Revenue)
	assert.Equal(t, 1, report.Restaurants[1].Orders)

	require.Len(t, report.Timeseries, 2)
	assert.Equal(t, "2024-03-01", report.Timeseries[0].Day)
	assertDecimal(t, "290", report.Timeseries[0].Revenue)
	assert.Equal(t, 1, report.Timeseries[0].Orders)
	assert.Equal(t, "2024-03-02", report.Timeseries[1].Day)
	assertDecimal(t, "40", report.Timeseries[1].Revenue)
	assert.Equal(t, 1, report.Timeseries[1].Orders)
}

func TestAggregate_RestaurantScope(t *testing.T) {
	report := NewAggregator(nil).Aggregate(revenueFixture(), Scope{RestaurantIDs: []string{"R2"}}, nil, nil)

	assertDecimal(t, "70", report.Summary.TotalRevenue)
	assert.Equal(t, 1, report.Summary.TotalOrders)
	require.Len(t, report.Restaurants, 1)
	assert.Equal(t, "R2", report.Restaurants[0].RestaurantID)
	require.Len(t, report.Timeseries, 1)
	assertDecimal(t, "70", report.Timeseries[0].Revenue)
}

func TestAggregate_DateRange(t *testing.T) {
	from := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	report := NewAggregator(nil).Aggregate(revenueFixture(), Scope{Unrestricted: true}, &from, nil)

	assertDecimal(t, "40", report.Summary.TotalRevenue)
	assert.Equal(t, 1, report.Summary.TotalOrders)

	to := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	report = NewAggregator(nil).Aggregate(revenueFixture(), Scope{Unrestricted: true}, nil, &to)
	assertDecimal(t, "290", report.Summary.TotalRevenue)
}

func TestAggregate_DayBucketsInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	report := NewAggregator(loc).Aggregate(revenueFixture(), Scope{Unrestricted: true}, nil, nil)

	require.Len(t, report.Timeseries, 2)
	assert.Equal(t, "2024-03-01", report.Timeseries[0].Day)
	assert.Equal(t, "2024-03-03", report.Timeseries[1].Day, "23:30 UTC is the next day at UTC+3")
}

func TestAggregate_Empty(t *testing.T) {
	report := NewAggregator(nil).Aggregate(nil, Scope{Unrestricted: true}, nil, nil)
	assert.True(t, report.Summary.TotalRevenue.IsZero())
	assert.Equal(t, 0, report.Summary.TotalOrders)
	assert.True(t, report.Summary.AvgOrderValue.IsZero())
	assert.Empty(t, report.Restaurants)
	assert.Empty(t, report.Timeseries)
}

func TestAggregate_DailyCountsSumToTotal(t *testing.T) {
	orders := revenueFixture()
	for i := range 5 {
		o := Order{
			ID:          string(rune('K' + i)),
			Phase:       PhaseDelivered,
			Items:       []Item{item("R1", 10, 1), item("R3", 10, 1)},
			DeliveryFee: decimal.NewFromInt(4),
			CreatedAt:   time.Date(2024, 3, 1+i%3, 12, 0, 0, 0, time.UTC),
		}
		orders = append(orders, o)
	}
	report := NewAggregator(nil).Aggregate(orders, Scope{Unrestricted: true}, nil, nil)

	var days int
	revenue := decimal.Zero
	for _, d := range report.Timeseries {
		days += d.Orders
		revenue = revenue.Add(d.Revenue)
	}
	assert.Equal(t, report.Summary.TotalOrders, days)
	assert.True(t, report.Summary.TotalRevenue.Equal(revenue))

	perRestaurant := decimal.Zero
	for _, r := range report.Restaurants {
		perRestaurant = perRestaurant.Add(r.Revenue)
	}
	assert.True(t, report.Summary.TotalRevenue.Equal(perRestaurant))
}
