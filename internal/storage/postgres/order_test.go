package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

func TestListQuery(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	tests := []struct {
		name      string
		filter    order.Filter
		wantWhere string
		wantArgs  int
	}{
		{
			name:     "unfiltered",
			filter:   order.Filter{},
			wantArgs: 0,
		},
		{
			name:      "user",
			filter:    order.Filter{UserID: "u1"},
			wantWhere: " WHERE user_id = $1",
			wantArgs:  1,
		},
		{
			name: "scoped revenue",
			filter: order.Filter{
				RestaurantIDs: []string{"R1", "R2"},
				From:          &from,
				To:            &to,
				DeliveredOnly: true,
			},
			wantWhere: " WHERE restaurant_ids && $1::text[] AND created_at >= $2 AND created_at <= $3 AND " + deliveredPredicate,
			wantArgs:  3,
		},
		{
			name:      "empty scope still filters",
			filter:    order.Filter{RestaurantIDs: []string{}},
			wantWhere: " WHERE restaurant_ids && $1::text[]",
			wantArgs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := listQuery(tt.filter)
			assert.Equal(t, selectOrderColumns+tt.wantWhere+" ORDER BY created_at DESC, id", query)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestDocument_LegacyRecord(t *testing.T) {
	raw := []byte(`{
		"userId": "u1",
		"items": [{"foodId": "f1", "restaurantId": "R1", "name": "Pho", "price": "50000", "quantity": 2}],
		"status": "Delivered",
		"payment": true,
		"deliveryFee": "20000",
		"amount": "120000",
		"subTotal": "100000",
		"statusTimeline": [{"status": "Food Processing", "at": "2023-05-01T10:00:00Z"}],
		"subOrders": [{"restaurantId": "R1", "items": [], "status": "Out For Delivery", "deliveryFee": "20000"}]
	}`)

	var doc orderDocument
	require.NoError(t, json.Unmarshal(raw, &doc))
	created := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	o := fromDocument("legacy-1", doc, created, created, 3)

	assert.Equal(t, order.PhaseDelivered, o.Phase)
	assert.Equal(t, order.PhaseDelivering, o.SubOrders[0].Phase)
	assert.True(t, decimal.NewFromInt(120000).Equal(o.Total), "amount backfills total")
	assert.True(t, o.Paid)
	assert.Equal(t, int64(3), o.Version)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
}

func TestDocument_WritesBothRepresentations(t *testing.T) {
	o := &order.Order{
		Phase:     order.PhaseDelivering,
		Total:     decimal.NewFromInt(10),
		SubOrders: []order.SubOrder{{RestaurantID: "R1", Phase: order.PhaseDelivered}},
	}
	doc := toDocument(o)

	assert.Equal(t, "delivering", doc.DeliveryPhase)
	assert.Equal(t, order.StatusOutForDelivery, doc.Status)
	assert.True(t, doc.Amount.Equal(doc.Total))
	assert.Equal(t, order.StatusDelivered, doc.SubOrders[0].Status)
	assert.Equal(t, "delivered", doc.SubOrders[0].DeliveryPhase)
}
