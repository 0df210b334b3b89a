package mongo

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

func TestListFilter(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	scope := []string{"R1"}
	in := bson.D{{Key: "$in", Value: scope}}

	tests := []struct {
		name   string
		filter order.Filter
		want   bson.D
	}{
		{
			name:   "unfiltered",
			filter: order.Filter{},
			want:   bson.D{},
		},
		{
			name:   "user",
			filter: order.Filter{UserID: "u1"},
			want: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "userId", Value: "u1"}},
			}}},
		},
		{
			name:   "scope, range and delivered",
			filter: order.Filter{RestaurantIDs: scope, From: &from, DeliveredOnly: true},
			want: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "$or", Value: bson.A{
					bson.D{{Key: "items.restaurantId", Value: in}},
					bson.D{{Key: "subOrders.restaurantId", Value: in}},
				}}},
				bson.D{{Key: "createdAt", Value: bson.D{{Key: "$gte", Value: from}}}},
				bson.D{{Key: "$or", Value: bson.A{
					bson.D{{Key: "deliveryPhase", Value: "delivered"}},
					bson.D{{Key: "status", Value: order.StatusDelivered}},
				}}},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, listFilter(tt.filter))
		})
	}
}

func TestVersionFilter(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "_id", Value: "a"}, {Key: "version", Value: int64(3)}}, versionFilter("a", 3))

	unversioned := versionFilter("a", 0)
	require.Len(t, unversioned, 2)
	assert.Equal(t, bson.D{{Key: "$in", Value: bson.A{int64(0), nil}}}, unversioned[1].Value)
}

func TestMoney_RoundTrip(t *testing.T) {
	type wrapper struct {
		V money `bson:"v"`
	}
	raw, err := bson.Marshal(wrapper{V: money{decimal.RequireFromString("120000.50")}})
	require.NoError(t, err)

	var stored bson.M
	require.NoError(t, bson.Unmarshal(raw, &stored))
	assert.IsType(t, primitive.Decimal128{}, stored["v"])

	var got wrapper
	require.NoError(t, bson.Unmarshal(raw, &got))
	assert.True(t, decimal.RequireFromString("120000.5").Equal(got.V.Decimal), got.V.String())
}

func TestDocument_LegacyRecord(t *testing.T) {
	created := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	raw, err := bson.Marshal(bson.M{
		"_id":    "legacy-1",
		"userId": "u1",
		"items": bson.A{
			bson.M{"foodId": "f1", "restaurantId": "R1", "name": "Pho", "price": 49.5, "quantity": int32(2)},
		},
		"status":      "Delivered",
		"payment":     true,
		"deliveryFee": "20",
		"amount":      int32(119),
		"subOrders": bson.A{
			bson.M{"restaurantId": "R1", "status": "Out For Delivery", "deliveryFee": int64(20)},
		},
		"createdAt": created,
	})
	require.NoError(t, err)

	var doc orderDocument
	require.NoError(t, bson.Unmarshal(raw, &doc))
	o := fromDocument(doc)

	assert.Equal(t, order.PhaseDelivered, o.Phase)
	assert.Equal(t, order.PhaseDelivering, o.SubOrders[0].Phase)
	assert.True(t, decimal.NewFromInt(119).Equal(o.Total), "amount backfills total")
	assert.True(t, decimal.RequireFromString("49.5").Equal(o.Items[0].Price))
	assert.True(t, decimal.NewFromInt(20).Equal(o.DeliveryFee))
	assert.Equal(t, int64(0), o.Version)
	assert.True(t, created.Equal(o.CreatedAt))
}

func TestDocument_WritesBothRepresentations(t *testing.T) {
	o := &order.Order{
		ID:        "a",
		Phase:     order.PhaseDelivering,
		Total:     decimal.NewFromInt(10),
		Timeline:  []order.TimelineEntry{{Status: order.StatusFoodProcessing}},
		SubOrders: []order.SubOrder{{RestaurantID: "R1", Phase: order.PhaseDelivered}},
	}
	doc := toDocument(o)

	assert.Equal(t, "delivering", doc.DeliveryPhase)
	assert.Equal(t, order.StatusOutForDelivery, doc.Status)
	assert.True(t, doc.Amount.Equal(doc.Total.Decimal))
	assert.Equal(t, order.StatusDelivered, doc.SubOrders[0].Status)
	require.Len(t, doc.StatusTimeline, 1)

	back := fromDocument(doc)
	assert.Equal(t, o.Phase, back.Phase)
	assert.Equal(t, o.SubOrders[0].Phase, back.SubOrders[0].Phase)
}
