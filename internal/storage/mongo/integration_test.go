//go:build integration

package mongo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/internal/domain/catalog"
	"github.com/xenking/delivery-orders/internal/domain/order"
)

func startMongo(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate mongo: %v", err)
		}
	})

	endpoint, err := ctr.PortEndpoint(ctx, "27017/tcp", "mongodb")
	require.NoError(t, err)

	client, err := Connect(ctx, endpoint, 30*time.Second, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("orders")
	require.NoError(t, EnsureIndexes(ctx, db))
	return db
}

func TestOrderRepository_Integration(t *testing.T) {
	db := startMongo(t)
	repo := NewOrderRepository(db)
	store := order.NewStore(repo)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	place := func(user string, created time.Time, phase order.Phase, restaurants ...string) *order.Order {
		o := &order.Order{UserID: user, Phase: phase, Total: decimal.NewFromInt(100), CreatedAt: created}
		for _, r := range restaurants {
			o.Items = append(o.Items, order.Item{FoodID: "f-" + r, RestaurantID: r, Price: decimal.NewFromInt(50), Quantity: 1})
		}
		out, err := store.Create(ctx, o)
		require.NoError(t, err)
		return out
	}

	a := place("u1", base, order.PhaseDelivered, "R1", "R2")
	b := place("u1", base.Add(time.Hour), order.PhaseAtRestaurant, "R2")
	place("u2", base.Add(2*time.Hour), order.PhaseAtRestaurant, "R3")

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(got.Total))
	assert.Equal(t, order.PhaseDelivered, got.Phase)

	list, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	list, err = store.ListScoped(ctx, order.Filter{RestaurantIDs: []string{"R2"}, DeliveredOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	list, err = store.ListScoped(ctx, order.Filter{RestaurantIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, list)

	stale := got.Clone()
	stale.Version = 2
	require.NoError(t, repo.Replace(ctx, stale, 1))
	require.ErrorIs(t, repo.Replace(ctx, stale, 1), order.ErrConflict)
	require.ErrorIs(t, repo.Delete(ctx, "ghost", 1), order.ErrNotFound)

	_, err = db.Collection(ordersCollection).InsertOne(ctx, bson.M{
		"_id":       "legacy",
		"userId":    "u7",
		"items":     bson.A{bson.M{"foodId": "f", "restaurantId": "R1", "price": 10.0, "quantity": 1}},
		"status":    "Out For Delivery",
		"amount":    30.0,
		"createdAt": base,
	})
	require.NoError(t, err)

	updated, err := store.UpdateOnePhase(ctx, "legacy", func(o *order.Order) (bool, error) {
		o.Phase = order.PhaseDelivered
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)

	legacy, err := store.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, order.PhaseDelivered, legacy.Phase)
	assert.True(t, decimal.NewFromInt(30).Equal(legacy.Total))
}

func TestRestaurantRepository_Integration(t *testing.T) {
	db := startMongo(t)
	repo := NewRestaurantRepository(db)
	ctx := context.Background()

	for i, modes := range [][]string{{"driver", "drone"}, {"driver"}} {
		require.NoError(t, repo.Upsert(ctx, catalog.Restaurant{ID: fmt.Sprintf("R%d", i+1), DeliveryModes: modes}))
	}
	got, err := repo.GetByIDs(ctx, []string{"R2", "R1", "R404"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "R1", got[0].ID)
	assert.True(t, got[0].Supports("drone"))
	assert.False(t, got[1].Supports("drone"))
}
