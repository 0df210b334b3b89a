package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/delivery-orders/internal/domain/catalog"
	"github.com/xenking/delivery-orders/internal/domain/order"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newOrder(id, user string, created time.Time, phase order.Phase, restaurants ...string) *order.Order {
	o := &order.Order{
		ID:        id,
		UserID:    user,
		Phase:     phase,
		Total:     decimal.NewFromInt(100),
		CreatedAt: created,
		Version:   1,
	}
	for _, r := range restaurants {
		o.Items = append(o.Items, order.Item{FoodID: "f-" + r, RestaurantID: r, Price: decimal.NewFromInt(10), Quantity: 1})
	}
	return o
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()

	o := newOrder("a", "u1", base, order.PhaseAtRestaurant, "R1")
	require.NoError(t, repo.Create(ctx, o))
	require.Error(t, repo.Create(ctx, o), "duplicate id")

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	got.Items[0].Quantity = 99
	again, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity, "returned copies are detached")

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
	assert.Equal(t, 1, repo.Len())
}

func TestOrderRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	require.NoError(t, repo.Create(ctx, newOrder("a", "u1", base, order.PhaseDelivered, "R1", "R2")))
	require.NoError(t, repo.Create(ctx, newOrder("b", "u1", base.Add(time.Hour), order.PhaseAtRestaurant, "R2")))
	require.NoError(t, repo.Create(ctx, newOrder("c", "u2", base.Add(2*time.Hour), order.PhaseDelivering, "R3")))

	to := base
	tests := []struct {
		name   string
		filter order.Filter
		want   []string
	}{
		{name: "all newest first", filter: order.Filter{}, want: []string{"c", "b", "a"}},
		{name: "user", filter: order.Filter{UserID: "u1"}, want: []string{"b", "a"}},
		{name: "restaurant", filter: order.Filter{RestaurantIDs: []string{"R2"}}, want: []string{"b", "a"}},
		{name: "empty scope", filter: order.Filter{RestaurantIDs: []string{}}, want: []string{}},
		{name: "delivered", filter: order.Filter{DeliveredOnly: true}, want: []string{"a"}},
		{name: "inclusive upper bound", filter: order.Filter{To: &to}, want: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, o := range got {
				ids = append(ids, o.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestOrderRepository_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	require.NoError(t, repo.Create(ctx, newOrder("a", "u1", base, order.PhaseAtRestaurant, "R1")))

	next := newOrder("a", "u1", base, order.PhaseDelivering, "R1")
	next.Version = 2
	require.NoError(t, repo.Replace(ctx, next, 1))
	require.ErrorIs(t, repo.Replace(ctx, next, 1), order.ErrConflict)
	require.ErrorIs(t, repo.Replace(ctx, newOrder("x", "u1", base, order.PhaseDelivering), 1), order.ErrNotFound)

	require.ErrorIs(t, repo.Delete(ctx, "a", 1), order.ErrConflict)
	require.NoError(t, repo.Delete(ctx, "a", 2))
	require.ErrorIs(t, repo.Delete(ctx, "a", 2), order.ErrNotFound)
}

func TestOrderRepository_ConcurrentStoreUpdates(t *testing.T) {
	ctx := context.Background()
	store := order.NewStore(NewOrderRepository())
	created, err := store.Create(ctx, newOrder("", "u1", base, order.PhaseAtRestaurant, "R1"))
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.UpdateOnePhase(ctx, created.ID, func(o *order.Order) (bool, error) {
				o.Timeline = append(o.Timeline, order.TimelineEntry{Status: fmt.Sprintf("w%d", i), At: base})
				return true, nil
			})
		}()
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		require.ErrorIs(t, err, order.ErrConflict)
	}
	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, got.Timeline, committed, "no committed entry is lost")
	assert.Equal(t, int64(1+committed), got.Version)
}

func TestRestaurantRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRestaurantRepository(
		catalog.Restaurant{ID: "R2", DeliveryModes: []string{"driver"}},
		catalog.Restaurant{ID: "R1", DeliveryModes: []string{"driver", "drone"}},
	)

	got, err := repo.GetByIDs(ctx, []string{"R2", "R1", "R1", "R404"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "R1", got[0].ID)
	assert.True(t, got[0].Supports("drone"))

	require.NoError(t, repo.Upsert(ctx, catalog.Restaurant{ID: "R2", DeliveryModes: []string{"driver", "drone"}}))
	got, err = repo.GetByIDs(ctx, []string{"R2"})
	require.NoError(t, err)
	assert.True(t, got[0].Supports("drone"))
}
