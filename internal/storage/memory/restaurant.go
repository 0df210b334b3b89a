package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/xenking/delivery-orders/internal/domain/catalog"
)

var (
	_ catalog.Repository = (*RestaurantRepository)(nil)
	_ catalog.Writer     = (*RestaurantRepository)(nil)
)

// RestaurantRepository is an in-memory restaurant catalog.
type RestaurantRepository struct {
	mu          sync.RWMutex
	restaurants map[string]catalog.Restaurant
}

// NewRestaurantRepository returns a catalog holding rs.
func NewRestaurantRepository(rs ...catalog.Restaurant) *RestaurantRepository {
	r := &RestaurantRepository{restaurants: make(map[string]catalog.Restaurant, len(rs))}
	for _, rest := range rs {
		r.restaurants[rest.ID] = rest
	}
	return r
}

// GetByIDs returns the known restaurants among ids, ordered by id.
func (r *RestaurantRepository) GetByIDs(_ context.Context, ids []string) ([]catalog.Restaurant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []catalog.Restaurant
	for _, id := range ids {
		rest, ok := r.restaurants[id]
		if !ok || slices.ContainsFunc(out, func(x catalog.Restaurant) bool { return x.ID == id }) {
			continue
		}
		rest.DeliveryModes = slices.Clone(rest.DeliveryModes)
		out = append(out, rest)
	}
	slices.SortFunc(out, func(a, b catalog.Restaurant) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Upsert stores rest, replacing any restaurant with the same id.
func (r *RestaurantRepository) Upsert(_ context.Context, rest catalog.Restaurant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rest.DeliveryModes = slices.Clone(rest.DeliveryModes)
	r.restaurants[rest.ID] = rest
	return nil
}
