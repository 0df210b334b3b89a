// Package memory implements order and restaurant storage in process memory.
// It is used by tests and by the api-server when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository keeps orders in a map guarded by a mutex. Stored values are
// cloned on the way in and out, so callers never share state with the map.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*order.Order)}
}

// Create stores a new order.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.ID]; ok {
		return errors.Errorf("order %q already exists", o.ID)
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

// Get returns a copy of the order or order.ErrNotFound.
func (r *OrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

// List returns copies of the orders matching f, newest first.
func (r *OrderRepository) List(_ context.Context, f order.Filter) ([]order.Order, error) {
	r.mu.RLock()
	out := make([]order.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if f.Match(o) {
			out = append(out, *o.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Replace swaps in o if the stored version equals expected.
func (r *OrderRepository) Replace(_ context.Context, o *order.Order, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if cur.Version != expected {
		return order.ErrConflict
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

// Delete removes the order if the stored version equals expected.
func (r *OrderRepository) Delete(_ context.Context, id string, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if cur.Version != expected {
		return order.ErrConflict
	}
	delete(r.orders, id)
	return nil
}

// Ping always succeeds.
func (r *OrderRepository) Ping(context.Context) error { return nil }

// Len returns the number of stored orders.
func (r *OrderRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
