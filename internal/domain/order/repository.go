package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Filter selects orders for listing and aggregation.
type Filter struct {
	UserID string
	// RestaurantIDs restricts results to orders whose items or sub-orders
	// reference one of the ids. Nil means unrestricted.
	RestaurantIDs []string
	// From and To bound CreatedAt, both inclusive.
	From *time.Time
	To   *time.Time
	// DeliveredOnly keeps orders whose phase or legacy status says delivered.
	DeliveredOnly bool
}

// Match reports whether o satisfies the filter. Backends that cannot push
// a predicate down use it as the reference semantics.
func (f Filter) Match(o *Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.RestaurantIDs != nil && !o.Touches(f.RestaurantIDs) {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && o.CreatedAt.After(*f.To) {
		return false
	}
	if f.DeliveredOnly && !o.Delivered() {
		return false
	}
	return true
}

// Repository is the persistence backend for orders. Implementations return
// ErrNotFound for unknown ids and ErrConflict when the stored version differs
// from the expected one.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// List returns matching orders, newest first.
	List(ctx context.Context, f Filter) ([]Order, error)
	// Replace overwrites the stored order if its version equals expected.
	Replace(ctx context.Context, o *Order, expected int64) error
	// Delete removes the order if its version equals expected.
	Delete(ctx context.Context, id string, expected int64) error
	Ping(ctx context.Context) error
}

// MutateFunc edits an order in place. Returning false leaves the stored
// record untouched.
type MutateFunc func(o *Order) (changed bool, err error)

// Store is the order persistence boundary used by the service. Every write
// is a whole-aggregate compare-and-swap on the version counter, retried a
// bounded number of times when another writer got there first.
type Store struct {
	repo     Repository
	attempts int
	now      func() time.Time
}

// NewStore wraps repo.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo, attempts: 8, now: time.Now}
}

// Create assigns an id when missing, persists the order and returns it.
func (s *Store) Create(ctx context.Context, o *Order) (*Order, error) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC()
	}
	o.UpdatedAt = o.CreatedAt
	o.Version = 1
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "create order %s", o.ID)
	}
	return o, nil
}

// Get returns the order or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// ListByUser returns the user's orders newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.repo.List(ctx, Filter{UserID: userID})
}

// ListScoped returns orders matching an already scoped filter.
func (s *Store) ListScoped(ctx context.Context, f Filter) ([]Order, error) {
	return s.repo.List(ctx, f)
}

// UpdateOnePhase applies fn to the whole order atomically.
func (s *Store) UpdateOnePhase(ctx context.Context, id string, fn MutateFunc) (*Order, error) {
	return s.mutate(ctx, id, fn)
}

// UpdateSubOrderStatus applies fn to the sub-order of restaurantID and lets
// it adjust the parent in the same atomic write. ErrNotFound is returned when
// the order has no such sub-order.
func (s *Store) UpdateSubOrderStatus(ctx context.Context, id, restaurantID string, fn func(o *Order, so *SubOrder) (bool, error)) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order) (bool, error) {
		so, ok := o.SubOrder(restaurantID)
		if !ok {
			return false, errors.Wrapf(ErrNotFound, "sub-order for restaurant %s", restaurantID)
		}
		return fn(o, so)
	})
}

// DeleteIf removes the order when keep returns false for its current state.
// It reports whether the order was removed.
func (s *Store) DeleteIf(ctx context.Context, id string, keep func(o *Order) bool) (bool, error) {
	for range s.attempts {
		cur, err := s.repo.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if keep(cur) {
			return false, nil
		}
		err = s.repo.Delete(ctx, id, cur.Version)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return false, errors.Wrapf(err, "delete order %s", id)
		}
		return true, nil
	}
	return false, ErrConflict
}

// DeleteUnpaid removes an order that was never paid. Paid orders and
// cash-on-delivery orders are kept. It reports whether the order was removed.
func (s *Store) DeleteUnpaid(ctx context.Context, id string) (bool, error) {
	return s.DeleteIf(ctx, id, func(o *Order) bool {
		return o.Paid || o.PaymentMethod == PaymentCOD
	})
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Store) mutate(ctx context.Context, id string, fn MutateFunc) (*Order, error) {
	for range s.attempts {
		cur, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		next := cur.Clone()
		changed, err := fn(next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return cur, nil
		}
		next.Version = cur.Version + 1
		next.UpdatedAt = s.now().UTC()

		err = s.repo.Replace(ctx, next, cur.Version)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "update order %s", id)
		}
		return next, nil
	}
	return nil, ErrConflict
}
