package order

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/delivery-orders/internal/domain/catalog"
)

// --- Mock implementations ---

type mockRepo struct {
	mu     sync.Mutex
	orders map[string]*Order

	createErr error
	// conflicts makes the next n Replace calls fail with ErrConflict.
	conflicts int
	replaces  int
}

func newMockRepo() *mockRepo {
	return &mockRepo{orders: make(map[string]*Order)}
}

func (m *mockRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *mockRepo) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *mockRepo) List(_ context.Context, f Filter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if f.Match(o) {
			out = append(out, *o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (m *mockRepo) Replace(_ context.Context, o *Order, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces++
	cur, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if m.conflicts > 0 {
		m.conflicts--
		return ErrConflict
	}
	if cur.Version != expected {
		return ErrConflict
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id string, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expected {
		return ErrConflict
	}
	delete(m.orders, id)
	return nil
}

func (m *mockRepo) Ping(context.Context) error { return nil }

type mockCatalog struct {
	restaurants []catalog.Restaurant
	err         error
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Restaurant, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []catalog.Restaurant
	for _, r := range m.restaurants {
		if slices.Contains(ids, r.ID) {
			out = append(out, r)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) types() []EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventType, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Helpers ---

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	repo     *mockRepo
	clock    *testClock
	notifier *recordingNotifier
	svc      *Service
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     newMockRepo(),
		clock:    &testClock{now: testNow},
		notifier: &recordingNotifier{},
	}
	base := []Option{WithClock(env.clock.Now), WithNotifier(env.notifier)}
	svc, err := NewService(
		NewStore(env.repo),
		NewCalculator(DefaultFeeSchedule(), nil),
		append(base, opts...)...,
	)
	require.NoError(t, err)
	env.svc = svc
	return env
}

func (e *testEnv) place(t *testing.T, method PaymentMethod, items ...CartItem) *Order {
	t.Helper()
	o, err := e.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "u1",
		Items:         items,
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return o
}

func (e *testEnv) stored(t *testing.T, id string) *Order {
	t.Helper()
	o, err := e.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

func cartItem(food, restaurant, price string, qty int) CartItem {
	return CartItem{
		FoodID:       food,
		RestaurantID: restaurant,
		Name:         food,
		Price:        RawNumber(price),
		Quantity:     Num(decimal.NewFromInt(int64(qty))),
	}
}

func item(restaurant string, price int64, qty int) Item {
	return Item{
		FoodID:       "food-" + restaurant,
		RestaurantID: restaurant,
		Price:        decimal.NewFromInt(price),
		Quantity:     qty,
	}
}

func phasePtr(p Phase) *Phase { return &p }

func strPtr(s string) *string { return &s }

func rawPtr(s string) *RawNumber {
	n := RawNumber(s)
	return &n
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func restaurantIDs(subs []SubOrder) []string {
	ids := make([]string, len(subs))
	for i, so := range subs {
		ids[i] = so.RestaurantID
	}
	return ids
}

func timelineStatuses(o *Order) []string {
	out := make([]string, len(o.Timeline))
	for i, e := range o.Timeline {
		out[i] = e.Status
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, cmp.Compare[string])
	return keys
}
