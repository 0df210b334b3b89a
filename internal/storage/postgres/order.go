package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, restaurant_ids, delivery_phase, status, payment, total, document, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	selectOrderColumns = `SELECT id, document, created_at, updated_at, version FROM orders`

	getOrderSQL = selectOrderColumns + ` WHERE id = $1`

	replaceOrderSQL = `UPDATE orders SET
		user_id = $2, restaurant_ids = $3, delivery_phase = $4, status = $5,
		payment = $6, total = $7, document = $8, updated_at = $9, version = $10
		WHERE id = $1 AND version = $11`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1 AND version = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	deliveredPredicate = `(delivery_phase = 'delivered' OR status = 'Delivered')`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Each
// order is one row: the aggregate is stored as a JSONB document next to the
// columns used for filtering, and writes are guarded by the version column.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order row.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	doc, err := json.Marshal(toDocument(o))
	if err != nil {
		return errors.Wrap(err, "marshal order document")
	}
	_, err = r.pool.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, restaurantIDs(o), string(o.Phase), o.Status(), o.Paid, o.Total,
		doc, o.CreatedAt, o.UpdatedAt, o.Version,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

// Get returns the order or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return o, nil
}

// List returns the orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	query, args := listQuery(f)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	found, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	out := make([]order.Order, len(found))
	for i, o := range found {
		out[i] = *o
	}
	return out, nil
}

// Replace overwrites the row if its version still equals expected.
func (r *OrderRepository) Replace(ctx context.Context, o *order.Order, expected int64) error {
	doc, err := json.Marshal(toDocument(o))
	if err != nil {
		return errors.Wrap(err, "marshal order document")
	}
	tag, err := r.pool.Exec(ctx, replaceOrderSQL,
		o.ID, o.UserID, restaurantIDs(o), string(o.Phase), o.Status(), o.Paid, o.Total,
		doc, o.UpdatedAt, o.Version, expected,
	)
	if err != nil {
		return errors.Wrapf(err, "replace order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, o.ID)
	}
	return nil
}

// Delete removes the row if its version still equals expected.
func (r *OrderRepository) Delete(ctx context.Context, id string, expected int64) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id, expected)
	if err != nil {
		return errors.Wrapf(err, "delete order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// Ping checks database connectivity.
func (r *OrderRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// missOrConflict tells a vanished row from a stale version after a guarded
// write matched nothing.
func (r *OrderRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check order %q", id)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

// listQuery renders f as a parameterized SELECT.
func listQuery(f order.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.UserID != "" {
		where = append(where, "user_id = "+arg(f.UserID))
	}
	if f.RestaurantIDs != nil {
		where = append(where, "restaurant_ids && "+arg(f.RestaurantIDs)+"::text[]")
	}
	if f.From != nil {
		where = append(where, "created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "created_at <= "+arg(*f.To))
	}
	if f.DeliveredOnly {
		where = append(where, deliveredPredicate)
	}

	var b strings.Builder
	b.WriteString(selectOrderColumns)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")
	return b.String(), args
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		id        string
		raw       []byte
		createdAt time.Time
		updatedAt time.Time
		version   int64
	)
	if err := row.Scan(&id, &raw, &createdAt, &updatedAt, &version); err != nil {
		return nil, err
	}
	var doc orderDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode order %q", id)
	}
	return fromDocument(id, doc, createdAt.UTC(), updatedAt.UTC(), version), nil
}

func restaurantIDs(o *order.Order) []string {
	ids := o.RestaurantIDs()
	if ids == nil {
		return []string{}
	}
	return ids
}
