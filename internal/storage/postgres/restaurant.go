package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/delivery-orders/internal/domain/catalog"
)

const (
	getRestaurantsByIDsSQL = `SELECT id, name, owner_id, delivery_modes
		FROM restaurants WHERE id = ANY($1) ORDER BY id`

	upsertRestaurantSQL = `INSERT INTO restaurants (id, name, owner_id, delivery_modes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner_id = EXCLUDED.owner_id,
			delivery_modes = EXCLUDED.delivery_modes`
)

var _ catalog.Repository = (*RestaurantRepository)(nil)

// RestaurantRepository reads restaurant delivery capabilities.
type RestaurantRepository struct {
	pool *pgxpool.Pool
}

// NewRestaurantRepository returns a RestaurantRepository that uses the given pool.
func NewRestaurantRepository(pool *pgxpool.Pool) *RestaurantRepository {
	return &RestaurantRepository{pool: pool}
}

// GetByIDs returns the restaurants matching any of ids. Unknown ids are
// skipped.
func (r *RestaurantRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Restaurant, error) {
	rows, err := r.pool.Query(ctx, getRestaurantsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurants by ids")
	}
	return pgx.CollectRows(rows, scanRestaurant)
}

// Upsert inserts or updates a restaurant.
func (r *RestaurantRepository) Upsert(ctx context.Context, rest catalog.Restaurant) error {
	modes := rest.DeliveryModes
	if modes == nil {
		modes = []string{}
	}
	if _, err := r.pool.Exec(ctx, upsertRestaurantSQL, rest.ID, rest.Name, rest.OwnerID, modes); err != nil {
		return errors.Wrapf(err, "upsert restaurant %q", rest.ID)
	}
	return nil
}

func scanRestaurant(row pgx.CollectableRow) (catalog.Restaurant, error) {
	var rest catalog.Restaurant
	err := row.Scan(&rest.ID, &rest.Name, &rest.OwnerID, &rest.DeliveryModes)
	return rest, err
}
