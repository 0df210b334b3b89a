package mongo

import (
	"context"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/delivery-orders/internal/domain/catalog"
)

var (
	_ catalog.Repository = (*RestaurantRepository)(nil)
	_ catalog.Writer     = (*RestaurantRepository)(nil)
)

type restaurantDocument struct {
	ID            string   `bson:"_id"`
	Name          string   `bson:"name"`
	OwnerID       string   `bson:"ownerId"`
	DeliveryModes []string `bson:"deliveryModes"`
}

// RestaurantRepository reads restaurant delivery capabilities from MongoDB.
type RestaurantRepository struct {
	coll *mongo.Collection
}

// NewRestaurantRepository returns a RestaurantRepository on the restaurants
// collection of db.
func NewRestaurantRepository(db *mongo.Database) *RestaurantRepository {
	return &RestaurantRepository{coll: db.Collection(restaurantsCollection)}
}

// GetByIDs returns the restaurants matching any of ids, ordered by id.
func (r *RestaurantRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Restaurant, error) {
	if ids == nil {
		ids = []string{}
	}
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "find restaurants")
	}
	var docs []restaurantDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode restaurants")
	}
	out := make([]catalog.Restaurant, len(docs))
	for i, d := range docs {
		out[i] = catalog.Restaurant(d)
	}
	return out, nil
}

// Upsert inserts or replaces a restaurant.
func (r *RestaurantRepository) Upsert(ctx context.Context, rest catalog.Restaurant) error {
	doc := restaurantDocument(rest)
	if doc.DeliveryModes == nil {
		doc.DeliveryModes = []string{}
	}
	_, err := r.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: rest.ID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert restaurant %q", rest.ID)
	}
	return nil
}
