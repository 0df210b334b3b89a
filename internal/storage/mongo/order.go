package mongo

import (
	"context"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by a MongoDB
// collection.
type OrderRepository struct {
	coll *mongo.Collection
}

// NewOrderRepository returns an OrderRepository on the orders collection of db.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(ordersCollection)}
}

// Create inserts a new order document.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if _, err := r.coll.InsertOne(ctx, toDocument(o)); err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

// Get returns the order or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var doc orderDocument
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return fromDocument(doc), nil
}

// List returns the orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, listFilter(f), opts)
	if err != nil {
		return nil, errors.Wrap(err, "find orders")
	}
	var docs []orderDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	out := make([]order.Order, len(docs))
	for i, doc := range docs {
		out[i] = *fromDocument(doc)
	}
	return out, nil
}

// Replace overwrites the document if its version still equals expected.
func (r *OrderRepository) Replace(ctx context.Context, o *order.Order, expected int64) error {
	res, err := r.coll.ReplaceOne(ctx, versionFilter(o.ID, expected), toDocument(o))
	if err != nil {
		return errors.Wrapf(err, "replace order %q", o.ID)
	}
	if res.MatchedCount == 0 {
		return r.missOrConflict(ctx, o.ID)
	}
	return nil
}

// Delete removes the document if its version still equals expected.
func (r *OrderRepository) Delete(ctx context.Context, id string, expected int64) error {
	res, err := r.coll.DeleteOne(ctx, versionFilter(id, expected))
	if err != nil {
		return errors.Wrapf(err, "delete order %q", id)
	}
	if res.DeletedCount == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// Ping checks the primary answers.
func (r *OrderRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func (r *OrderRepository) missOrConflict(ctx context.Context, id string) error {
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return errors.Wrapf(err, "check order %q", id)
	}
	if n == 0 {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

// versionFilter matches the document only at the expected version. Documents
// written before versioning carry no version field and count as version 0.
func versionFilter(id string, expected int64) bson.D {
	if expected == 0 {
		return bson.D{
			{Key: "_id", Value: id},
			{Key: "version", Value: bson.D{{Key: "$in", Value: bson.A{int64(0), nil}}}},
		}
	}
	return bson.D{{Key: "_id", Value: id}, {Key: "version", Value: expected}}
}

// listFilter renders f as a query document. Restaurant scope matches either
// an item or a sub-order so that documents without sub-orders are found.
func listFilter(f order.Filter) bson.D {
	var and bson.A
	if f.UserID != "" {
		and = append(and, bson.D{{Key: "userId", Value: f.UserID}})
	}
	if f.RestaurantIDs != nil {
		in := bson.D{{Key: "$in", Value: f.RestaurantIDs}}
		and = append(and, bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "items.restaurantId", Value: in}},
			bson.D{{Key: "subOrders.restaurantId", Value: in}},
		}}})
	}
	var created bson.D
	if f.From != nil {
		created = append(created, bson.E{Key: "$gte", Value: *f.From})
	}
	if f.To != nil {
		created = append(created, bson.E{Key: "$lte", Value: *f.To})
	}
	if created != nil {
		and = append(and, bson.D{{Key: "createdAt", Value: created}})
	}
	if f.DeliveredOnly {
		and = append(and, bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "deliveryPhase", Value: string(order.PhaseDelivered)}},
			bson.D{{Key: "status", Value: order.StatusDelivered}},
		}}})
	}
	if len(and) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: "$and", Value: and}}
}
