// Package mongo implements order and restaurant storage on MongoDB. Each
// order is one document; writes are compare-and-swap on its version field.
package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	ordersCollection      = "orders"
	restaurantsCollection = "restaurants"
)

// Connect opens a client for uri and checks the primary answers within
// timeout. Embedded documents decode as maps rather than ordered slices.
func Connect(ctx context.Context, uri string, timeout time.Duration, lg *zap.Logger) (*mongo.Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, errors.Wrap(err, "ping mongo")
	}

	lg.Info("Connected to MongoDB", zap.Strings("hosts", opts.Hosts))
	return client, nil
}

// EnsureIndexes creates the indexes used by order listing and scoping.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(ordersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "items.restaurantId", Value: 1}}},
		{Keys: bson.D{{Key: "subOrders.restaurantId", Value: 1}}},
	})
	if err != nil {
		return errors.Wrap(err, "create order indexes")
	}
	_, err = db.Collection(restaurantsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ownerId", Value: 1}},
	})
	if err != nil {
		return errors.Wrap(err, "create restaurant indexes")
	}
	return nil
}
