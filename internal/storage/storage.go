// Package storage opens the configured order and restaurant backend.
package storage

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/internal/domain/catalog"
	"github.com/xenking/delivery-orders/internal/domain/order"
	"github.com/xenking/delivery-orders/internal/storage/memory"
	"github.com/xenking/delivery-orders/internal/storage/mongo"
	"github.com/xenking/delivery-orders/internal/storage/postgres"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config selects and configures the backend.
type Config struct {
	Driver         string        `default:"postgres" usage:"Storage driver: postgres, mongo or memory"`
	DatabaseURL    string        `usage:"PostgreSQL connection URL" flag:"database-url"`
	MaxConns       int32         `default:"0" usage:"PostgreSQL pool size, 0 keeps the driver default"`
	MongoURI       string        `usage:"MongoDB connection URI" flag:"mongo-uri"`
	MongoDatabase  string        `default:"orders" usage:"MongoDB database name"`
	ConnectTimeout time.Duration `default:"10s" usage:"Backend connect timeout"`
}

// RestaurantStore reads and writes restaurants.
type RestaurantStore interface {
	catalog.Repository
	catalog.Writer
}

// Backend is an opened storage driver.
type Backend struct {
	Driver      string
	Orders      order.Repository
	Restaurants RestaurantStore

	close func(ctx context.Context) error
}

// Ping checks the backend connection.
func (b *Backend) Ping(ctx context.Context) error {
	return b.Orders.Ping(ctx)
}

// Close releases the backend connections.
func (b *Backend) Close(ctx context.Context) error {
	if b.close == nil {
		return nil
	}
	return b.close(ctx)
}

// Open connects to the configured driver. PostgreSQL schemas are migrated
// and MongoDB indexes are created before Open returns.
func Open(ctx context.Context, cfg Config, lg *zap.Logger) (*Backend, error) {
	switch cfg.Driver {
	case DriverPostgres, "":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("postgres driver needs a database URL")
		}
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			URL:            cfg.DatabaseURL,
			MaxConns:       cfg.MaxConns,
			ConnectTimeout: cfg.ConnectTimeout,
		}, lg)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &Backend{
			Driver:      DriverPostgres,
			Orders:      postgres.NewOrderRepository(pool),
			Restaurants: postgres.NewRestaurantRepository(pool),
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil

	case DriverMongo:
		if cfg.MongoURI == "" {
			return nil, errors.New("mongo driver needs a URI")
		}
		client, err := mongo.Connect(ctx, cfg.MongoURI, cfg.ConnectTimeout, lg)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDatabase)
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &Backend{
			Driver:      DriverMongo,
			Orders:      mongo.NewOrderRepository(db),
			Restaurants: mongo.NewRestaurantRepository(db),
			close:       client.Disconnect,
		}, nil

	case DriverMemory:
		lg.Warn("Using in-memory storage, orders are lost on restart")
		return &Backend{
			Driver:      DriverMemory,
			Orders:      memory.NewOrderRepository(),
			Restaurants: memory.NewRestaurantRepository(),
		}, nil

	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
