package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/internal/domain/auth"
	"github.com/xenking/delivery-orders/internal/domain/order"
	"github.com/xenking/delivery-orders/internal/storage"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "orderctl",
	Short: "Operator tooling for the delivery order service",
	Long: `orderctl talks to the order store directly. It seeds demo data,
prints revenue reports, exports delivered orders and mints development
bearer tokens.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./orderctl.yaml)")

	rootCmd.PersistentFlags().String("driver", storage.DriverPostgres, "Storage driver: postgres, mongo or memory")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")
	rootCmd.PersistentFlags().String("mongo-uri", "", "MongoDB connection URI")
	rootCmd.PersistentFlags().String("mongo-database", "orders", "MongoDB database name")
	rootCmd.PersistentFlags().String("timezone", "UTC", "IANA zone for date bounds and revenue buckets")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log at debug level")

	_ = viper.BindPFlags(rootCmd.PersistentFlags())
	// Accept the API server's variable names too.
	_ = viper.BindEnv("driver", "ORDERS_DRIVER", "ORDERS_STORAGE_DRIVER")
	_ = viper.BindEnv("database-url", "ORDERS_DATABASE_URL", "ORDERS_STORAGE_DATABASE_URL", "DATABASE_URL")
	_ = viper.BindEnv("mongo-uri", "ORDERS_MONGO_URI", "ORDERS_STORAGE_MONGO_URI", "MONGODB_URI")
	_ = viper.BindEnv("mongo-database", "ORDERS_MONGO_DATABASE", "ORDERS_STORAGE_MONGO_DATABASE")

	rootCmd.AddCommand(seedCmd, revenueCmd, exportCmd, tokenCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("orderctl")
	}

	viper.SetEnvPrefix("ORDERS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// adminPrincipal is the identity orderctl acts as. It sees every order.
var adminPrincipal = auth.Principal{UserID: "orderctl", Role: auth.RoleAdmin}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !viper.GetBool("verbose") {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func location() (*time.Location, error) {
	loc, err := time.LoadLocation(viper.GetString("timezone"))
	if err != nil {
		return nil, errors.Wrap(err, "timezone")
	}
	return loc, nil
}

// env is the order service wired to the configured store.
type env struct {
	lg      *zap.Logger
	loc     *time.Location
	backend *storage.Backend
	orders  *order.Service
}

func openEnv(ctx context.Context) (*env, error) {
	lg, err := newLogger()
	if err != nil {
		return nil, errors.Wrap(err, "logger")
	}
	loc, err := location()
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(ctx, storage.Config{
		Driver:         viper.GetString("driver"),
		DatabaseURL:    viper.GetString("database-url"),
		MongoURI:       viper.GetString("mongo-uri"),
		MongoDatabase:  viper.GetString("mongo-database"),
		ConnectTimeout: 10 * time.Second,
	}, lg)
	if err != nil {
		return nil, errors.Wrap(err, "open storage")
	}
	svc, err := order.NewService(
		order.NewStore(backend.Orders),
		order.NewCalculator(order.DefaultFeeSchedule(), nil),
		order.WithCatalog(backend.Restaurants),
		order.WithLocation(loc),
	)
	if err != nil {
		_ = backend.Close(ctx)
		return nil, errors.Wrap(err, "order service")
	}
	return &env{lg: lg, loc: loc, backend: backend, orders: svc}, nil
}

func (e *env) Close(ctx context.Context) {
	if err := e.backend.Close(ctx); err != nil {
		e.lg.Warn("Close storage", zap.Error(err))
	}
	_ = e.lg.Sync()
}
