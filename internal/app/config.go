package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-orders/internal/domain/order"
	"github.com/xenking/delivery-orders/internal/storage"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix), flags, YAML files and a local
// .env file.
type Config struct {
	Addr     string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Timezone string `default:"UTC" usage:"IANA zone for revenue day buckets and date-only query bounds"`
	Storage  storage.Config
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Payment  PaymentConfig
	Fees     FeesConfig
	Feed     FeedConfig

	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// RedisConfig enables Redis-backed payment event de-duplication. Without a
// URL an in-process store is used.
type RedisConfig struct {
	URL       string        `usage:"Redis URL, e.g. redis://localhost:6379/0" flag:"redis-url"`
	KeyPrefix string        `default:"orders:payment-event:" usage:"Key prefix for handled payment events"`
	TTL       time.Duration `default:"24h" usage:"How long handled payment events are remembered"`
}

// KafkaConfig enables publishing order events. Without brokers events only
// reach the live feed.
type KafkaConfig struct {
	Brokers  []string `usage:"Kafka bootstrap brokers"`
	Topic    string   `default:"order-events" usage:"Topic for order events"`
	ClientID string   `default:"delivery-orders" usage:"Kafka client id"`
}

// AuthConfig controls bearer token validation.
type AuthConfig struct {
	JWTSecret string `usage:"HS256 secret for bearer tokens (ORDERS_AUTH_JWT_SECRET)" flag:"jwt-secret"`
	Issuer    string `usage:"Required token issuer, empty accepts any"`
}

// PaymentConfig configures the payment provider.
type PaymentConfig struct {
	ProviderURL   string        `usage:"Payment provider API base URL, empty disables session lookups"`
	APIKey        string        `usage:"Payment provider API key"`
	WebhookSecret string        `usage:"HMAC secret of provider webhooks, empty disables the webhook"`
	Timeout       time.Duration `default:"5s" usage:"Payment provider lookup timeout"`
}

// FeesConfig overrides the delivery fee tiers.
type FeesConfig struct {
	Driver string `default:"20000" usage:"Flat driver delivery fee"`
	Drone  string `default:"30000" usage:"Flat drone delivery fee"`
	Strict bool   `default:"false" usage:"Reject non-numeric prices and quantities instead of treating them as zero"`
}

// FeedConfig tunes the websocket live feed.
type FeedConfig struct {
	Buffer int `default:"64" usage:"Events buffered per live feed subscriber"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string      `default:"*" usage:"Allowed CORS origins"`
	MaxAge  time.Duration `default:"12h" usage:"Preflight cache duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads .env when present, then environment variables and YAML
// config files, and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the DATABASE_URL, MONGODB_URI, REDIS_URL and
// PORT variables set by hosting platforms onto the ORDERS_ configuration.
func (c *Config) applyPlatformDefaults() {
	fill := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	fill(&c.Storage.DatabaseURL, "DATABASE_URL")
	fill(&c.Storage.MongoURI, "MONGODB_URI")
	fill(&c.Redis.URL, "REDIS_URL")
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required: set ORDERS_AUTH_JWT_SECRET")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.FeeSchedule(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "timezone %q", c.Timezone)
	}
	return loc, nil
}

// FeeSchedule builds the delivery fee tiers from Fees.
func (c *Config) FeeSchedule() (order.FeeSchedule, error) {
	driver, err := decimal.NewFromString(c.Fees.Driver)
	if err != nil {
		return order.FeeSchedule{}, errors.Wrap(err, "driver fee")
	}
	drone, err := decimal.NewFromString(c.Fees.Drone)
	if err != nil {
		return order.FeeSchedule{}, errors.Wrap(err, "drone fee")
	}
	return order.NewFeeSchedule(driver, drone)
}

// NumericPolicy returns the policy for malformed client numbers.
func (c *Config) NumericPolicy() order.NumericPolicy {
	if c.Fees.Strict {
		return order.Strict{}
	}
	return order.CoerceOrZero{}
}
