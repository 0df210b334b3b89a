package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/delivery-orders/internal/domain/order"
	"github.com/xenking/delivery-orders/internal/events"
	"github.com/xenking/delivery-orders/internal/handler"
	"github.com/xenking/delivery-orders/internal/payment"
	"github.com/xenking/delivery-orders/internal/storage"
	"github.com/xenking/delivery-orders/pkg/health"
	"github.com/xenking/delivery-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	fees, err := cfg.FeeSchedule()
	if err != nil {
		return err
	}

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(500*time.Millisecond))

	// Backends are independent, connect to them concurrently.
	var (
		backend *storage.Backend
		kafka   *events.Kafka
		deduper order.Deduper = payment.NewMemoryDeduper(cfg.Redis.TTL)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := storage.Open(gctx, cfg.Storage, lg)
		if err != nil {
			return errors.Wrap(err, "open storage")
		}
		backend = b
		return nil
	})
	if cfg.Redis.URL != "" {
		g.Go(func() error {
			rdb, err := payment.NewRedisClient(gctx, cfg.Redis.URL)
			if err != nil {
				return errors.Wrap(err, "connect redis")
			}
			d := payment.NewRedisDeduper(rdb, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
			healthSvc.AddReadinessCheck("redis", 2*time.Second, d.Check)
			deduper = d
			return nil
		})
	}
	if len(cfg.Kafka.Brokers) > 0 {
		g.Go(func() error {
			k, err := events.NewKafka(events.KafkaConfig{
				Brokers:  cfg.Kafka.Brokers,
				Topic:    cfg.Kafka.Topic,
				ClientID: cfg.Kafka.ClientID,
			}, lg)
			if err != nil {
				return errors.Wrap(err, "connect kafka")
			}
			healthSvc.AddReadinessCheck("kafka", 5*time.Second, k.Check)
			kafka = k
			return nil
		})
	}
	waitErr := g.Wait()
	closeCtx := context.WithoutCancel(ctx)
	if backend != nil {
		defer func() {
			if err := backend.Close(closeCtx); err != nil {
				lg.Warn("Close storage", zap.Error(err))
			}
		}()
	}
	if kafka != nil {
		defer func() {
			if err := kafka.Close(); err != nil {
				lg.Warn("Close kafka producer", zap.Error(err))
			}
		}()
	}
	if waitErr != nil {
		return waitErr
	}
	healthSvc.AddReadinessCheck(backend.Driver, 5*time.Second, health.PingCheck(backend))

	hub := events.NewHub(cfg.Feed.Buffer, lg.Named("feed"))
	defer hub.Close()
	notifier := events.Multi{hub}
	if kafka != nil {
		notifier = append(notifier, kafka)
	}

	opts := []order.Option{
		order.WithCatalog(backend.Restaurants),
		order.WithNotifier(notifier),
		order.WithDeduper(deduper),
		order.WithMeterProvider(m.MeterProvider()),
		order.WithLocation(loc),
	}
	if cfg.Payment.ProviderURL != "" {
		gw, err := payment.NewGateway(payment.GatewayConfig{
			BaseURL:        cfg.Payment.ProviderURL,
			APIKey:         cfg.Payment.APIKey,
			Timeout:        cfg.Payment.Timeout,
			MeterProvider:  m.MeterProvider(),
			TracerProvider: m.TracerProvider(),
		})
		if err != nil {
			return errors.Wrap(err, "create payment gateway")
		}
		opts = append(opts, order.WithPaymentGateway(gw, cfg.Payment.Timeout))
	}
	orderService, err := order.NewService(
		order.NewStore(backend.Orders),
		order.NewCalculator(fees, cfg.NumericPolicy()),
		opts...,
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	verifier, err := handler.NewTokenVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	if err != nil {
		return errors.Wrap(err, "create token verifier")
	}
	if cfg.Payment.WebhookSecret == "" {
		lg.Warn("Payment webhook disabled, no webhook secret configured")
	}
	gin.SetMode(gin.ReleaseMode)
	h := handler.New(handler.Config{
		WebhookSecret:  []byte(cfg.Payment.WebhookSecret),
		Location:       loc,
		AllowedOrigins: cfg.CORS.Origins,
		CORSMaxAge:     cfg.CORS.MaxAge,
	}, orderService, verifier, hub)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Router())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument(m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   isProbe,
			}),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		// Hijacked websocket connections are not tracked by Shutdown.
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz" || strings.HasPrefix(r.URL.Path, "/api/payments/")
}
