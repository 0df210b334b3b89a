// Package payment talks to the payment provider: it looks up checkout
// session status, verifies webhook signatures and deduplicates provider
// events.
package payment

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

// GatewayConfig configures the provider client.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	// Timeout caps a single request. The caller's context may be shorter.
	Timeout time.Duration

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

var _ order.PaymentGateway = (*Gateway)(nil)

// Gateway is an HTTP client for the provider's checkout session API.
type Gateway struct {
	base   *url.URL
	apiKey string
	client *http.Client
}

// NewGateway returns a Gateway for cfg.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse provider url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("provider url %q must be absolute", cfg.BaseURL)
	}

	var opts []otelhttp.Option
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gateway{
		base:   base,
		apiKey: cfg.APIKey,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
			Timeout:   timeout,
		},
	}, nil
}

// SessionStatus fetches the checkout session and maps it to a payment status.
func (g *Gateway) SessionStatus(ctx context.Context, sessionID string) (order.PaymentStatus, error) {
	u := g.base.JoinPath("v1", "checkout", "sessions", sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return "", errors.Wrap(order.ErrUpstreamTimeout, "session request")
		}
		return "", errors.Wrap(err, "session request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read session response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("provider returned %d for session %s", resp.StatusCode, sessionID)
	}
	return parseSession(body)
}

// parseSession maps a checkout session object. payment_status "paid" wins;
// an expired or failed session is a failure; everything else is pending.
func parseSession(body []byte) (order.PaymentStatus, error) {
	var status, paymentStatus string
	d := jx.DecodeBytes(body)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "status":
			status, err = d.Str()
		case "payment_status":
			paymentStatus, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "decode session")
	}

	switch {
	case paymentStatus == "paid":
		return order.PaymentPaid, nil
	case status == "expired", status == "failed", status == "canceled", paymentStatus == "failed":
		return order.PaymentFailed, nil
	default:
		return order.PaymentPending, nil
	}
}
