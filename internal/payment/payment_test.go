package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

func TestGateway_SessionStatus(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		want    order.PaymentStatus
		wantErr bool
	}{
		{name: "paid", code: http.StatusOK, body: `{"id":"cs_1","status":"complete","payment_status":"paid","metadata":{"a":1}}`, want: order.PaymentPaid},
		{name: "open", code: http.StatusOK, body: `{"status":"open","payment_status":"unpaid"}`, want: order.PaymentPending},
		{name: "expired", code: http.StatusOK, body: `{"status":"expired","payment_status":"unpaid"}`, want: order.PaymentFailed},
		{name: "provider error", code: http.StatusBadGateway, body: `{}`, wantErr: true},
		{name: "garbage", code: http.StatusOK, body: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/checkout/sessions/cs_1", r.URL.Path)
				assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g, err := NewGateway(GatewayConfig{BaseURL: srv.URL + "/", APIKey: "sk_test"})
			require.NoError(t, err)

			got, err := g.SessionStatus(context.Background(), "cs_1")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGateway_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	g, err := NewGateway(GatewayConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.SessionStatus(ctx, "cs_1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	g.client.Timeout = 50 * time.Millisecond
	_, err = g.SessionStatus(context.Background(), "cs_1")
	require.ErrorIs(t, err, order.ErrUpstreamTimeout)
}

func TestNewGateway_InvalidURL(t *testing.T) {
	_, err := NewGateway(GatewayConfig{BaseURL: "provider.local"})
	require.Error(t, err)
}

func TestSignature(t *testing.T) {
	secret := []byte("whsec")
	body := []byte(`{"orderId":"o1","status":"paid"}`)
	sig := Sign(secret, body)

	require.NoError(t, Verify(secret, body, sig))
	require.NoError(t, Verify(secret, body, "sha256="+sig))
	require.ErrorIs(t, Verify(secret, []byte(`{"orderId":"o2"}`), sig), ErrInvalidSignature)
	require.ErrorIs(t, Verify([]byte("other"), body, sig), ErrInvalidSignature)
	require.ErrorIs(t, Verify(secret, body, "zz"), ErrInvalidSignature)
	require.ErrorIs(t, Verify(secret, body, ""), ErrInvalidSignature)
}

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	d := NewMemoryDeduper(time.Hour)
	d.now = func() time.Time { return now }

	first, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Release(ctx, "evt_1"))
	first, err = d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first, "released keys can be claimed again")

	now = now.Add(2 * time.Hour)
	first, err = d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first, "claims expire")
}
