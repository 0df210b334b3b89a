package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// PaymentStatus is the provider's view of a checkout session.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentFailed  PaymentStatus = "failed"
)

// PaymentGateway asks the payment provider for the authoritative status of
// a checkout session.
type PaymentGateway interface {
	SessionStatus(ctx context.Context, sessionID string) (PaymentStatus, error)
}

// Deduper remembers which provider events were already handled.
type Deduper interface {
	// Claim reports whether key was not seen before and marks it seen.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a failed delivery can be retried.
	Release(ctx context.Context, key string) error
}

// PaymentCallback is a provider notification about an order's payment.
type PaymentCallback struct {
	EventID   string
	OrderID   string
	SessionID string
	Success   bool
}

// HandlePaymentCallback reconciles a provider callback with the order.
// Duplicate event ids are dropped. When a gateway is configured and the
// callback names a session, the provider is asked for the real status under
// a bounded timeout; a timeout surfaces as ErrUpstreamTimeout.
func (s *Service) HandlePaymentCallback(ctx context.Context, cb PaymentCallback) (rerr error) {
	if cb.OrderID == "" {
		return &ValidationError{Field: "orderId", Reason: "required"}
	}

	if cb.EventID != "" && s.dedupe != nil {
		first, err := s.dedupe.Claim(ctx, cb.EventID)
		if err != nil {
			return errors.Wrap(err, "claim payment event")
		}
		if !first {
			zctx.From(ctx).Debug("Duplicate payment event", zap.String("event_id", cb.EventID))
			return nil
		}
		defer func() {
			if rerr == nil {
				return
			}
			if err := s.dedupe.Release(context.WithoutCancel(ctx), cb.EventID); err != nil {
				zctx.From(ctx).Warn("Release payment event", zap.Error(err))
			}
		}()
	}

	success := cb.Success
	if cb.SessionID != "" && s.gateway != nil {
		status, err := s.sessionStatus(ctx, cb.SessionID)
		if err != nil {
			return err
		}
		switch status {
		case PaymentPaid:
			success = true
		case PaymentFailed:
			success = false
		default:
			return nil
		}
	}

	return s.ConfirmPayment(ctx, cb.OrderID, success)
}

func (s *Service) sessionStatus(ctx context.Context, sessionID string) (PaymentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	status, err := s.gateway.SessionStatus(ctx, sessionID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrUpstreamTimeout) {
			return "", errors.Wrapf(ErrUpstreamTimeout, "session %s", sessionID)
		}
		return "", errors.Wrapf(err, "session %s status", sessionID)
	}
	return status, nil
}

// ConfirmPayment settles or discards an order. Success marks the order paid
// and appends a "Paid" timeline entry, once. Failure before any success
// deletes the unpaid order. Repeated callbacks are no-ops and the order
// state always wins: a paid order is never discarded.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string, success bool) error {
	lg := zctx.From(ctx).With(zap.String("order_id", orderID))

	if !success {
		removed, err := s.store.DeleteUnpaid(ctx, orderID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if removed {
			lg.Info("Unpaid order discarded")
			s.metrics.discarded.Add(ctx, 1)
			s.notify(ctx, Event{Type: EventDiscarded, OrderID: orderID, At: s.now().UTC()})
		}
		return nil
	}

	var now time.Time
	before := int64(0)
	o, err := s.store.UpdateOnePhase(ctx, orderID, func(o *Order) (bool, error) {
		before = o.Version
		if o.Paid {
			return false, nil
		}
		now = s.now().UTC()
		o.Paid = true
		o.Timeline = append(o.Timeline, TimelineEntry{Status: StatusPaid, At: now})
		return true, nil
	})
	if err != nil {
		return err
	}
	if o.Version != before {
		lg.Info("Payment settled")
		s.metrics.settled.Add(ctx, 1)
		s.notify(ctx, newEvent(EventPaid, o, now))
	}
	return nil
}
