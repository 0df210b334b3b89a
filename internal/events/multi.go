package events

import (
	"context"

	"go.uber.org/multierr"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

// Multi delivers each event to every notifier, even when some fail.
type Multi []order.Notifier

// Notify returns the combined error of all failing notifiers.
func (m Multi) Notify(ctx context.Context, e order.Event) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.Notify(ctx, e))
	}
	return err
}
