package order

import (
	"context"
	"time"
)

// EventType names a committed order mutation.
type EventType string

const (
	EventPlaced       EventType = "order.placed"
	EventPhaseChanged EventType = "order.phase_changed"
	EventSliceChanged EventType = "order.suborder_changed"
	EventAssigned     EventType = "order.assigned"
	EventPaid         EventType = "order.paid"
	EventDiscarded    EventType = "order.discarded"
)

// Event describes a committed change to an order.
type Event struct {
	Type          EventType
	OrderID       string
	UserID        string
	Phase         Phase
	Status        string
	RestaurantID  string
	RestaurantIDs []string
	Paid          bool
	At            time.Time
}

// Notifier receives events after the change is persisted. Errors are
// reported but never undo the change.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

func newEvent(t EventType, o *Order, at time.Time) Event {
	return Event{
		Type:          t,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Phase:         o.Phase,
		Status:        o.Status(),
		RestaurantIDs: o.RestaurantIDs(),
		Paid:          o.Paid,
		At:            at,
	}
}
