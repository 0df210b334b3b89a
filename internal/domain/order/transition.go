package order

import "time"

// PhaseUpdate is a fine-grained delivery update. Nil fields are left alone.
type PhaseUpdate struct {
	Phase    *Phase
	DroneID  *string
	DriverID *string
}

// assign applies courier assignment tags. It runs with or without a phase
// change so a driver can be swapped mid-flight.
func assign(o *Order, u PhaseUpdate) bool {
	changed := false
	if u.DroneID != nil && *u.DroneID != o.DroneID {
		o.DroneID = *u.DroneID
		changed = true
	}
	if u.DriverID != nil && *u.DriverID != o.DriverID {
		o.DriverID = *u.DriverID
		changed = true
	}
	return changed
}

// advance moves the whole order to target. Moving backward is rejected;
// repeating the current phase is a no-op. Lagging sub-orders are lifted to
// the new phase.
func advance(o *Order, target Phase, now time.Time) (bool, error) {
	if target.Before(o.Phase) {
		return false, &TransitionError{From: o.Phase, To: target}
	}
	if target == o.Phase {
		return false, nil
	}
	o.Phase = target
	o.Timeline = append(o.Timeline, TimelineEntry{Status: target.Status(), At: now})
	for i := range o.SubOrders {
		if o.SubOrders[i].Phase.Before(target) {
			o.SubOrders[i].Phase = target
		}
	}
	settleOnDelivery(o)
	return true, nil
}

// advanceSlice moves one restaurant's sub-order to target. The parent is
// carried forward to target in the same write but never moved back, and the
// other sub-orders keep their own phases.
func advanceSlice(o *Order, so *SubOrder, target Phase, now time.Time) (bool, error) {
	if target.Before(so.Phase) {
		return false, &TransitionError{From: so.Phase, To: target}
	}
	if target == so.Phase {
		return false, nil
	}
	so.Phase = target
	o.Timeline = append(o.Timeline, TimelineEntry{
		Status:       target.Status(),
		At:           now,
		RestaurantID: so.RestaurantID,
	})

	if o.Phase.Before(target) {
		o.Phase = target
		o.Timeline = append(o.Timeline, TimelineEntry{Status: target.Status(), At: now})
		settleOnDelivery(o)
	}
	return true, nil
}

// settleOnDelivery marks cash-on-delivery orders paid at handoff.
func settleOnDelivery(o *Order) {
	if o.Phase == PhaseDelivered && o.PaymentMethod == PaymentCOD && !o.Paid {
		o.Paid = true
	}
}
