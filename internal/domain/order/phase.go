package order

import "strings"

// Phase is the canonical delivery lifecycle state. It only moves forward.
type Phase string

const (
	PhaseAtRestaurant Phase = "at_restaurant"
	PhaseDelivering   Phase = "delivering"
	PhaseDelivered    Phase = "delivered"
)

// Legacy status strings kept for backward-compatible display.
const (
	StatusFoodProcessing = "Food Processing"
	StatusOutForDelivery = "Out For Delivery"
	StatusDelivered      = "Delivered"
	StatusPaid           = "Paid"
)

var phaseRank = map[Phase]int{
	PhaseAtRestaurant: 0,
	PhaseDelivering:   1,
	PhaseDelivered:    2,
}

// Valid reports whether p is one of the three lifecycle phases.
func (p Phase) Valid() bool {
	_, ok := phaseRank[p]
	return ok
}

// Before reports whether p strictly precedes q.
func (p Phase) Before(q Phase) bool {
	return phaseRank[p] < phaseRank[q]
}

// Status maps the phase to its legacy status string.
func (p Phase) Status() string {
	switch p {
	case PhaseDelivering:
		return StatusOutForDelivery
	case PhaseDelivered:
		return StatusDelivered
	default:
		return StatusFoodProcessing
	}
}

// ParsePhase parses an enum value such as "delivering".
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", &TransitionError{To: p}
	}
	return p, nil
}

// PhaseFromStatus accepts either a legacy status string or a phase enum
// value, as sent by the coarse status update path.
func PhaseFromStatus(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "food processing", string(PhaseAtRestaurant):
		return PhaseAtRestaurant, nil
	case "out for delivery", string(PhaseDelivering):
		return PhaseDelivering, nil
	case "delivered":
		return PhaseDelivered, nil
	default:
		return "", &TransitionError{To: Phase(s)}
	}
}

// DecodePhase reconciles a stored phase and a stored legacy status. Records
// written before phases existed carry only a status; the furthest of the
// two wins.
func DecodePhase(phase, status string) Phase {
	p := Phase(phase)
	if !p.Valid() {
		p = PhaseAtRestaurant
	}
	if fromStatus, err := PhaseFromStatus(status); err == nil && p.Before(fromStatus) {
		p = fromStatus
	}
	return p
}
