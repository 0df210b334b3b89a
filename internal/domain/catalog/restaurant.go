package catalog

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested restaurant does not exist.
var ErrNotFound = errors.New("restaurant not found")

// Restaurant is the part of a catalog restaurant the order engine reads:
// who owns it and which delivery modes it offers.
type Restaurant struct {
	ID            string
	Name          string
	OwnerID       string
	DeliveryModes []string
}

// Supports reports whether the restaurant offers the delivery mode.
func (r Restaurant) Supports(mode string) bool {
	return slices.Contains(r.DeliveryModes, mode)
}

// Repository defines read operations for restaurant capabilities.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Restaurant, error)
}

// Writer stores restaurants. It is used by seeding tools.
type Writer interface {
	Upsert(ctx context.Context, r Restaurant) error
}
