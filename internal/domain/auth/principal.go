package auth

import (
	"context"
	"slices"
)

// Role is the caller's platform role as asserted by the identity provider.
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleRestaurantOwner Role = "restaurantOwner"
	RoleUser            Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleRestaurantOwner || r == RoleUser
}

// Principal is the resolved caller of a request.
type Principal struct {
	UserID             string
	Role               Role
	OwnedRestaurantIDs []string
}

// IsAdmin reports whether the principal has full visibility.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsOwner reports whether the principal is a restaurant owner.
func (p Principal) IsOwner() bool {
	return p.Role == RoleRestaurantOwner
}

// Owns reports whether restaurantID is in the owned set.
func (p Principal) Owns(restaurantID string) bool {
	return slices.Contains(p.OwnedRestaurantIDs, restaurantID)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
