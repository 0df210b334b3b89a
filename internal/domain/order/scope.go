package order

import (
	"slices"

	"github.com/xenking/delivery-orders/internal/domain/auth"
)

// Scope is the set of restaurants a caller may see.
type Scope struct {
	Unrestricted  bool
	RestaurantIDs []string
}

// Allows reports whether restaurantID is visible under the scope.
func (s Scope) Allows(restaurantID string) bool {
	return s.Unrestricted || slices.Contains(s.RestaurantIDs, restaurantID)
}

// Apply narrows f to the scope. An unrestricted scope leaves f unchanged.
func (s Scope) Apply(f Filter) Filter {
	if s.Unrestricted {
		return f
	}
	f.RestaurantIDs = slices.Clone(s.RestaurantIDs)
	return f
}

// ResolveScope derives the restaurant visibility of p for a scoped request,
// optionally narrowed to one requested restaurant.
//
// Admins are unrestricted unless they ask for a restaurant. Owners see their
// owned set; asking for a restaurant outside it is ErrForbidden, as is an
// owner with no restaurants at all. Plain users never reach scoped reads.
func ResolveScope(p auth.Principal, requested string) (Scope, error) {
	switch {
	case p.IsAdmin():
		if requested == "" {
			return Scope{Unrestricted: true}, nil
		}
		return Scope{RestaurantIDs: []string{requested}}, nil
	case p.IsOwner():
		if requested != "" {
			if !p.Owns(requested) {
				return Scope{}, ErrForbidden
			}
			return Scope{RestaurantIDs: []string{requested}}, nil
		}
		if len(p.OwnedRestaurantIDs) == 0 {
			return Scope{}, ErrForbidden
		}
		return Scope{RestaurantIDs: slices.Clone(p.OwnedRestaurantIDs)}, nil
	default:
		return Scope{}, ErrForbidden
	}
}

// ScopeFilter is ResolveScope followed by Apply.
func ScopeFilter(p auth.Principal, base Filter, requested string) (Filter, error) {
	s, err := ResolveScope(p, requested)
	if err != nil {
		return Filter{}, err
	}
	return s.Apply(base), nil
}

// canManage reports whether p may mutate o: admins always, owners when the
// order references at least one owned restaurant.
func canManage(p auth.Principal, o *Order) bool {
	switch {
	case p.IsAdmin():
		return true
	case p.IsOwner():
		return o.Touches(p.OwnedRestaurantIDs)
	default:
		return false
	}
}
