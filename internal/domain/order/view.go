package order

import (
	"github.com/shopspring/decimal"
)

// FeeAttribution splits the order's delivery fee across its restaurants.
// Sub-order fees are authoritative when sub-orders exist. Orders placed
// before sub-orders existed fall back to an even division of the
// order-level fee across the restaurants of their items. The fee is never
// read from both places.
func FeeAttribution(o *Order) map[string]decimal.Decimal {
	shares := make(map[string]decimal.Decimal)
	if len(o.SubOrders) > 0 {
		for _, so := range o.SubOrders {
			shares[so.RestaurantID] = shares[so.RestaurantID].Add(so.DeliveryFee)
		}
		return shares
	}

	var ids []string
	for _, it := range o.Items {
		if it.RestaurantID == "" {
			continue
		}
		if _, ok := shares[it.RestaurantID]; ok {
			continue
		}
		shares[it.RestaurantID] = decimal.Zero
		ids = append(ids, it.RestaurantID)
	}
	if len(ids) == 0 {
		return shares
	}
	share := o.DeliveryFee.Div(decimal.NewFromInt(int64(len(ids))))
	for _, id := range ids {
		shares[id] = share
	}
	return shares
}

// View narrows o to the restaurants visible under scope. Money fields are
// recomputed over the visible subset and the promo discount is zeroed,
// since a discount cannot be attributed to one restaurant. When every
// restaurant of the order is visible the order is returned whole.
func View(o *Order, scope Scope) *Order {
	v := o.Clone()
	if scope.Unrestricted {
		return v
	}
	all := true
	for _, id := range o.RestaurantIDs() {
		if !scope.Allows(id) {
			all = false
			break
		}
	}
	if all {
		return v
	}

	v.Items = v.Items[:0]
	for _, it := range o.Items {
		if it.RestaurantID != "" && scope.Allows(it.RestaurantID) {
			v.Items = append(v.Items, it)
		}
	}
	subs := v.SubOrders[:0]
	for _, so := range v.SubOrders {
		if scope.Allows(so.RestaurantID) {
			subs = append(subs, so)
		}
	}
	v.SubOrders = subs
	timeline := v.Timeline[:0]
	for _, e := range v.Timeline {
		if e.RestaurantID == "" || scope.Allows(e.RestaurantID) {
			timeline = append(timeline, e)
		}
	}
	v.Timeline = timeline

	fee := decimal.Zero
	for id, share := range FeeAttribution(o) {
		if scope.Allows(id) {
			fee = fee.Add(share)
		}
	}
	v.SubTotal = SubTotal(v.Items)
	v.DeliveryFee = fee
	v.PromoDiscount = decimal.Zero
	v.Total = clampTotal(v.SubTotal, v.DeliveryFee, decimal.Zero)
	return v
}
