package order

import "github.com/shopspring/decimal"

// Partition groups items by restaurant into sub-orders, in first-seen
// restaurant order. Items without a restaurant are left out of every
// sub-order. Each sub-order carries the order-level delivery type, fee and
// ETA undivided: the fee is charged once per order.
func Partition(items []Item, t DeliveryType, fee decimal.Decimal, etaMinutes *int) []SubOrder {
	var subs []SubOrder
	index := make(map[string]int)
	for _, it := range items {
		if it.RestaurantID == "" {
			continue
		}
		i, ok := index[it.RestaurantID]
		if !ok {
			so := SubOrder{
				RestaurantID: it.RestaurantID,
				Phase:        PhaseAtRestaurant,
				DeliveryType: t,
				DeliveryFee:  fee,
			}
			if etaMinutes != nil {
				eta := *etaMinutes
				so.ETAMinutes = &eta
			}
			subs = append(subs, so)
			i = len(subs) - 1
			index[it.RestaurantID] = i
		}
		subs[i].Items = append(subs[i].Items, it)
	}
	return subs
}
