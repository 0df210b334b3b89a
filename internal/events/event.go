// Package events publishes committed order changes to Kafka and to live
// websocket subscribers.
package events

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

// Encode renders e as a JSON object.
func Encode(e order.Event) []byte {
	var w jx.Encoder
	w.Obj(func(w *jx.Encoder) {
		w.Field("type", func(w *jx.Encoder) { w.Str(string(e.Type)) })
		w.Field("orderId", func(w *jx.Encoder) { w.Str(e.OrderID) })
		w.Field("userId", func(w *jx.Encoder) { w.Str(e.UserID) })
		w.Field("deliveryPhase", func(w *jx.Encoder) { w.Str(string(e.Phase)) })
		w.Field("status", func(w *jx.Encoder) { w.Str(e.Status) })
		if e.RestaurantID != "" {
			w.Field("restaurantId", func(w *jx.Encoder) { w.Str(e.RestaurantID) })
		}
		w.Field("restaurantIds", func(w *jx.Encoder) {
			w.Arr(func(w *jx.Encoder) {
				for _, id := range e.RestaurantIDs {
					w.Str(id)
				}
			})
		})
		w.Field("payment", func(w *jx.Encoder) { w.Bool(e.Paid) })
		w.Field("at", func(w *jx.Encoder) { w.Str(e.At.UTC().Format(time.RFC3339Nano)) })
	})
	return w.Bytes()
}

// Decode parses an event produced by Encode. Unknown fields are skipped.
func Decode(data []byte) (order.Event, error) {
	var e order.Event
	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "type":
			var s string
			s, err = d.Str()
			e.Type = order.EventType(s)
		case "orderId":
			e.OrderID, err = d.Str()
		case "userId":
			e.UserID, err = d.Str()
		case "deliveryPhase":
			var s string
			s, err = d.Str()
			e.Phase = order.Phase(s)
		case "status":
			e.Status, err = d.Str()
		case "restaurantId":
			e.RestaurantID, err = d.Str()
		case "restaurantIds":
			err = d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				if err != nil {
					return err
				}
				e.RestaurantIDs = append(e.RestaurantIDs, id)
				return nil
			})
		case "payment":
			e.Paid, err = d.Bool()
		case "at":
			var s string
			if s, err = d.Str(); err == nil {
				e.At, err = time.Parse(time.RFC3339Nano, s)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return order.Event{}, errors.Wrap(err, "decode event")
	}
	return e, nil
}
