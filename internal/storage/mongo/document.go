package mongo

import (
	"time"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

type itemDocument struct {
	FoodID       string `bson:"foodId"`
	RestaurantID string `bson:"restaurantId,omitempty"`
	Name         string `bson:"name"`
	Price        money  `bson:"price"`
	Quantity     int    `bson:"quantity"`
}

type timelineDocument struct {
	Status       string    `bson:"status"`
	At           time.Time `bson:"at"`
	RestaurantID string    `bson:"restaurantId,omitempty"`
}

type coordinateDocument struct {
	Lat float64 `bson:"lat"`
	Lng float64 `bson:"lng"`
}

type subOrderDocument struct {
	RestaurantID  string         `bson:"restaurantId"`
	Items         []itemDocument `bson:"items"`
	Status        string         `bson:"status"`
	DeliveryPhase string         `bson:"deliveryPhase,omitempty"`
	DeliveryType  string         `bson:"deliveryType,omitempty"`
	DeliveryFee   money          `bson:"deliveryFee"`
	ETAMinutes    *int           `bson:"etaMinutes,omitempty"`
}

// orderDocument keeps the field names of documents written by older
// clients: status may be present without deliveryPhase, amount mirrors
// total and version may be missing.
type orderDocument struct {
	ID             string               `bson:"_id"`
	UserID         string               `bson:"userId"`
	Items          []itemDocument       `bson:"items"`
	Address        map[string]any       `bson:"address,omitempty"`
	Status         string               `bson:"status"`
	DeliveryPhase  string               `bson:"deliveryPhase,omitempty"`
	PaymentMethod  string               `bson:"paymentMethod,omitempty"`
	Payment        bool                 `bson:"payment"`
	DeliveryType   string               `bson:"deliveryType,omitempty"`
	DeliveryFee    money                `bson:"deliveryFee"`
	PromoCode      string               `bson:"promoCode,omitempty"`
	PromoDiscount  money                `bson:"promoDiscount"`
	SubTotal       money                `bson:"subTotal"`
	Total          money                `bson:"total"`
	Amount         money                `bson:"amount"`
	DroneID        string               `bson:"droneId,omitempty"`
	DriverID       string               `bson:"driverId,omitempty"`
	Route          []coordinateDocument `bson:"route,omitempty"`
	StatusTimeline []timelineDocument   `bson:"statusTimeline"`
	SubOrders      []subOrderDocument   `bson:"subOrders,omitempty"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
	Version        int64                `bson:"version"`
}

func toItems(items []order.Item) []itemDocument {
	out := make([]itemDocument, len(items))
	for i, it := range items {
		out[i] = itemDocument{
			FoodID:       it.FoodID,
			RestaurantID: it.RestaurantID,
			Name:         it.Name,
			Price:        money{it.Price},
			Quantity:     it.Quantity,
		}
	}
	return out
}

func fromItems(docs []itemDocument) []order.Item {
	if docs == nil {
		return nil
	}
	out := make([]order.Item, len(docs))
	for i, d := range docs {
		out[i] = order.Item{
			FoodID:       d.FoodID,
			RestaurantID: d.RestaurantID,
			Name:         d.Name,
			Price:        d.Price.Decimal,
			Quantity:     d.Quantity,
		}
	}
	return out
}

func toDocument(o *order.Order) orderDocument {
	doc := orderDocument{
		ID:            o.ID,
		UserID:        o.UserID,
		Items:         toItems(o.Items),
		Address:       o.Address,
		Status:        o.Status(),
		DeliveryPhase: string(o.Phase),
		PaymentMethod: string(o.PaymentMethod),
		Payment:       o.Paid,
		DeliveryType:  string(o.DeliveryType),
		DeliveryFee:   money{o.DeliveryFee},
		PromoCode:     o.PromoCode,
		PromoDiscount: money{o.PromoDiscount},
		SubTotal:      money{o.SubTotal},
		Total:         money{o.Total},
		Amount:        money{o.Amount()},
		DroneID:       o.DroneID,
		DriverID:      o.DriverID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Version:       o.Version,
	}
	for _, c := range o.Route {
		doc.Route = append(doc.Route, coordinateDocument(c))
	}
	doc.StatusTimeline = make([]timelineDocument, len(o.Timeline))
	for i, e := range o.Timeline {
		doc.StatusTimeline[i] = timelineDocument(e)
	}
	for _, so := range o.SubOrders {
		doc.SubOrders = append(doc.SubOrders, subOrderDocument{
			RestaurantID:  so.RestaurantID,
			Items:         toItems(so.Items),
			Status:        so.Status(),
			DeliveryPhase: string(so.Phase),
			DeliveryType:  string(so.DeliveryType),
			DeliveryFee:   money{so.DeliveryFee},
			ETAMinutes:    so.ETAMinutes,
		})
	}
	return doc
}

func fromDocument(doc orderDocument) *order.Order {
	o := &order.Order{
		ID:            doc.ID,
		UserID:        doc.UserID,
		Items:         fromItems(doc.Items),
		Address:       doc.Address,
		Phase:         order.DecodePhase(doc.DeliveryPhase, doc.Status),
		PaymentMethod: order.PaymentMethod(doc.PaymentMethod),
		Paid:          doc.Payment,
		DeliveryType:  order.DeliveryType(doc.DeliveryType),
		DeliveryFee:   doc.DeliveryFee.Decimal,
		PromoCode:     doc.PromoCode,
		PromoDiscount: doc.PromoDiscount.Decimal,
		SubTotal:      doc.SubTotal.Decimal,
		Total:         doc.Total.Decimal,
		DroneID:       doc.DroneID,
		DriverID:      doc.DriverID,
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
		Version:       doc.Version,
	}
	if o.Total.IsZero() && !doc.Amount.IsZero() {
		o.Total = doc.Amount.Decimal
	}
	for _, c := range doc.Route {
		o.Route = append(o.Route, order.Coordinate(c))
	}
	for _, e := range doc.StatusTimeline {
		e.At = e.At.UTC()
		o.Timeline = append(o.Timeline, order.TimelineEntry(e))
	}
	for _, so := range doc.SubOrders {
		o.SubOrders = append(o.SubOrders, order.SubOrder{
			RestaurantID: so.RestaurantID,
			Items:        fromItems(so.Items),
			Phase:        order.DecodePhase(so.DeliveryPhase, so.Status),
			DeliveryType: order.DeliveryType(so.DeliveryType),
			DeliveryFee:  so.DeliveryFee.Decimal,
			ETAMinutes:   so.ETAMinutes,
		})
	}
	return o
}
