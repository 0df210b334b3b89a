package postgres

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

// orderDocument is the JSONB layout of an order row. It keeps the legacy
// field names so records written by older clients decode unchanged: status
// may be present without deliveryPhase, and amount mirrors total.
type orderDocument struct {
	UserID         string                `json:"userId"`
	Items          []order.Item          `json:"items"`
	Address        map[string]any        `json:"address,omitempty"`
	Status         string                `json:"status"`
	DeliveryPhase  string                `json:"deliveryPhase,omitempty"`
	PaymentMethod  string                `json:"paymentMethod,omitempty"`
	Payment        bool                  `json:"payment"`
	DeliveryType   string                `json:"deliveryType,omitempty"`
	DeliveryFee    decimal.Decimal       `json:"deliveryFee"`
	PromoCode      string                `json:"promoCode,omitempty"`
	PromoDiscount  decimal.Decimal       `json:"promoDiscount"`
	SubTotal       decimal.Decimal       `json:"subTotal"`
	Total          decimal.Decimal       `json:"total"`
	Amount         decimal.Decimal       `json:"amount"`
	DroneID        string                `json:"droneId,omitempty"`
	DriverID       string                `json:"driverId,omitempty"`
	Route          []order.Coordinate    `json:"route,omitempty"`
	StatusTimeline []order.TimelineEntry `json:"statusTimeline"`
	SubOrders      []subOrderDocument    `json:"subOrders,omitempty"`
}

type subOrderDocument struct {
	RestaurantID  string          `json:"restaurantId"`
	Items         []order.Item    `json:"items"`
	Status        string          `json:"status"`
	DeliveryPhase string          `json:"deliveryPhase,omitempty"`
	DeliveryType  string          `json:"deliveryType,omitempty"`
	DeliveryFee   decimal.Decimal `json:"deliveryFee"`
	ETAMinutes    *int            `json:"etaMinutes,omitempty"`
}

func toDocument(o *order.Order) orderDocument {
	doc := orderDocument{
		UserID:         o.UserID,
		Items:          o.Items,
		Address:        o.Address,
		Status:         o.Status(),
		DeliveryPhase:  string(o.Phase),
		PaymentMethod:  string(o.PaymentMethod),
		Payment:        o.Paid,
		DeliveryType:   string(o.DeliveryType),
		DeliveryFee:    o.DeliveryFee,
		PromoCode:      o.PromoCode,
		PromoDiscount:  o.PromoDiscount,
		SubTotal:       o.SubTotal,
		Total:          o.Total,
		Amount:         o.Amount(),
		DroneID:        o.DroneID,
		DriverID:       o.DriverID,
		Route:          o.Route,
		StatusTimeline: o.Timeline,
	}
	for _, so := range o.SubOrders {
		doc.SubOrders = append(doc.SubOrders, subOrderDocument{
			RestaurantID:  so.RestaurantID,
			Items:         so.Items,
			Status:        so.Status(),
			DeliveryPhase: string(so.Phase),
			DeliveryType:  string(so.DeliveryType),
			DeliveryFee:   so.DeliveryFee,
			ETAMinutes:    so.ETAMinutes,
		})
	}
	return doc
}

func fromDocument(id string, doc orderDocument, createdAt, updatedAt time.Time, version int64) *order.Order {
	o := &order.Order{
		ID:            id,
		UserID:        doc.UserID,
		Items:         doc.Items,
		Address:       doc.Address,
		Phase:         order.DecodePhase(doc.DeliveryPhase, doc.Status),
		PaymentMethod: order.PaymentMethod(doc.PaymentMethod),
		Paid:          doc.Payment,
		DeliveryType:  order.DeliveryType(doc.DeliveryType),
		DeliveryFee:   doc.DeliveryFee,
		PromoCode:     doc.PromoCode,
		PromoDiscount: doc.PromoDiscount,
		SubTotal:      doc.SubTotal,
		Total:         doc.Total,
		DroneID:       doc.DroneID,
		DriverID:      doc.DriverID,
		Route:         doc.Route,
		Timeline:      doc.StatusTimeline,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		Version:       version,
	}
	if o.Total.IsZero() && !doc.Amount.IsZero() {
		o.Total = doc.Amount
	}
	for _, so := range doc.SubOrders {
		o.SubOrders = append(o.SubOrders, order.SubOrder{
			RestaurantID: so.RestaurantID,
			Items:        so.Items,
			Phase:        order.DecodePhase(so.DeliveryPhase, so.Status),
			DeliveryType: order.DeliveryType(so.DeliveryType),
			DeliveryFee:  so.DeliveryFee,
			ETAMinutes:   so.ETAMinutes,
		})
	}
	return o
}
