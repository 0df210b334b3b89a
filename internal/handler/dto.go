package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

// placeOrderRequest is the checkout body. Amounts are accepted as JSON
// numbers or strings; malformed values are handled by the numeric policy.
type placeOrderRequest struct {
	Items         []order.CartItem   `json:"items"`
	Address       map[string]any     `json:"address"`
	DeliveryType  string             `json:"deliveryType"`
	PaymentMethod string             `json:"paymentMethod"`
	PromoCode     string             `json:"promoCode"`
	PromoDiscount *order.RawNumber   `json:"promoDiscount"`
	SubTotal      *order.RawNumber   `json:"subTotal"`
	DeliveryFee   *order.RawNumber   `json:"deliveryFee"`
	Total         *order.RawNumber   `json:"total"`
	Amount        *order.RawNumber   `json:"amount"`
	ETAMinutes    *int               `json:"etaMinutes"`
	Route         []order.Coordinate `json:"route"`
}

func (r placeOrderRequest) adjustments() order.Adjustments {
	total := r.Total
	if total == nil {
		total = r.Amount
	}
	return order.Adjustments{
		PromoDiscount: r.PromoDiscount,
		SubTotal:      r.SubTotal,
		DeliveryFee:   r.DeliveryFee,
		Total:         total,
	}
}

type deliveryUpdateRequest struct {
	DeliveryPhase *string `json:"deliveryPhase"`
	DroneID       *string `json:"droneId"`
	DriverID      *string `json:"driverId"`
}

type statusUpdateRequest struct {
	Status       string `json:"status"`
	RestaurantID string `json:"restaurantId"`
}

type webhookRequest struct {
	EventID   string `json:"eventId"`
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type itemResponse struct {
	FoodID       string  `json:"foodId"`
	RestaurantID string  `json:"restaurantId,omitempty"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Quantity     int     `json:"quantity"`
}

type subOrderResponse struct {
	RestaurantID  string         `json:"restaurantId"`
	Items         []itemResponse `json:"items"`
	Status        string         `json:"status"`
	DeliveryPhase string         `json:"deliveryPhase"`
	DeliveryType  string         `json:"deliveryType"`
	DeliveryFee   float64        `json:"deliveryFee"`
	ETAMinutes    *int           `json:"etaMinutes,omitempty"`
}

type orderResponse struct {
	ID             string                `json:"id"`
	UserID         string                `json:"userId"`
	Items          []itemResponse        `json:"items"`
	Address        map[string]any        `json:"address,omitempty"`
	Status         string                `json:"status"`
	DeliveryPhase  string                `json:"deliveryPhase"`
	PaymentMethod  string                `json:"paymentMethod"`
	Payment        bool                  `json:"payment"`
	DeliveryType   string                `json:"deliveryType"`
	DeliveryFee    float64               `json:"deliveryFee"`
	PromoCode      string                `json:"promoCode,omitempty"`
	PromoDiscount  float64               `json:"promoDiscount"`
	SubTotal       float64               `json:"subTotal"`
	Total          float64               `json:"total"`
	Amount         float64               `json:"amount"`
	DroneID        string                `json:"droneId,omitempty"`
	DriverID       string                `json:"driverId,omitempty"`
	Route          []order.Coordinate    `json:"route,omitempty"`
	StatusTimeline []order.TimelineEntry `json:"statusTimeline"`
	SubOrders      []subOrderResponse    `json:"subOrders"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

type summaryResponse struct {
	TotalRevenue  float64 `json:"totalRevenue"`
	TotalOrders   int     `json:"totalOrders"`
	AvgOrderValue float64 `json:"avgOrderValue"`
}

type restaurantRevenueResponse struct {
	RestaurantID string  `json:"restaurantId"`
	Revenue      float64 `json:"revenue"`
	Orders       int     `json:"orders"`
}

type dailyRevenueResponse struct {
	Day     string  `json:"day"`
	Revenue float64 `json:"revenue"`
	Orders  int     `json:"orders"`
}

type revenueResponse struct {
	Summary     summaryResponse             `json:"summary"`
	Restaurants []restaurantRevenueResponse `json:"restaurants"`
	Timeseries  []dailyRevenueResponse      `json:"timeseries"`
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func toItems(items []order.Item) []itemResponse {
	out := make([]itemResponse, len(items))
	for i, it := range items {
		out[i] = itemResponse{
			FoodID:       it.FoodID,
			RestaurantID: it.RestaurantID,
			Name:         it.Name,
			Price:        money(it.Price),
			Quantity:     it.Quantity,
		}
	}
	return out
}

func toOrder(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		UserID:         o.UserID,
		Items:          toItems(o.Items),
		Address:        o.Address,
		Status:         o.Status(),
		DeliveryPhase:  string(o.Phase),
		PaymentMethod:  string(o.PaymentMethod),
		Payment:        o.Paid,
		DeliveryType:   string(o.DeliveryType),
		DeliveryFee:    money(o.DeliveryFee),
		PromoCode:      o.PromoCode,
		PromoDiscount:  money(o.PromoDiscount),
		SubTotal:       money(o.SubTotal),
		Total:          money(o.Total),
		Amount:         money(o.Amount()),
		DroneID:        o.DroneID,
		DriverID:       o.DriverID,
		Route:          o.Route,
		StatusTimeline: o.Timeline,
		SubOrders:      make([]subOrderResponse, len(o.SubOrders)),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if resp.StatusTimeline == nil {
		resp.StatusTimeline = []order.TimelineEntry{}
	}
	for i, so := range o.SubOrders {
		resp.SubOrders[i] = subOrderResponse{
			RestaurantID:  so.RestaurantID,
			Items:         toItems(so.Items),
			Status:        so.Status(),
			DeliveryPhase: string(so.Phase),
			DeliveryType:  string(so.DeliveryType),
			DeliveryFee:   money(so.DeliveryFee),
			ETAMinutes:    so.ETAMinutes,
		}
	}
	return resp
}

func toOrders(orders []order.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrder(&orders[i])
	}
	return out
}

func toRevenue(r order.RevenueReport) revenueResponse {
	resp := revenueResponse{
		Summary: summaryResponse{
			TotalRevenue:  money(r.Summary.TotalRevenue),
			TotalOrders:   r.Summary.TotalOrders,
			AvgOrderValue: money(r.Summary.AvgOrderValue),
		},
		Restaurants: make([]restaurantRevenueResponse, len(r.Restaurants)),
		Timeseries:  make([]dailyRevenueResponse, len(r.Timeseries)),
	}
	for i, rr := range r.Restaurants {
		resp.Restaurants[i] = restaurantRevenueResponse{
			RestaurantID: rr.RestaurantID,
			Revenue:      money(rr.Revenue),
			Orders:       rr.Orders,
		}
	}
	for i, d := range r.Timeseries {
		resp.Timeseries[i] = dailyRevenueResponse{Day: d.Day, Revenue: money(d.Revenue), Orders: d.Orders}
	}
	return resp
}
