package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

const dateLayout = "2006-01-02"

// timeRange parses the inclusive from/to query parameters. Both accept
// RFC 3339 timestamps or plain dates; a plain "to" date covers the whole day.
func (h *Handler) timeRange(c *gin.Context) (from, to *time.Time, err error) {
	if from, err = h.parseTime("from", c.Query("from"), false); err != nil {
		return nil, nil, err
	}
	if to, err = h.parseTime("to", c.Query("to"), true); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, &order.ValidationError{Field: "to", Reason: "before from"}
	}
	return from, to, nil
}

func (h *Handler) parseTime(field, v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, h.loc)
	if err != nil {
		return nil, &order.ValidationError{Field: field, Reason: "expected RFC 3339 time or YYYY-MM-DD"}
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

func (h *Handler) listScopedOrders(c *gin.Context) {
	from, to, err := h.timeRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	orders, err := h.orders.ListOrdersScoped(c.Request.Context(), principal(c), order.ListQuery{
		RestaurantID: c.Query("restaurantId"),
		From:         from,
		To:           to,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrders(orders))
}

func (h *Handler) updateDelivery(c *gin.Context) {
	var req deliveryUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.DeliveryPhase == nil && req.DroneID == nil && req.DriverID == nil {
		writeError(c, &order.ValidationError{Field: "deliveryPhase", Reason: "nothing to update"})
		return
	}

	u := order.PhaseUpdate{DroneID: req.DroneID, DriverID: req.DriverID}
	if req.DeliveryPhase != nil {
		phase := order.Phase(*req.DeliveryPhase)
		u.Phase = &phase
	}

	p := principal(c)
	o, err := h.orders.UpdateDeliveryPhase(c.Request.Context(), p, c.Param("id"), u)
	if err != nil {
		writeError(c, err)
		return
	}
	if p.IsOwner() {
		o = order.View(o, order.Scope{RestaurantIDs: p.OwnedRestaurantIDs})
	}
	c.JSON(http.StatusOK, toOrder(o))
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Status == "" {
		writeError(c, &order.ValidationError{Field: "status", Reason: "required"})
		return
	}
	if err := h.orders.UpdateStatus(c.Request.Context(), principal(c), c.Param("id"), req.Status, req.RestaurantID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) revenue(c *gin.Context) {
	from, to, err := h.timeRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	report, err := h.orders.GetRevenueMetrics(c.Request.Context(), principal(c), order.RevenueQuery{
		RestaurantID: c.Query("restaurantId"),
		From:         from,
		To:           to,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRevenue(report))
}

// stream upgrades to a websocket and relays order events visible to the
// caller until either side goes away.
func (h *Handler) stream(c *gin.Context) {
	scope, err := order.ResolveScope(principal(c), c.Query("restaurantId"))
	if err != nil {
		writeError(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied.
		return
	}
	lg := zctx.From(c.Request.Context())
	lg.Debug("Live feed subscribed", zap.Int("subscribers", h.hub.Len()+1))
	if err := h.hub.Serve(c.Request.Context(), conn, scope); err != nil {
		lg.Debug("Live feed closed", zap.Error(err))
	}
}
