package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

func (h *Handler) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "malformed request body")
		return
	}

	p := principal(c)
	adj := req.adjustments()
	if !p.IsAdmin() {
		// Only a trusted upstream may pin totals; everyone else gets them
		// computed.
		if adj.SubTotal != nil || adj.DeliveryFee != nil || adj.Total != nil {
			zctx.From(c.Request.Context()).Debug("Ignoring totals overrides from untrusted caller",
				zap.String("user_id", p.UserID),
			)
		}
		adj = order.Adjustments{PromoDiscount: adj.PromoDiscount}
	}

	o, err := h.orders.PlaceOrder(c.Request.Context(), order.PlaceOrderRequest{
		UserID:        p.UserID,
		Items:         req.Items,
		Address:       req.Address,
		DeliveryType:  order.DeliveryType(req.DeliveryType),
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		PromoCode:     req.PromoCode,
		Adjustments:   adj,
		ETAMinutes:    req.ETAMinutes,
		Route:         req.Route,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrder(o))
}

func (h *Handler) listMyOrders(c *gin.Context) {
	orders, err := h.orders.ListOrdersForUser(c.Request.Context(), principal(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrders(orders))
}

func (h *Handler) getOrder(c *gin.Context) {
	o, err := h.orders.GetOrder(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(o))
}
