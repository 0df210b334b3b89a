package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xenking/delivery-orders/internal/domain/order"
	"github.com/xenking/delivery-orders/internal/payment"
)

const signatureHeader = "X-Signature"

// callbackOutcome maps the provider's event status to success. ok is false
// for statuses that carry no outcome.
func callbackOutcome(status string) (success, ok bool) {
	switch strings.ToLower(status) {
	case "paid", "success", "succeeded", "completed":
		return true, true
	case "failed", "canceled", "cancelled", "expired":
		return false, true
	default:
		return false, false
	}
}

func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := payment.Verify(h.webhookSecret, body, c.GetHeader(signatureHeader)); err != nil {
		abortWithError(c, http.StatusUnauthorized, err.Error())
		return
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		abortWithError(c, http.StatusBadRequest, "malformed request body")
		return
	}
	success, ok := callbackOutcome(req.Status)
	if !ok {
		writeError(c, &order.ValidationError{Field: "status", Reason: "unknown payment status " + req.Status})
		return
	}

	if err := h.orders.HandlePaymentCallback(c.Request.Context(), order.PaymentCallback{
		EventID:   req.EventID,
		OrderID:   req.OrderID,
		SessionID: req.SessionID,
		Success:   success,
	}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
