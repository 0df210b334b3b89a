package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

// retryAfterSeconds is advertised when the payment provider timed out.
const retryAfterSeconds = "5"

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: status, Message: msg})
}

// writeError maps a domain error to its HTTP response. Unknown errors are
// logged and reported as 500 without details.
func writeError(c *gin.Context, err error) {
	var (
		validation *order.ValidationError
		transition *order.TransitionError
	)
	switch {
	case errors.As(err, &validation):
		abortWithError(c, http.StatusBadRequest, validation.Error())
	case errors.As(err, &transition):
		abortWithError(c, http.StatusUnprocessableEntity, transition.Error())
	case errors.Is(err, order.ErrInvalidPhase):
		abortWithError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrForbidden):
		abortWithError(c, http.StatusForbidden, "forbidden")
	case errors.Is(err, order.ErrNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrConflict):
		abortWithError(c, http.StatusConflict, "order was modified concurrently, retry")
	case errors.Is(err, order.ErrUpstreamTimeout):
		c.Header("Retry-After", retryAfterSeconds)
		abortWithError(c, http.StatusServiceUnavailable, "payment provider timeout")
	default:
		zctx.From(c.Request.Context()).Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		abortWithError(c, http.StatusInternalServerError, "internal error")
	}
}
