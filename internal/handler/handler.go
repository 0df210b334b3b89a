package handler

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/xenking/delivery-orders/internal/domain/order"
	"github.com/xenking/delivery-orders/internal/events"
)

const maxBodyBytes = 1 << 20

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// WebhookSecret signs payment provider callbacks. The webhook route is
	// not registered when it is empty.
	WebhookSecret []byte
	// Location resolves date-only from/to query parameters.
	Location *time.Location
	// AllowedOrigins lists CORS origins. "*" allows any origin.
	AllowedOrigins []string
	CORSMaxAge     time.Duration
}

// Handler serves the order HTTP API on top of the order service.
type Handler struct {
	orders        *order.Service
	verifier      *TokenVerifier
	hub           *events.Hub
	webhookSecret []byte
	loc           *time.Location
	origins       []string
	corsMaxAge    time.Duration
	upgrader      websocket.Upgrader
}

// New constructs a Handler. hub may be nil, in which case the live feed is
// not served.
func New(cfg Config, orders *order.Service, verifier *TokenVerifier, hub *events.Hub) *Handler {
	h := &Handler{
		orders:        orders,
		verifier:      verifier,
		hub:           hub,
		webhookSecret: cfg.WebhookSecret,
		loc:           cfg.Location,
		origins:       cfg.AllowedOrigins,
		corsMaxAge:    cfg.CORSMaxAge,
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.corsMaxAge == 0 {
		h.corsMaxAge = 12 * time.Hour
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.ContextWithFallback = true
	if len(h.origins) > 0 {
		r.Use(cors.New(h.corsConfig()))
	}
	r.Use(limitBody)

	api := r.Group("/api")
	if len(h.webhookSecret) > 0 {
		api.POST("/payments/webhook", h.paymentWebhook)
	}

	authed := api.Group("", h.authenticate)
	authed.POST("/orders", h.placeOrder)
	authed.GET("/orders", h.listMyOrders)
	authed.GET("/orders/:id", h.getOrder)
	if h.hub != nil {
		authed.GET("/orders/stream", requireStaff, h.stream)
	}

	admin := authed.Group("/admin", requireStaff)
	admin.GET("/orders", h.listScopedOrders)
	admin.PATCH("/orders/:id/delivery", h.updateDelivery)
	admin.PATCH("/orders/:id/status", h.updateStatus)
	admin.GET("/revenue", h.revenue)

	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "route not found")
	})
	return r
}

func (h *Handler) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID", "Retry-After"},
		MaxAge:        h.corsMaxAge,
	}
	if slices.Contains(h.origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = h.origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	return slices.Contains(h.origins, "*") || slices.Contains(h.origins, origin)
}

func limitBody(c *gin.Context) {
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	}
	c.Next()
}
