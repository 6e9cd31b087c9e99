// Package httpapi is the outer HTTP surface: order intake, payment link
// resolution, gateway callbacks and the admin link management routes.
package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sherryy67/nazam-core-sub002/internal/stories/links"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/reconcile"
)

type Server struct {
	orders    *orders.Service
	links     *links.Service
	reconcile *reconcile.Service
	auth      *Auth

	// resultPageURL is where the customer's browser lands after a callback.
	// Empty means serve the embedded result page instead of redirecting.
	resultPageURL string

	logger *slog.Logger
}

func NewServer(
	ordersSvc *orders.Service,
	linksSvc *links.Service,
	reconcileSvc *reconcile.Service,
	auth *Auth,
	resultPageURL string,
	logger *slog.Logger,
) *Server {
	return &Server{
		orders:        ordersSvc,
		links:         linksSvc,
		reconcile:     reconcileSvc,
		auth:          auth,
		resultPageURL: resultPageURL,
		logger:        logger,
	}
}

// Router assembles the gin engine with every route the service exposes.
func (s *Server) Router(env string) *gin.Engine {
	if env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())

	api := r.Group("/api")
	{
		api.POST("/orders", s.createOrder)
		api.GET("/orders/:id/payment-status", s.paymentStatus)

		api.GET("/payments/link/:token", s.linkDetails)
		api.POST("/payments/link/:token/initiate", s.initiatePayment)

		// The gateway POSTs the callback; some integrations bounce the
		// customer back with GET and the payload in the query string.
		api.POST("/payments/callback", s.gatewayCallback)
		api.GET("/payments/callback", s.gatewayCallback)
	}

	admin := r.Group("/api/admin")
	admin.Use(s.auth.AdminMiddleware())
	{
		admin.POST("/orders/:id/payment-link", s.issueLink)
		admin.DELETE("/orders/:id/payment-link", s.revokeLink)
	}

	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		)
	}
}
