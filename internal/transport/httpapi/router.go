// Package httpapi exposes the order and task engines over HTTP with gin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"campus-market/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UserHeader carries the authenticated user id, set by the gateway.
const UserHeader = "X-User-ID"

const requestTimeout = 10 * time.Second

type HealthFunc func(ctx context.Context) map[string]string

type Deps struct {
	Orders      service.OrderService
	Tasks       service.TaskService
	Points      service.PointsService
	Trust       service.TrustService
	Audit       service.AuditService
	Health      HealthFunc
	CORSOrigins []string
	Log         logrus.FieldLogger
}

type handler struct {
	Deps
}

func NewRouter(d Deps) *gin.Engine {
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), h.requestLog())
	r.Use(cors.New(corsConfig(d.CORSOrigins)))

	r.GET("/health", h.health)

	orders := r.Group("/orders")
	orders.POST("", h.createOrder)
	orders.GET("", h.listMyOrders)
	orders.GET("/:id", h.getOrder)
	orders.POST("/:id/transitions", h.transitionOrder)
	orders.POST("/:id/reviews", h.submitReview)
	orders.GET("/:id/reviews", h.listReviews)

	tasks := r.Group("/tasks")
	tasks.POST("", h.publishTask)
	tasks.GET("", h.listTasks)
	tasks.GET("/mine", h.listMyTasks)
	tasks.GET("/:id", h.getTask)
	tasks.POST("/:id/take", h.takeTask)
	tasks.POST("/:id/status", h.updateTaskStatus)

	users := r.Group("/users")
	users.GET("/:id/task-stats", h.taskStats)
	users.GET("/:id/trust", h.trust)
	users.GET("/:id/points", h.points)

	r.GET("/points/ranking", h.ranking)
	r.GET("/audit-logs", h.auditLogs)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, UserHeader)
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (h *handler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"user_id":  c.GetHeader(UserHeader),
		}).Debug("request handled")
	}
}

func (h *handler) health(c *gin.Context) {
	stats := map[string]string{"status": "up"}
	if h.Health != nil {
		stats = h.Health(c.Request.Context())
	}
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}
