package main

import (
	"database/sql"
	"time"

	"callerid-rotation/internal/auth"
	"callerid-rotation/internal/httpapi"
	"callerid-rotation/internal/metrics"
	"callerid-rotation/internal/rbac"
	"callerid-rotation/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type deps struct {
	db    *sql.DB
	redis *redis.Client
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authManager *auth.Manager, d deps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := utils.RedisHealthCheck(c.Request.Context(), d.redis, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	protected := v1.Group("")
	protected.Use(auth.RequireAccessToken(authManager))
	{
		// Allocation surface, consumed by the dialer.
		dialer := protected.Group("")
		dialer.Use(rbac.RequireAnyRole(rbac.RoleDialer))
		{
			dialer.GET("/next-cid", h.NextCallerID)
			dialer.DELETE("/reservations/:number", h.ReleaseReservation)
		}

		// Read-only surface for dialers and dashboards.
		readonly := protected.Group("")
		readonly.Use(rbac.RequireAnyRole(rbac.RoleDialer, rbac.RoleViewer))
		{
			readonly.GET("/reservations/:number", h.LookupReservation)
			readonly.GET("/stats", h.Stats)
		}

		// ADMIN routes: pool management.
		admin := protected.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/caller-ids", h.CreateCallerID)
			admin.GET("/caller-ids", h.ListCallerIDs)
			admin.GET("/caller-ids/:number", h.GetCallerID)
			admin.PATCH("/caller-ids/:number", h.UpdateCallerID)
			admin.DELETE("/caller-ids/:number", h.DeactivateCallerID)
		}
	}
}
