package main

import (
	"net/http"

	"dispo-crm/internal/auth"
	"dispo-crm/internal/httpapi"
	"dispo-crm/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	handlers  httpapi.Handlers
	webhook   telephony.CallControlWebhookHandler
	authMW    gin.HandlerFunc
	gatherer  prometheus.Gatherer
	devTokens bool
	ready     func(c *gin.Context) error
}

// registerRoutes wires HTTP routes to handlers. No business logic here.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		if d.ready != nil {
			if err := d.ready(c); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{})))

	r.POST("/webhooks/call-control", d.webhook.Handle)

	if d.devTokens {
		r.POST("/v1/auth/token", d.handlers.Login)
	}

	v1 := r.Group("/v1", d.authMW)
	v1.GET("/me", func(c *gin.Context) {
		uid, _ := auth.UserID(c.Request.Context())
		aid, _ := auth.AgentID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": uid, "agent_id": aid, "role": role})
	})
	httpapi.Mount(v1, d.handlers)
}
