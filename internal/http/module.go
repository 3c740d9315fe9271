// Package http holds the contract between the router and the modules that
// mount routes on it.
package http

import (
	"context"

	"portal_usap_backend/platform/config"
	"portal_usap_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Module is a bounded context with HTTP routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is the set of groups a module can mount on.
type RouterContext struct {
	Engine *gin.Engine
	// V1 is /api/v1 without authentication.
	V1 *gin.RouterGroup
	// Protected requires a valid access token.
	Protected *gin.RouterGroup
	// Admin is /api/v1/admin and requires the admin role.
	Admin *gin.RouterGroup
	// Webhooks is /api/v1/webhooks, rate limited per IP and bounded by the
	// webhook timeout. Modules add their own signature check.
	Webhooks       *gin.RouterGroup
	Config         config.JWTConfig
	AuthMiddleware gin.HandlerFunc
}

// RouterConfig is the configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
	config.WebhookConfig
}

// HealthChecker backs /api/health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is what the composition root hands to the router.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  HealthChecker
	Modules []Module
}
