package http

import (
	"lead_dispatch_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a bounded context that mounts its own routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext carries the route groups modules mount on.
type RouterContext struct {
	// Protected requires a valid access token.
	Protected *gin.RouterGroup
	// Admin is Protected plus the admin role, under /admin.
	Admin            *gin.RouterGroup
	AdminRateLimiter *httpkit.AdminRateLimiter
}
